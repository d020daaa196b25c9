// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dockhand-sh/dockhand/pkg/logging"
	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// EnvironmentProvisioner ensures the remote host carries the container
// engine, the compose tool, and the reverse proxy.
//
// # Idempotency
//
// Each package is handled independently: probe, install only if
// absent, skip if present. Re-running the pipeline against an
// already-provisioned host performs no redundant work and does not
// fail. Each installation failure is fatal with its own exit code so a
// supervisor can tell which package broke.
type EnvironmentProvisioner interface {
	// Provision runs the three probe-or-install sequences and a final
	// advisory version report.
	Provision(ctx context.Context) error
}

// DefaultEnvironmentProvisioner implements EnvironmentProvisioner over
// a RemoteExecutor against a Debian-family host.
type DefaultEnvironmentProvisioner struct {
	remote RemoteExecutor
	user   string
	log    *logging.Logger
}

// NewDefaultEnvironmentProvisioner creates the production provisioner.
// The user is needed to decide whether commands require sudo.
func NewDefaultEnvironmentProvisioner(remote RemoteExecutor, user string, log *logging.Logger) *DefaultEnvironmentProvisioner {
	return &DefaultEnvironmentProvisioner{remote: remote, user: user, log: log}
}

// remotePackage describes one probe-or-install unit.
type remotePackage struct {
	name       string
	probe      string
	install    string
	installErr ExitCode
}

// Provision ensures docker, the compose plugin, and nginx exist on the
// remote host, then reports installed versions (advisory).
func (p *DefaultEnvironmentProvisioner) Provision(ctx context.Context) error {
	// A stale package index makes installs fail spuriously; refreshing
	// it is advisory because a host with everything present needs no
	// index at all.
	if _, err := p.remote.Run(ctx, p.sudo("apt-get update -qq")); err != nil {
		p.log.Warn("package index update failed, continuing", "error", err.Error())
		ux.Warning("package index update failed, continuing")
	}

	packages := []remotePackage{
		{
			name:       "container engine",
			probe:      "command -v docker",
			install:    "curl -fsSL https://get.docker.com | " + p.sudo("sh") + " && " + p.sudo("systemctl enable --now docker"),
			installErr: ExitEngineInstall,
		},
		{
			name:       "compose tool",
			probe:      "docker compose version",
			install:    p.sudo("apt-get install -y docker-compose-plugin"),
			installErr: ExitComposeInstall,
		},
		{
			name:       "reverse proxy",
			probe:      "command -v nginx",
			install:    p.sudo("apt-get install -y nginx") + " && " + p.sudo("systemctl enable --now nginx"),
			installErr: ExitProxyInstall,
		},
	}

	for _, pkg := range packages {
		if _, err := p.remote.Run(ctx, pkg.probe); err == nil {
			p.log.Info("already installed, skipping", "package", pkg.name)
			ux.Success("%s already installed", pkg.name)
			continue
		}
		p.log.Info("installing", "package", pkg.name)
		ux.Info("installing %s", pkg.name)
		if _, err := p.remote.Run(ctx, pkg.install); err != nil {
			return fatal("provisioning environment", pkg.installErr,
				fmt.Errorf("installing %s: %w", pkg.name, err))
		}
		ux.Success("%s installed", pkg.name)
	}

	p.reportVersions(ctx)
	return nil
}

// reportVersions logs what ended up installed. It never gates the
// pipeline; a probe failure here is just noise in the report.
func (p *DefaultEnvironmentProvisioner) reportVersions(ctx context.Context) {
	probes := map[string]string{
		"engine":  "docker --version",
		"compose": "docker compose version --short",
		"proxy":   "nginx -v 2>&1",
	}
	for component, probe := range probes {
		out, err := p.remote.Run(ctx, probe)
		if err != nil {
			p.log.Warn("version probe failed", "component", component, "error", err.Error())
			continue
		}
		p.log.Info("installed version", "component", component,
			"version", strings.TrimSpace(string(out)))
	}
}

// sudo prefixes a command when the ssh user is not root. Installs on a
// hardened host assume passwordless sudo for the deploy user.
func (p *DefaultEnvironmentProvisioner) sudo(command string) string {
	if p.user == "root" {
		return command
	}
	return "sudo " + command
}
