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
	"time"

	"github.com/dockhand-sh/dockhand/pkg/logging"
	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// propagationDelay precedes the external reachability probe. Firewall
// rules and DNS can lag a fresh deployment; this is a fixed wait, not
// a poll.
const propagationDelay = 3 * time.Second

// DeploymentValidator runs the post-deploy health checks.
//
// # Failure Classes
//
// Daemon/container checks are fatal: a deployment whose engine, named
// container, or proxy is down has failed. The two HTTP reachability
// probes are advisory: external reachability may lag for reasons that
// are not deployment failures, so they log warnings and continue.
type DeploymentValidator interface {
	Validate(ctx context.Context, params *DeploymentParameters) error
}

// DefaultDeploymentValidator implements DeploymentValidator. Daemon and
// container checks go over ssh; the external probe runs curl on the
// operator's machine.
type DefaultDeploymentValidator struct {
	remote RemoteExecutor
	proc   ProcessManager
	log    *logging.Logger

	// wait is time.Sleep in production; tests replace it.
	wait func(time.Duration)
}

// NewDefaultDeploymentValidator creates the production validator.
func NewDefaultDeploymentValidator(remote RemoteExecutor, proc ProcessManager, log *logging.Logger) *DefaultDeploymentValidator {
	return &DefaultDeploymentValidator{
		remote: remote,
		proc:   proc,
		log:    log,
		wait:   time.Sleep,
	}
}

// Validate runs the check sequence: engine active, container present,
// proxy active (all fatal), then the advisory local and external HTTP
// probes.
func (v *DefaultDeploymentValidator) Validate(ctx context.Context, params *DeploymentParameters) error {
	name := params.DeploymentName()

	if _, err := v.remote.Run(ctx, "systemctl is-active docker"); err != nil {
		return fatal("validating deployment", ExitEngineNotActive,
			fmt.Errorf("container engine is not active: %w", err))
	}
	ux.Success("container engine active")

	listing := fmt.Sprintf("docker ps --filter name=%s --format '{{.Names}}'", name)
	out, err := v.remote.Run(ctx, listing)
	if err != nil || !containsName(string(out), name) {
		return fatal("validating deployment", ExitContainerMissing,
			fmt.Errorf("container %q missing from running listing", name))
	}
	ux.Success("container %s present", name)

	if _, err := v.remote.Run(ctx, "systemctl is-active nginx"); err != nil {
		return fatal("validating deployment", ExitProxyNotActive,
			fmt.Errorf("reverse proxy is not active: %w", err))
	}
	ux.Success("reverse proxy active")

	// Local probe on the app port, falling back to port 80 through the
	// proxy. Advisory: a slow-booting app is not a failed deployment.
	local := fmt.Sprintf("curl -fsS -m 10 -o /dev/null http://localhost:%d || curl -fsS -m 10 -o /dev/null http://localhost:80", params.AppPort)
	if _, err := v.remote.Run(ctx, local); err != nil {
		v.log.Warn("local HTTP probe failed", "port", params.AppPort, "error", err.Error())
		ux.Warning("local HTTP probe failed; the app may still be starting")
	} else {
		ux.Success("local HTTP probe ok")
	}

	v.wait(propagationDelay)

	// External probe from the operator's machine. Advisory: firewalls
	// and DNS propagation are outside the deployment's control.
	if _, err := v.proc.Run(ctx, "curl", "-fsS", "-m", "10", "-o", "/dev/null",
		fmt.Sprintf("http://%s", params.ServerAddr)); err != nil {
		v.log.Warn("external HTTP probe failed", "addr", params.ServerAddr, "error", err.Error())
		ux.Warning("external probe failed; check firewall or DNS propagation")
	} else {
		ux.Success("application reachable at http://%s", params.ServerAddr)
	}

	return nil
}
