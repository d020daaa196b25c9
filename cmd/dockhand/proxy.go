// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/dockhand-sh/dockhand/pkg/logging"
	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// Standard nginx site directories on Debian-family hosts.
const (
	sitesAvailableDir = "/etc/nginx/sites-available"
	sitesEnabledDir   = "/etc/nginx/sites-enabled"
)

// siteTemplate forwards all paths on port 80 to the application port
// on localhost, with upgrade/connection headers for protocol-upgrade
// support and forwarded-address/host headers for the backend.
const siteTemplate = `server {
    listen 80;
    server_name {{ .ServerAddr }};

    location / {
        proxy_pass http://localhost:{{ .AppPort }};
        proxy_http_version 1.1;
        proxy_set_header Upgrade $http_upgrade;
        proxy_set_header Connection 'upgrade';
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
        proxy_cache_bypass $http_upgrade;
    }
}
`

var siteTmpl = template.Must(template.New("nginx-site").Parse(siteTemplate))

// ProxyConfigurator writes and activates the reverse-proxy site for a
// deployment.
//
// # No Partial Apply
//
// The daemon is never reloaded with an unverified config: the full
// configuration is syntax-checked first, and a check failure is fatal
// while leaving the previously active configuration in effect.
type ProxyConfigurator interface {
	Configure(ctx context.Context, params *DeploymentParameters) error
}

// DefaultProxyConfigurator implements ProxyConfigurator over a
// RemoteExecutor.
type DefaultProxyConfigurator struct {
	remote RemoteExecutor
	user   string
	log    *logging.Logger
}

// NewDefaultProxyConfigurator creates the production configurator.
func NewDefaultProxyConfigurator(remote RemoteExecutor, user string, log *logging.Logger) *DefaultProxyConfigurator {
	return &DefaultProxyConfigurator{remote: remote, user: user, log: log}
}

// RenderSiteConfig renders the site file for the given address and
// port. Exposed for tests asserting on the exact generated shape.
func RenderSiteConfig(serverAddr string, appPort int) ([]byte, error) {
	var buf bytes.Buffer
	err := siteTmpl.Execute(&buf, struct {
		ServerAddr string
		AppPort    int
	}{serverAddr, appPort})
	if err != nil {
		return nil, fmt.Errorf("rendering site config: %w", err)
	}
	return buf.Bytes(), nil
}

// Configure writes the site file, enables it, disables the default
// site, syntax-checks the whole proxy configuration, and reloads the
// daemon only if the check passes.
func (p *DefaultProxyConfigurator) Configure(ctx context.Context, params *DeploymentParameters) error {
	name := params.DeploymentName()
	sitePath := sitesAvailableDir + "/" + name

	rendered, err := RenderSiteConfig(params.ServerAddr, params.AppPort)
	if err != nil {
		return fatal("configuring proxy", ExitProxyConfigWrite, err)
	}

	// The rendered config streams over stdin; nothing is written to the
	// local filesystem.
	writeCmd := p.sudo(fmt.Sprintf("tee %s > /dev/null", sitePath))
	if _, err := p.remote.RunWithInput(ctx, writeCmd, rendered); err != nil {
		return fatal("configuring proxy", ExitProxyConfigWrite,
			fmt.Errorf("writing %s: %w", sitePath, err))
	}

	enable := p.sudo(fmt.Sprintf("ln -sf %s %s/%s", sitePath, sitesEnabledDir, name)) +
		" && " + p.sudo(fmt.Sprintf("rm -f %s/default", sitesEnabledDir))
	if _, err := p.remote.Run(ctx, enable); err != nil {
		return fatal("configuring proxy", ExitProxyConfigWrite,
			fmt.Errorf("enabling site %s: %w", name, err))
	}

	// Syntax-check before touching the running daemon. On failure the
	// previous configuration stays active because no reload happens.
	if _, err := p.remote.Run(ctx, p.sudo("nginx -t")); err != nil {
		return fatal("configuring proxy", ExitProxyConfigTest,
			fmt.Errorf("proxy config test failed: %w", err))
	}

	if _, err := p.remote.Run(ctx, p.sudo("systemctl reload nginx")); err != nil {
		return fatal("configuring proxy", ExitProxyReload, err)
	}

	p.log.Info("proxy site active", "site", name, "port", params.AppPort)
	ux.Success("proxy forwarding %s:80 -> localhost:%d", params.ServerAddr, params.AppPort)
	return nil
}

func (p *DefaultProxyConfigurator) sudo(command string) string {
	if p.user == "root" {
		return command
	}
	return "sudo " + command
}
