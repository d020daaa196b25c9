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

	"github.com/dockhand-sh/dockhand/pkg/logging"
	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// TeardownStage removes every remote artifact a deployment created:
// containers, image, source directory, and proxy site.
//
// # Best Effort
//
// Every removal is attempted regardless of earlier failures, and no
// failure is fatal. Cleanup against a host that never saw the
// deployment (or saw only part of it) completes with exit 0; partially
// torn-down state is strictly better than aborting half way.
type TeardownStage interface {
	Teardown(ctx context.Context, params *DeploymentParameters) error
}

// DefaultTeardownStage implements TeardownStage over a RemoteExecutor.
type DefaultTeardownStage struct {
	remote RemoteExecutor
	user   string
	log    *logging.Logger
}

// NewDefaultTeardownStage creates the production teardown stage.
func NewDefaultTeardownStage(remote RemoteExecutor, user string, log *logging.Logger) *DefaultTeardownStage {
	return &DefaultTeardownStage{remote: remote, user: user, log: log}
}

// Teardown removes the deployment's remote artifacts in dependency
// order: running containers first, then the image, the source tree,
// and finally the proxy site with a reload to drop it.
func (t *DefaultTeardownStage) Teardown(ctx context.Context, params *DeploymentParameters) error {
	name := params.DeploymentName()
	homeDir := "~/" + RemoteAppDir(name)

	ux.Stage("removing deployment %s from %s", name, t.remote.Target())

	steps := []struct {
		desc    string
		command string
	}{
		{"stopping compose services", fmt.Sprintf("cd %s && docker compose down --remove-orphans", homeDir)},
		{"stopping container", "docker stop " + name},
		{"removing container", "docker rm " + name},
		{"removing image", fmt.Sprintf("docker rmi %s:latest", name)},
		{"removing proxy site", t.sudo(fmt.Sprintf("rm -f %s/%s %s/%s", sitesEnabledDir, name, sitesAvailableDir, name))},
		{"removing source directory", "rm -rf " + homeDir},
		{"reloading proxy", t.sudo("systemctl reload nginx")},
	}

	for _, step := range steps {
		if _, err := t.remote.Run(ctx, step.command); err != nil {
			t.log.Debug("teardown step failed, continuing",
				"step", step.desc, "error", err.Error())
			continue
		}
		t.log.Info("teardown step done", "step", step.desc)
	}

	ux.Success("cleanup of %s finished", name)
	return nil
}

func (t *DefaultTeardownStage) sudo(command string) string {
	if t.user == "root" {
		return command
	}
	return "sudo " + command
}

var _ TeardownStage = (*DefaultTeardownStage)(nil)
