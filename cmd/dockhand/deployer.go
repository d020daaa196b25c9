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
	"time"

	"github.com/dockhand-sh/dockhand/pkg/logging"
	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// settleInterval is the fixed grace period between container startup
// and the running-state check. It is not a readiness probe; there is
// no polling or backoff anywhere in the pipeline.
const settleInterval = 5 * time.Second

// RemoteAppDir returns the deployment directory relative to the remote
// user's home. The same value feeds rsync (relative path) and ssh
// command strings (prefixed with ~/).
func RemoteAppDir(name string) string {
	return "apps/" + name
}

// Deployer transfers the workspace to the remote host, replaces any
// previous instance of the same-named deployment, and brings up the
// new one.
//
// # Idempotency
//
// Re-running against an existing deployment converges to the same end
// state: the old instance is torn down (best-effort, non-fatal when
// nothing existed) and exactly one new instance comes up. This
// replace-not-duplicate property is the central correctness contract
// of the whole tool, because re-running the pipeline is the only
// recovery path after a failure.
type Deployer interface {
	// Deploy runs the full transfer/teardown/bring-up/verify sequence.
	Deploy(ctx context.Context, params *DeploymentParameters, inspection ProjectInspection, workspace string) error
}

// DefaultDeployer implements Deployer over a RemoteExecutor. Docker
// commands run unprefixed; the deploy user is expected to be root or a
// member of the docker group.
type DefaultDeployer struct {
	remote RemoteExecutor
	log    *logging.Logger

	// settle is time.Sleep in production; tests replace it.
	settle func(time.Duration)
}

// NewDefaultDeployer creates the production deployer.
func NewDefaultDeployer(remote RemoteExecutor, log *logging.Logger) *DefaultDeployer {
	return &DefaultDeployer{
		remote: remote,
		log:    log,
		settle: time.Sleep,
	}
}

// Deploy executes the six deployment steps in order, each keyed on the
// deterministic deployment name.
func (d *DefaultDeployer) Deploy(ctx context.Context, params *DeploymentParameters, inspection ProjectInspection, workspace string) error {
	name := params.DeploymentName()
	appDir := RemoteAppDir(name)
	homeDir := "~/" + appDir

	// 1. Ensure the deployment directory exists.
	if _, err := d.remote.Run(ctx, "mkdir -p "+homeDir); err != nil {
		return fatal("deploying", ExitFileTransfer,
			fmt.Errorf("creating %s: %w", homeDir, err))
	}

	// 2. Mirror the workspace; --delete makes the remote tree reflect
	// the exact current source.
	ux.Info("syncing source to %s", d.remote.Target())
	if err := d.remote.Upload(ctx, workspace, appDir); err != nil {
		return fatal("deploying", ExitFileTransfer, err)
	}

	// 3. Tear down any previous instance. Best-effort by design: the
	// very first deploy has nothing to remove and must not fail here.
	d.teardownPrevious(ctx, name, homeDir)

	// 4. Bring up the new instance.
	switch inspection.Strategy {
	case StrategyCompose:
		ux.Info("building and starting compose services")
		up := fmt.Sprintf("cd %s && docker compose up -d --build", homeDir)
		if _, err := d.remote.Run(ctx, up); err != nil {
			return fatal("deploying", ExitComposeDeploy, err)
		}
	case StrategySingleImage:
		ux.Info("building image %s:latest", name)
		build := fmt.Sprintf("cd %s && docker build -t %s:latest .", homeDir, name)
		if _, err := d.remote.Run(ctx, build); err != nil {
			return fatal("deploying", ExitImageBuild, err)
		}
		run := fmt.Sprintf("docker run -d --name %s -p %d:%d %s:latest",
			name, params.AppPort, params.AppPort, name)
		if _, err := d.remote.Run(ctx, run); err != nil {
			return fatal("deploying", ExitContainerRun, err)
		}
	default:
		return fatal("deploying", ExitNoBuildDescriptor,
			fmt.Errorf("no build strategy resolved"))
	}

	// 5. Fixed settle interval before checking.
	d.log.Info("waiting for container to settle", "interval", settleInterval.String())
	d.settle(settleInterval)

	// 6. The deployment name must appear in the running listing.
	listing := fmt.Sprintf("docker ps --filter name=%s --format '{{.Names}}'", name)
	out, err := d.remote.Run(ctx, listing)
	if err != nil {
		return fatal("deploying", ExitContainerNotRunning, err)
	}
	if !containsName(string(out), name) {
		return fatal("deploying", ExitContainerNotRunning,
			fmt.Errorf("container %q not in running listing after settle", name))
	}

	ux.Success("deployment %s is running", name)
	return nil
}

// teardownPrevious stops whatever previous instance exists under the
// deployment name. Compose-down first; when that is inapplicable the
// named container is stopped and removed. Errors are logged, not
// returned.
func (d *DefaultDeployer) teardownPrevious(ctx context.Context, name, homeDir string) {
	down := fmt.Sprintf("cd %s && docker compose down --remove-orphans", homeDir)
	if _, err := d.remote.Run(ctx, down); err != nil {
		d.log.Debug("compose down inapplicable", "error", err.Error())
	}
	if _, err := d.remote.Run(ctx, "docker stop "+name); err != nil {
		d.log.Debug("no container to stop", "name", name)
	}
	if _, err := d.remote.Run(ctx, "docker rm "+name); err != nil {
		d.log.Debug("no container to remove", "name", name)
	}
}

// containsName checks the docker ps name column output for an exact
// match; compose prefixes service containers with the project name, so
// a prefix match is accepted for those.
func containsName(listing, name string) bool {
	for _, line := range strings.Split(strings.TrimSpace(listing), "\n") {
		line = strings.TrimSpace(line)
		if line == name || strings.HasPrefix(line, name+"-") || strings.HasPrefix(line, name+"_") {
			return true
		}
	}
	return false
}
