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
	"os"
	"time"

	"github.com/dockhand-sh/dockhand/pkg/logging"
	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// PipelineState names the stage a run is currently in. Transitions are
// strictly forward; a failure in any stage moves to StateFailed and
// ends the run.
type PipelineState int

const (
	StateCollectingParams PipelineState = iota
	StateCloning
	StateInspecting
	StateTestingConnection
	StateProvisioning
	StateDeploying
	StateConfiguringProxy
	StateValidating
	StateDone
	StateFailed
)

// String returns the stage name used in logs and status output.
func (s PipelineState) String() string {
	switch s {
	case StateCollectingParams:
		return "collecting parameters"
	case StateCloning:
		return "cloning repository"
	case StateInspecting:
		return "inspecting project"
	case StateTestingConnection:
		return "testing connection"
	case StateProvisioning:
		return "provisioning environment"
	case StateDeploying:
		return "deploying"
	case StateConfiguringProxy:
		return "configuring proxy"
	case StateValidating:
		return "validating deployment"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pipeline drives one deployment run end to end.
//
// # Description
//
// The controller owns the stage ordering, the ephemeral workspace
// lifecycle, and the token lifecycle. Stages are constructed here and
// wired to one RemoteExecutor bound to the collected target.
//
// # Guarantees
//
//   - The workspace is removed on every exit path, success or failure,
//     including context cancellation from an interrupt.
//   - The access token is wiped from memory on every exit path.
//   - Stage failures surface as StageError so the process exit code
//     identifies the failed operation.
type Pipeline struct {
	collector *ParameterCollector
	proc      ProcessManager
	log       *logging.Logger

	// workDir, when non-empty, is a fixed workspace reused across runs
	// (the checkout is updated in place instead of re-cloned, and the
	// directory survives the run). Empty means a fresh temp directory
	// per run, removed on exit.
	workDir string

	// newRemote builds the executor once the target is known; tests
	// substitute a mock.
	newRemote func(user, host, keyPath string) RemoteExecutor

	// sleep backs the deployer settle and validator propagation waits.
	sleep func(time.Duration)

	state PipelineState
}

// NewPipeline creates a production pipeline. A non-empty workDir turns
// on the fixed-workspace mode.
func NewPipeline(collector *ParameterCollector, proc ProcessManager, log *logging.Logger, workDir string) *Pipeline {
	p := &Pipeline{
		collector: collector,
		proc:      proc,
		log:       log,
		workDir:   workDir,
		sleep:     time.Sleep,
	}
	p.newRemote = func(user, host, keyPath string) RemoteExecutor {
		return NewDefaultRemoteExecutor(p.proc, user, host, keyPath)
	}
	return p
}

// State returns the stage the pipeline is in (or ended in).
func (p *Pipeline) State() PipelineState {
	return p.state
}

// Run collects parameters interactively and executes the deployment.
func (p *Pipeline) Run(ctx context.Context) error {
	p.state = StateCollectingParams
	ux.Title("dockhand deploy")

	params, err := p.collector.Collect(ctx)
	if err != nil {
		return p.fail(err)
	}
	return p.Execute(ctx, params)
}

// Execute runs the deployment stages against an already-validated
// parameter set. Config-file mode enters here directly.
func (p *Pipeline) Execute(ctx context.Context, params *DeploymentParameters) error {
	defer params.DestroyToken()

	// Last line of defense: even if a command string carrying the token
	// reaches the logger, it comes out redacted.
	if params.HasToken() {
		if tok, err := params.Token(); err == nil {
			p.log.Redact(tok)
		}
	}

	p.log.Info("starting deployment", "params", params.Describe())

	workspace, cleanup, err := p.prepareWorkspace(params)
	if err != nil {
		return p.fail(fatal("preparing workspace", ExitWorkspaceNav, err))
	}
	defer cleanup()

	p.state = StateCloning
	ux.Stage("cloning %s (%s)", SanitizeURL(params.RepoURL), params.Branch)
	repo := NewDefaultRepositoryStage(p.proc, p.log)
	if err := repo.Checkout(ctx, params, workspace); err != nil {
		return p.fail(err)
	}

	p.state = StateInspecting
	inspection, err := InspectProject(workspace)
	if err != nil {
		return p.fail(err)
	}
	p.log.Info("project inspected",
		"strategy", inspection.Strategy.String(), "descriptor", inspection.Descriptor)
	ux.Info("build strategy: %s (%s)", inspection.Strategy, inspection.Descriptor)

	p.state = StateTestingConnection
	remote := p.newRemote(params.Username, params.ServerAddr, params.KeyPathExpanded())
	ux.Stage("testing connection to %s", remote.Target())
	if err := remote.Probe(ctx); err != nil {
		return p.fail(fatal("testing connection", ExitSSHUnreachable, err))
	}
	ux.Success("host reachable")

	p.state = StateProvisioning
	ux.Stage("provisioning environment")
	provisioner := NewDefaultEnvironmentProvisioner(remote, params.Username, p.log)
	if err := provisioner.Provision(ctx); err != nil {
		return p.fail(err)
	}

	p.state = StateDeploying
	ux.Stage("deploying %s", params.DeploymentName())
	deployer := NewDefaultDeployer(remote, p.log)
	deployer.settle = p.sleep
	if err := deployer.Deploy(ctx, params, inspection, workspace); err != nil {
		return p.fail(err)
	}

	p.state = StateConfiguringProxy
	ux.Stage("configuring proxy")
	proxy := NewDefaultProxyConfigurator(remote, params.Username, p.log)
	if err := proxy.Configure(ctx, params); err != nil {
		return p.fail(err)
	}

	p.state = StateValidating
	ux.Stage("validating deployment")
	validator := NewDefaultDeploymentValidator(remote, p.proc, p.log)
	validator.wait = p.sleep
	if err := validator.Validate(ctx, params); err != nil {
		return p.fail(err)
	}

	p.state = StateDone
	p.log.Info("deployment finished", "name", params.DeploymentName())
	ux.Success("deployed %s to http://%s", params.DeploymentName(), params.ServerAddr)
	return nil
}

// Cleanup collects the reduced target parameters and tears the
// deployment down.
func (p *Pipeline) Cleanup(ctx context.Context) error {
	p.state = StateCollectingParams
	ux.Title("dockhand cleanup")

	params, err := p.collector.CollectCleanupTarget(ctx)
	if err != nil {
		return p.fail(err)
	}
	return p.ExecuteCleanup(ctx, params)
}

// ExecuteCleanup tears down the deployment named by params. The host
// must be reachable; the teardown itself is best-effort.
func (p *Pipeline) ExecuteCleanup(ctx context.Context, params *DeploymentParameters) error {
	defer params.DestroyToken()

	p.state = StateTestingConnection
	remote := p.newRemote(params.Username, params.ServerAddr, params.KeyPathExpanded())
	if err := remote.Probe(ctx); err != nil {
		return p.fail(fatal("testing connection", ExitSSHUnreachable, err))
	}

	teardown := NewDefaultTeardownStage(remote, params.Username, p.log)
	if err := teardown.Teardown(ctx, params); err != nil {
		return p.fail(err)
	}

	p.state = StateDone
	return nil
}

// prepareWorkspace resolves the checkout directory for this run and
// the cleanup that runs on exit. Per-run temp workspaces are removed
// unconditionally; a fixed workDir persists as a cross-run cache.
func (p *Pipeline) prepareWorkspace(params *DeploymentParameters) (string, func(), error) {
	name := params.DeploymentName()

	if p.workDir != "" {
		base := ExpandPath(p.workDir)
		dir := base + string(os.PathSeparator) + name
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("creating work dir %s: %w", dir, err)
		}
		p.log.Info("using fixed workspace", "dir", dir)
		return dir, func() {}, nil
	}

	base, err := os.MkdirTemp("", "dockhand-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp workspace: %w", err)
	}
	dir := base + string(os.PathSeparator) + name
	p.log.Info("using ephemeral workspace", "dir", dir)

	cleanup := func() {
		if rmErr := os.RemoveAll(base); rmErr != nil {
			p.log.Warn("workspace removal failed", "dir", base, "error", rmErr.Error())
			return
		}
		p.log.Info("workspace removed", "dir", base)
	}
	return dir, cleanup, nil
}

// fail marks the pipeline failed and logs the cause with its code. When
// the cause chain carries a failed command, its exit status and stderr
// surface alongside the stage error.
func (p *Pipeline) fail(err error) error {
	p.state = StateFailed
	code := CodeOf(err)
	attrs := []any{"code", int(code), "kind", code.String(), "error", err.Error()}
	if status := ExitStatusOf(err); status != -1 {
		attrs = append(attrs, "command_status", status)
	}
	p.log.Error("pipeline failed", attrs...)
	ux.Error("%v", err)
	if stderr := ExtractStderr(err); stderr != "" {
		ux.Muted("%s", stderr)
	}
	return err
}
