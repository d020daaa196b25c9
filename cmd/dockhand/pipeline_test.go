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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// fakeCloneProc simulates a successful git clone by materializing the
// given files in the clone target directory. All other commands succeed.
func fakeCloneProc(t *testing.T, files ...string) *MockProcessManager {
	t.Helper()
	return &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			if name == "git" && len(args) > 0 && args[0] == "clone" {
				dir := args[len(args)-1]
				if err := os.MkdirAll(dir, 0755); err != nil {
					t.Fatalf("fake clone mkdir: %v", err)
				}
				for _, f := range files {
					if err := os.WriteFile(filepath.Join(dir, f), []byte("x"), 0644); err != nil {
						t.Fatalf("fake clone write: %v", err)
					}
				}
			}
			return nil, nil
		},
	}
}

// newTestPipeline wires a pipeline to mocks and returns the remote
// executor it will hand to every stage.
func newTestPipeline(proc *MockProcessManager) (*Pipeline, *MockRemoteExecutor) {
	remote := &MockRemoteExecutor{RunFunc: runningListing("webapp")}
	collector := NewParameterCollectorWithIO(strings.NewReader(""), &bytes.Buffer{})

	p := NewPipeline(collector, proc, testLogger(), "")
	p.sleep = func(time.Duration) {}
	p.newRemote = func(user, host, keyPath string) RemoteExecutor {
		return remote
	}
	return p, remote
}

func executeParams(t *testing.T) *DeploymentParameters {
	t.Helper()
	params := deployParams()
	if err := params.SetToken("tok123"); err != nil {
		t.Fatalf("SetToken: %v", err)
	}
	return params
}

// cloneDirOf extracts the workspace directory from the recorded git
// clone call.
func cloneDirOf(t *testing.T, proc *MockProcessManager) string {
	t.Helper()
	for _, call := range proc.GetCalls() {
		if call.Name == "git" && len(call.Args) > 0 && call.Args[0] == "clone" {
			return call.Args[len(call.Args)-1]
		}
	}
	t.Fatal("no git clone recorded")
	return ""
}

func TestExecute_FullRunEndsDone(t *testing.T) {
	proc := fakeCloneProc(t, "Dockerfile")
	p, remote := newTestPipeline(proc)

	if err := p.Execute(context.Background(), executeParams(t)); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if p.State() != StateDone {
		t.Errorf("state = %v, want done", p.State())
	}

	// Spot-check the stage ordering through the remote command stream:
	// provisioning probes before deploy, deploy before proxy, proxy
	// before validation.
	joined := strings.Join(remote.CommandLog(), "\n")
	engineProbe := strings.Index(joined, "command -v docker")
	build := strings.Index(joined, "docker build")
	proxyWrite := strings.Index(joined, "tee /etc/nginx/sites-available/webapp")
	validate := strings.Index(joined, "systemctl is-active docker")
	if engineProbe == -1 || build == -1 || proxyWrite == -1 || validate == -1 {
		t.Fatalf("stage commands missing:\n%s", joined)
	}
	if !(engineProbe < build && build < proxyWrite && proxyWrite < validate) {
		t.Errorf("stage order wrong: probe=%d build=%d proxy=%d validate=%d",
			engineProbe, build, proxyWrite, validate)
	}
}

func TestExecute_WorkspaceRemovedOnSuccess(t *testing.T) {
	proc := fakeCloneProc(t, "Dockerfile")
	p, _ := newTestPipeline(proc)

	if err := p.Execute(context.Background(), executeParams(t)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	base := filepath.Dir(cloneDirOf(t, proc))
	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Errorf("workspace %s survived a successful run", base)
	}
}

func TestExecute_WorkspaceRemovedOnFailure(t *testing.T) {
	// Clone succeeds but the workspace holds no build descriptor, so
	// inspection fails after the workspace exists.
	proc := fakeCloneProc(t, "README.md")
	p, _ := newTestPipeline(proc)

	err := p.Execute(context.Background(), executeParams(t))
	if code := CodeOf(err); code != ExitNoBuildDescriptor {
		t.Fatalf("exit code = %d (err %v), want %d", code, err, ExitNoBuildDescriptor)
	}
	if p.State() != StateFailed {
		t.Errorf("state = %v, want failed", p.State())
	}

	base := filepath.Dir(cloneDirOf(t, proc))
	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Errorf("workspace %s survived a failed run", base)
	}
}

func TestExecute_TokenDestroyedOnEveryExit(t *testing.T) {
	// Success path.
	proc := fakeCloneProc(t, "Dockerfile")
	p, _ := newTestPipeline(proc)
	params := executeParams(t)
	if err := p.Execute(context.Background(), params); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if params.HasToken() {
		t.Error("token survived a successful run")
	}

	// Failure path.
	failProc := &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("clone failed")
		},
	}
	p2, _ := newTestPipeline(failProc)
	params2 := executeParams(t)
	if err := p2.Execute(context.Background(), params2); err == nil {
		t.Fatal("expected clone failure")
	}
	if params2.HasToken() {
		t.Error("token survived a failed run")
	}
}

func TestExecute_CloneFailureShortCircuits(t *testing.T) {
	proc := &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, errors.New("fatal: authentication failed")
		},
	}
	p, remote := newTestPipeline(proc)

	err := p.Execute(context.Background(), executeParams(t))
	if code := CodeOf(err); code != ExitCloneFailure {
		t.Fatalf("exit code = %d (err %v), want %d", code, err, ExitCloneFailure)
	}
	if len(remote.CommandLog()) != 0 {
		t.Errorf("remote commands issued after local clone failure: %v", remote.CommandLog())
	}
}

func TestExecute_FailureSurfacesCommandStderr(t *testing.T) {
	proc := &MockProcessManager{
		RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return nil, NewCommandError("git", 128, "fatal: could not read Username", nil)
		},
	}
	p, _ := newTestPipeline(proc)

	var out bytes.Buffer
	ux.SetWriter(&out)
	defer ux.SetWriter(os.Stdout)

	if err := p.Execute(context.Background(), executeParams(t)); err == nil {
		t.Fatal("expected clone failure")
	}
	if !strings.Contains(out.String(), "fatal: could not read Username") {
		t.Errorf("command stderr not shown to the operator: %q", out.String())
	}
}

func TestExecute_UnreachableHostShortCircuits(t *testing.T) {
	proc := fakeCloneProc(t, "Dockerfile")
	p, remote := newTestPipeline(proc)
	remote.ProbeFunc = func(ctx context.Context) error {
		return errors.New("connection timed out")
	}

	err := p.Execute(context.Background(), executeParams(t))
	if code := CodeOf(err); code != ExitSSHUnreachable {
		t.Fatalf("exit code = %d (err %v), want %d", code, err, ExitSSHUnreachable)
	}
	if len(remote.CommandLog()) != 0 {
		t.Errorf("remote commands issued after failed probe: %v", remote.CommandLog())
	}
}

func TestExecute_FixedWorkDirSurvivesRun(t *testing.T) {
	workDir := t.TempDir()
	proc := fakeCloneProc(t, "Dockerfile")

	remote := &MockRemoteExecutor{RunFunc: runningListing("webapp")}
	collector := NewParameterCollectorWithIO(strings.NewReader(""), &bytes.Buffer{})
	p := NewPipeline(collector, proc, testLogger(), workDir)
	p.sleep = func(time.Duration) {}
	p.newRemote = func(user, host, keyPath string) RemoteExecutor { return remote }

	if err := p.Execute(context.Background(), executeParams(t)); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	dir := filepath.Join(workDir, "webapp")
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("fixed workspace %s removed: %v", dir, err)
	}
}

func TestExecuteCleanup_ProbesThenTearsDown(t *testing.T) {
	p, remote := newTestPipeline(&MockProcessManager{})

	params := deployParams()
	if err := p.ExecuteCleanup(context.Background(), params); err != nil {
		t.Fatalf("ExecuteCleanup: %v", err)
	}
	if p.State() != StateDone {
		t.Errorf("state = %v, want done", p.State())
	}
	joined := strings.Join(remote.CommandLog(), "\n")
	if !strings.Contains(joined, "docker rmi webapp:latest") {
		t.Errorf("teardown not executed: %s", joined)
	}
}

func TestExecuteCleanup_UnreachableHost(t *testing.T) {
	p, remote := newTestPipeline(&MockProcessManager{})
	remote.ProbeFunc = func(ctx context.Context) error {
		return errors.New("no route to host")
	}

	err := p.ExecuteCleanup(context.Background(), deployParams())
	if code := CodeOf(err); code != ExitSSHUnreachable {
		t.Errorf("exit code = %d (err %v), want %d", code, err, ExitSSHUnreachable)
	}
}

func TestPipelineState_String(t *testing.T) {
	states := map[PipelineState]string{
		StateCollectingParams:  "collecting parameters",
		StateCloning:           "cloning repository",
		StateDeploying:         "deploying",
		StateDone:              "done",
		StateFailed:            "failed",
		PipelineState(99):      "unknown",
	}
	for state, want := range states {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
