// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package main implements the dockhand deployment pipeline.

ProcessManager abstracts local subprocess execution. Every side effect
in the pipeline is a shell-out: git and rsync run locally, and the
docker, nginx, and package-manager commands run remotely through ssh
(itself a local subprocess, see RemoteExecutor). All exec.Command calls
go through this one interface so stages are testable by substituting
MockProcessManager.
*/
package main

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
)

// ProcessManager executes local subprocesses.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use, although the
// pipeline itself is strictly sequential.
//
// # Context Handling
//
// Run respects context cancellation; long-running operations (clones,
// image builds over ssh) run without a deadline unless the caller
// attaches one.
type ProcessManager interface {
	// Run executes a command synchronously and returns its stdout.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation
	//   - name: The executable name or path
	//   - args: Command arguments (variadic)
	//
	// # Outputs
	//
	//   - []byte: Standard output
	//   - error: *CommandError carrying exit status and stderr on failure
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInput executes a command with data piped to stdin. Used to
	// stream generated proxy configs to a remote tee without touching
	// the local filesystem.
	RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)
}

// DefaultProcessManager implements ProcessManager using os/exec.
type DefaultProcessManager struct{}

// NewDefaultProcessManager creates the production ProcessManager.
func NewDefaultProcessManager() *DefaultProcessManager {
	return &DefaultProcessManager{}
}

// Run executes a command synchronously and returns its stdout.
func (pm *DefaultProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), NewCommandError(name, exitStatus(err), stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// RunWithInput executes a command with data piped to stdin.
func (pm *DefaultProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), NewCommandError(name, exitStatus(err), stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

// exitStatus pulls the exit code out of an exec error, -1 if unknown.
func exitStatus(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockProcessManager is a test double for ProcessManager.
//
// Configure the mock by setting function fields before use. If a
// function field is nil and the corresponding method is called, it
// panics. All invocations are recorded for verification.
//
// # Examples
//
//	mock := &MockProcessManager{
//	    RunFunc: func(ctx context.Context, name string, args ...string) ([]byte, error) {
//	        if name == "git" {
//	            return nil, nil
//	        }
//	        return nil, fmt.Errorf("unexpected command: %s", name)
//	    },
//	}
type MockProcessManager struct {
	// RunFunc is called when Run is invoked.
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	// RunWithInputFunc is called when RunWithInput is invoked.
	RunWithInputFunc func(ctx context.Context, name string, input []byte, args ...string) ([]byte, error)

	// Calls records all method invocations for verification.
	Calls []ProcessCall

	mu sync.Mutex
}

// ProcessCall records a single method invocation.
type ProcessCall struct {
	Method string
	Name   string
	Args   []string
	Input  []byte
}

// Line renders the call as a single command line, convenient for
// asserting on issued commands.
func (c ProcessCall) Line() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Run delegates to RunFunc and records the call.
func (m *MockProcessManager) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.record(ProcessCall{Method: "Run", Name: name, Args: args})
	if m.RunFunc == nil {
		panic("MockProcessManager.RunFunc not set")
	}
	return m.RunFunc(ctx, name, args...)
}

// RunWithInput delegates to RunWithInputFunc and records the call.
func (m *MockProcessManager) RunWithInput(ctx context.Context, name string, input []byte, args ...string) ([]byte, error) {
	m.record(ProcessCall{Method: "RunWithInput", Name: name, Args: args, Input: input})
	if m.RunWithInputFunc == nil {
		panic("MockProcessManager.RunWithInputFunc not set")
	}
	return m.RunWithInputFunc(ctx, name, input, args...)
}

func (m *MockProcessManager) record(call ProcessCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

// GetCalls returns a copy of all recorded calls.
func (m *MockProcessManager) GetCalls() []ProcessCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]ProcessCall, len(m.Calls))
	copy(result, m.Calls)
	return result
}

// Reset clears all recorded calls.
func (m *MockProcessManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*DefaultProcessManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
