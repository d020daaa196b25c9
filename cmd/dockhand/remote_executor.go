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
	"sync"
)

// sshConnectTimeout bounds the initial reachability probe. Operational
// commands after the probe run unbounded: package installs and image
// builds legitimately take minutes.
const sshConnectTimeout = "10"

// RemoteExecutor issues commands on the fixed target host.
//
// # Description
//
// All remote side effects funnel through this one primitive: a command
// string sent over ssh to the (host, user, keyPath) established at
// startup. Workspace mirroring goes through the same identity via
// rsync. Authentication is key-based only.
//
// # Trust Model
//
// Probe uses accept-new host-key checking (trust on first use).
// Operational commands after a successful probe disable host-key
// verification entirely. This is a deliberate single-operator trade-off
// inherited from the tool's design, not an omission.
type RemoteExecutor interface {
	// Probe verifies the host is reachable over ssh within the bounded
	// connect timeout. Must succeed before any other method is used.
	Probe(ctx context.Context) error

	// Run executes a command string on the remote host and returns its
	// stdout. No timeout is applied; long operations are expected.
	Run(ctx context.Context, command string) ([]byte, error)

	// RunWithInput executes a remote command with data piped to its
	// stdin. Used to stream generated files to the host.
	RunWithInput(ctx context.Context, command string, input []byte) ([]byte, error)

	// Upload mirrors localDir to remoteDir with delete-extraneous
	// semantics: remote files not present locally are removed.
	Upload(ctx context.Context, localDir, remoteDir string) error

	// Target returns "user@host" for logging and display.
	Target() string
}

// DefaultRemoteExecutor implements RemoteExecutor by shelling out to
// the system ssh and rsync binaries through a ProcessManager.
type DefaultRemoteExecutor struct {
	proc    ProcessManager
	user    string
	host    string
	keyPath string
}

// NewDefaultRemoteExecutor creates an executor bound to one host.
//
// # Inputs
//
//   - proc: ProcessManager for local subprocess execution (required)
//   - user: SSH username
//   - host: Server address
//   - keyPath: Path to the private key file (already validated)
func NewDefaultRemoteExecutor(proc ProcessManager, user, host, keyPath string) *DefaultRemoteExecutor {
	return &DefaultRemoteExecutor{
		proc:    proc,
		user:    user,
		host:    host,
		keyPath: keyPath,
	}
}

// Target returns "user@host".
func (e *DefaultRemoteExecutor) Target() string {
	return fmt.Sprintf("%s@%s", e.user, e.host)
}

// Probe verifies ssh reachability with a bounded connect timeout.
func (e *DefaultRemoteExecutor) Probe(ctx context.Context) error {
	args := []string{
		"-i", e.keyPath,
		"-o", "BatchMode=yes",
		"-o", "ConnectTimeout=" + sshConnectTimeout,
		"-o", "StrictHostKeyChecking=accept-new",
		e.Target(),
		"echo ok",
	}
	if _, err := e.proc.Run(ctx, "ssh", args...); err != nil {
		return fmt.Errorf("ssh probe to %s failed: %w", e.Target(), err)
	}
	return nil
}

// Run executes a command string on the remote host.
func (e *DefaultRemoteExecutor) Run(ctx context.Context, command string) ([]byte, error) {
	return e.proc.Run(ctx, "ssh", e.operationalArgs(command)...)
}

// RunWithInput executes a remote command with data piped to stdin.
func (e *DefaultRemoteExecutor) RunWithInput(ctx context.Context, command string, input []byte) ([]byte, error) {
	return e.proc.RunWithInput(ctx, "ssh", input, e.operationalArgs(command)...)
}

// operationalArgs builds the ssh argument vector for post-probe
// commands. Host-key verification is disabled here; the probe already
// pinned trust for this run.
func (e *DefaultRemoteExecutor) operationalArgs(command string) []string {
	return []string{
		"-i", e.keyPath,
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "LogLevel=ERROR",
		e.Target(),
		command,
	}
}

// Upload mirrors localDir to remoteDir using rsync with delete-extraneous
// semantics so redeploys reflect the exact current source tree.
func (e *DefaultRemoteExecutor) Upload(ctx context.Context, localDir, remoteDir string) error {
	sshTransport := fmt.Sprintf(
		"ssh -i %s -o BatchMode=yes -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null -o LogLevel=ERROR",
		e.keyPath,
	)
	args := []string{
		"-az",
		"--delete",
		"-e", sshTransport,
		strings.TrimSuffix(localDir, "/") + "/",
		fmt.Sprintf("%s:%s/", e.Target(), strings.TrimSuffix(remoteDir, "/")),
	}
	if _, err := e.proc.Run(ctx, "rsync", args...); err != nil {
		return fmt.Errorf("rsync to %s failed: %w", e.Target(), err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Mock Implementation for Testing
// -----------------------------------------------------------------------------

// MockRemoteExecutor is a test double for RemoteExecutor. Remote
// command strings are recorded in order, letting tests assert on the
// exact sequence a stage issued.
type MockRemoteExecutor struct {
	ProbeFunc        func(ctx context.Context) error
	RunFunc          func(ctx context.Context, command string) ([]byte, error)
	RunWithInputFunc func(ctx context.Context, command string, input []byte) ([]byte, error)
	UploadFunc       func(ctx context.Context, localDir, remoteDir string) error

	// Commands records every Run/RunWithInput command string in order.
	Commands []string

	// Uploads records localDir -> remoteDir pairs.
	Uploads [][2]string

	mu sync.Mutex
}

// Probe delegates to ProbeFunc (success if unset).
func (m *MockRemoteExecutor) Probe(ctx context.Context) error {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx)
	}
	return nil
}

// Run records the command and delegates to RunFunc (success if unset).
func (m *MockRemoteExecutor) Run(ctx context.Context, command string) ([]byte, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, command)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, command)
	}
	return nil, nil
}

// RunWithInput records the command and delegates to RunWithInputFunc.
func (m *MockRemoteExecutor) RunWithInput(ctx context.Context, command string, input []byte) ([]byte, error) {
	m.mu.Lock()
	m.Commands = append(m.Commands, command)
	m.mu.Unlock()
	if m.RunWithInputFunc != nil {
		return m.RunWithInputFunc(ctx, command, input)
	}
	return nil, nil
}

// Upload records the transfer and delegates to UploadFunc.
func (m *MockRemoteExecutor) Upload(ctx context.Context, localDir, remoteDir string) error {
	m.mu.Lock()
	m.Uploads = append(m.Uploads, [2]string{localDir, remoteDir})
	m.mu.Unlock()
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, localDir, remoteDir)
	}
	return nil
}

// Target returns a fixed test identity.
func (m *MockRemoteExecutor) Target() string {
	return "deploy@192.0.2.10"
}

// CommandLog returns a copy of the recorded remote commands.
func (m *MockRemoteExecutor) CommandLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]string, len(m.Commands))
	copy(result, m.Commands)
	return result
}

// Compile-time interface compliance check.
var (
	_ RemoteExecutor = (*DefaultRemoteExecutor)(nil)
	_ RemoteExecutor = (*MockRemoteExecutor)(nil)
)
