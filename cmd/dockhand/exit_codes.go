// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
)

// ExitCode identifies the fatal failure kind of a pipeline run. An
// external supervisor can distinguish failure causes by code alone.
type ExitCode int

// Exit codes, one per fatal stage. Code 0 is success; everything else
// maps to the specific check or operation that aborted the pipeline.
const (
	ExitOK                  ExitCode = 0
	ExitGeneral             ExitCode = 1
	ExitEmptyToken          ExitCode = 2
	ExitEmptyUsername       ExitCode = 3
	ExitCloneFailure        ExitCode = 4
	ExitWorkspaceNav        ExitCode = 5
	ExitNoBuildDescriptor   ExitCode = 6
	ExitSSHUnreachable      ExitCode = 7
	ExitEngineInstall       ExitCode = 8
	ExitComposeInstall      ExitCode = 9
	ExitProxyInstall        ExitCode = 10
	ExitFileTransfer        ExitCode = 11
	ExitComposeDeploy       ExitCode = 12
	ExitImageBuild          ExitCode = 13
	ExitContainerRun        ExitCode = 14
	ExitContainerNotRunning ExitCode = 15
	ExitProxyConfigWrite    ExitCode = 16
	ExitProxyConfigTest     ExitCode = 17
	ExitProxyReload         ExitCode = 18
	ExitEngineNotActive     ExitCode = 19
	ExitContainerMissing    ExitCode = 20
	ExitProxyNotActive      ExitCode = 21
)

// String returns a short machine-friendly name for the code.
func (c ExitCode) String() string {
	switch c {
	case ExitOK:
		return "ok"
	case ExitGeneral:
		return "general"
	case ExitEmptyToken:
		return "empty-token"
	case ExitEmptyUsername:
		return "empty-username"
	case ExitCloneFailure:
		return "clone-failure"
	case ExitWorkspaceNav:
		return "workspace-navigation"
	case ExitNoBuildDescriptor:
		return "no-build-descriptor"
	case ExitSSHUnreachable:
		return "ssh-unreachable"
	case ExitEngineInstall:
		return "engine-install"
	case ExitComposeInstall:
		return "compose-tool-install"
	case ExitProxyInstall:
		return "proxy-install"
	case ExitFileTransfer:
		return "file-transfer"
	case ExitComposeDeploy:
		return "compose-deploy"
	case ExitImageBuild:
		return "image-build"
	case ExitContainerRun:
		return "container-run"
	case ExitContainerNotRunning:
		return "container-not-running"
	case ExitProxyConfigWrite:
		return "proxy-config-write"
	case ExitProxyConfigTest:
		return "proxy-config-test"
	case ExitProxyReload:
		return "proxy-reload"
	case ExitEngineNotActive:
		return "engine-not-active"
	case ExitContainerMissing:
		return "container-missing"
	case ExitProxyNotActive:
		return "proxy-not-active"
	default:
		return "unknown"
	}
}

// StageError is a fatal stage failure carrying the exit code bound to
// the failed operation. The Pipeline Controller converts it into the
// process exit status; it is never used for advisory failures.
type StageError struct {
	// Stage is the pipeline stage that failed (for logging).
	Stage string

	// Code is the process exit code bound to this failure kind.
	Code ExitCode

	// Err is the underlying cause.
	Err error
}

// Error returns "stage: cause (exit N)".
func (e *StageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (exit %d)", e.Stage, e.Err, e.Code)
	}
	return fmt.Sprintf("%s (exit %d)", e.Stage, e.Code)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// fatal wraps err as a StageError with the given stage and code.
func fatal(stage string, code ExitCode, err error) *StageError {
	return &StageError{Stage: stage, Code: code, Err: err}
}

// CodeOf extracts the exit code from an error chain. Errors that carry
// no StageError map to the general failure code.
func CodeOf(err error) ExitCode {
	if err == nil {
		return ExitOK
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Code
	}
	return ExitGeneral
}
