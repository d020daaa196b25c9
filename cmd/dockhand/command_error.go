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
	"os/exec"
	"strings"
)

// CommandError wraps an external command failure with stderr context.
//
// # Description
//
// Every side effect in dockhand is a shell-out (git, ssh, rsync, and
// the remote docker/nginx commands issued over ssh). CommandError
// preserves which command failed, its exit code, and its stderr so the
// pipeline can log a useful cause before aborting.
//
// # Example
//
//	err := NewCommandError("git clone", 128, "fatal: repository not found", origErr)
//	fmt.Println(err.Error()) // "git clone (exit 128): fatal: repository not found"
type CommandError struct {
	// Command is the command that was executed, sanitized of secrets.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr contains the standard error output.
	Stderr string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted error message including stderr if available.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error so errors.Is/As work through
// the chain.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr returns true if stderr output is available.
func (e *CommandError) HasStderr() bool {
	return e.Stderr != ""
}

// NewCommandError creates a CommandError with full context. Stderr is
// trimmed of surrounding whitespace.
func NewCommandError(cmd string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExitStatusOf extracts the process exit status from an error chain.
// Returns -1 when the error carries no exit status (e.g. the binary
// was not found).
func ExitStatusOf(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// ExtractStderr walks the error chain looking for captured stderr.
// Returns the first stderr found, or empty string if none.
func ExtractStderr(err error) string {
	for err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.HasStderr() {
			return cmdErr.Stderr
		}
		err = errors.Unwrap(err)
	}
	return ""
}
