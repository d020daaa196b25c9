// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// ParameterCollector gathers DeploymentParameters interactively.
//
// # Prompt Order
//
// Fixed: repo URL, access token (input not echoed), branch, SSH
// username, server address, SSH key path, application port.
//
// # Retry Policy
//
// Each validated field is re-prompted in a loop until it passes; there
// is no attempt limit in interactive mode. An empty token or username
// is immediately fatal with its dedicated exit code - no retry. The
// fail-fast path for scripted runs is the config-file mode, not this
// collector.
type ParameterCollector struct {
	in  *bufio.Reader
	out io.Writer

	// readSecret reads one line without echoing. Defaults to
	// term.ReadPassword on the real stdin; tests substitute a plain
	// line reader.
	readSecret func() (string, error)
}

// NewParameterCollector creates a collector on real stdin/stdout.
func NewParameterCollector() *ParameterCollector {
	c := NewParameterCollectorWithIO(os.Stdin, os.Stdout)
	c.readSecret = func() (string, error) {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return c
}

// NewParameterCollectorWithIO creates a collector with injected
// streams. The secret reader falls back to a plain (echoed) line read,
// which is what tests want.
func NewParameterCollectorWithIO(in io.Reader, out io.Writer) *ParameterCollector {
	c := &ParameterCollector{
		in:  bufio.NewReader(in),
		out: out,
	}
	c.readSecret = c.readLine
	return c
}

// Collect runs the full interactive prompt sequence and returns a
// validated parameter set. Fatal failures (empty token, empty
// username) return a StageError carrying their exit code.
func (c *ParameterCollector) Collect(ctx context.Context) (*DeploymentParameters, error) {
	params := &DeploymentParameters{}

	repoURL, err := c.promptValidated(ctx, "Repository URL", ValidateURL)
	if err != nil {
		return nil, err
	}
	params.RepoURL = repoURL

	fmt.Fprint(c.out, "Access token (input hidden): ")
	token, err := c.readSecret()
	fmt.Fprintln(c.out)
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}
	if err := params.SetToken(token); err != nil {
		return nil, fatal("collecting parameters", ExitEmptyToken, err)
	}

	branch, err := c.prompt(ctx, "Branch [main]")
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = "main"
	}
	params.Branch = branch

	username, err := c.prompt(ctx, "SSH username")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(username) == "" {
		return nil, fatal("collecting parameters", ExitEmptyUsername, ErrEmptyUsername)
	}
	params.Username = username

	addr, err := c.promptValidated(ctx, "Server address", ValidateIPv4)
	if err != nil {
		return nil, err
	}
	params.ServerAddr = addr

	keyPath, err := c.promptValidated(ctx, "SSH key path", ValidateKeyPath)
	if err != nil {
		return nil, err
	}
	params.KeyPath = keyPath

	portStr, err := c.promptValidated(ctx, "Application port", ValidatePort)
	if err != nil {
		return nil, err
	}
	port, _ := strconv.Atoi(portStr)
	params.AppPort = port

	return params, nil
}

// CollectCleanupTarget gathers the reduced parameter set for cleanup
// mode: server address, username, key path, and the repository URL the
// deployment name derives from. No token, branch, or port.
func (c *ParameterCollector) CollectCleanupTarget(ctx context.Context) (*DeploymentParameters, error) {
	params := &DeploymentParameters{Branch: "main", AppPort: 1}

	repoURL, err := c.promptValidated(ctx, "Repository URL", ValidateURL)
	if err != nil {
		return nil, err
	}
	params.RepoURL = repoURL

	username, err := c.prompt(ctx, "SSH username")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(username) == "" {
		return nil, fatal("collecting parameters", ExitEmptyUsername, ErrEmptyUsername)
	}
	params.Username = username

	addr, err := c.promptValidated(ctx, "Server address", ValidateIPv4)
	if err != nil {
		return nil, err
	}
	params.ServerAddr = addr

	keyPath, err := c.promptValidated(ctx, "SSH key path", ValidateKeyPath)
	if err != nil {
		return nil, err
	}
	params.KeyPath = keyPath

	return params, nil
}

// promptValidated loops until validate accepts the input. Context
// cancellation (interrupt) breaks the loop.
func (c *ParameterCollector) promptValidated(ctx context.Context, label string, validate func(string) error) (string, error) {
	for {
		value, err := c.prompt(ctx, label)
		if err != nil {
			return "", err
		}
		if vErr := validate(value); vErr != nil {
			fmt.Fprintf(c.out, "  invalid: %v\n", vErr)
			continue
		}
		return value, nil
	}
}

func (c *ParameterCollector) prompt(ctx context.Context, label string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintf(c.out, "%s: ", label)
	return c.readLine()
}

func (c *ParameterCollector) readLine() (string, error) {
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
