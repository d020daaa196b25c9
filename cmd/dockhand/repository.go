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
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dockhand-sh/dockhand/pkg/logging"
)

// tokenHosts are the forge hosts for which the access token is
// embedded into the clone URL's authority component. The embedding is
// per-operation: the tokened URL is handed to git and discarded, never
// persisted or logged.
var tokenHosts = map[string]bool{
	"github.com":    true,
	"gitlab.com":    true,
	"bitbucket.org": true,
}

// RepositoryStage obtains a working copy of the application source at
// a specific branch inside the run's ephemeral workspace.
type RepositoryStage interface {
	// Checkout clones (or updates, if a checkout already exists at the
	// target path) the repository branch into dir. Any failure -
	// network, auth, branch not found - is fatal to the pipeline.
	Checkout(ctx context.Context, params *DeploymentParameters, dir string) error
}

// DefaultRepositoryStage implements RepositoryStage with the git CLI.
type DefaultRepositoryStage struct {
	proc ProcessManager
	log  *logging.Logger
}

// NewDefaultRepositoryStage creates the production repository stage.
func NewDefaultRepositoryStage(proc ProcessManager, log *logging.Logger) *DefaultRepositoryStage {
	return &DefaultRepositoryStage{proc: proc, log: log}
}

// Checkout produces dir containing the checked-out branch.
//
// If dir already holds a git checkout, it is updated in place (fetch,
// checkout, pull). With the default per-run temp workspace this branch
// only fires when a fixed work_dir is configured; it is what makes the
// cross-run cache converge instead of fail.
func (s *DefaultRepositoryStage) Checkout(ctx context.Context, params *DeploymentParameters, dir string) error {
	cloneURL := params.RepoURL
	if params.HasToken() {
		token, err := params.Token()
		if err != nil {
			return fatal("cloning repository", ExitCloneFailure, err)
		}
		cloneURL = authenticatedURL(params.RepoURL, token)
	}

	if isGitCheckout(dir) {
		s.log.Info("existing checkout found, updating in place",
			"dir", dir, "branch", params.Branch)
		return s.update(ctx, params, dir, cloneURL)
	}

	s.log.Info("cloning repository",
		"url", SanitizeURL(params.RepoURL), "branch", params.Branch)

	// Full clone at the requested branch; not shallow.
	_, err := s.proc.Run(ctx, "git", "clone", "--branch", params.Branch, cloneURL, dir)
	if err != nil {
		return fatal("cloning repository", ExitCloneFailure,
			fmt.Errorf("git clone of %s: %w", SanitizeURL(params.RepoURL), redactFromError(err, token(params))))
	}

	// Git persists the clone URL verbatim into .git/config. Reset the
	// origin to the credential-free URL immediately so the token never
	// outlives this operation on disk, ephemeral workspace or not.
	_, err = s.proc.Run(ctx, "git", "-C", dir, "remote", "set-url", "origin", SanitizeURL(params.RepoURL))
	if err != nil {
		return fatal("cloning repository", ExitCloneFailure,
			fmt.Errorf("resetting origin URL: %w", redactFromError(err, token(params))))
	}
	return nil
}

// update refreshes an existing checkout. The tokened URL is handed to
// fetch per-operation instead of being stored on the origin remote, so
// a persistent workspace never holds the credential.
func (s *DefaultRepositoryStage) update(ctx context.Context, params *DeploymentParameters, dir, cloneURL string) error {
	steps := [][]string{
		{"-C", dir, "fetch", cloneURL, params.Branch},
		{"-C", dir, "checkout", params.Branch},
		{"-C", dir, "reset", "--hard", "FETCH_HEAD"},
	}
	for _, args := range steps {
		if _, err := s.proc.Run(ctx, "git", args...); err != nil {
			return fatal("updating repository", ExitCloneFailure,
				fmt.Errorf("git %s: %w", args[2], redactFromError(err, token(params))))
		}
	}
	return nil
}

// isGitCheckout reports whether dir contains a prior checkout.
func isGitCheckout(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && info.IsDir()
}

// authenticatedURL embeds the token into the URL's authority component
// for recognized forge hosts. Unrecognized hosts get the URL untouched.
func authenticatedURL(rawURL, tok string) string {
	u, err := url.Parse(rawURL)
	if err != nil || !tokenHosts[u.Hostname()] {
		return rawURL
	}
	u.User = url.UserPassword("oauth2", tok)
	return u.String()
}

// SanitizeURL strips any userinfo from a URL so it can be logged.
func SanitizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.User = nil
	return u.String()
}

// token returns the plaintext token or "" - helper for error redaction.
func token(params *DeploymentParameters) string {
	if !params.HasToken() {
		return ""
	}
	t, err := params.Token()
	if err != nil {
		return ""
	}
	return t
}

// redactFromError replaces the token inside git's error output. Git
// echoes the remote URL (authority included) in many failure messages.
func redactFromError(err error, tok string) error {
	if err == nil || tok == "" {
		return err
	}
	msg := err.Error()
	redacted := strings.ReplaceAll(msg, tok, "[REDACTED]")
	if redacted == msg {
		return err
	}
	return fmt.Errorf("%s", redacted)
}
