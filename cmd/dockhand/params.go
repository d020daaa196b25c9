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
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/awnumar/memguard"
	"github.com/go-playground/validator/v10"
)

// Validation errors surfaced to the prompt loop.
var (
	ErrInvalidURL     = errors.New("URL must start with http:// or https://")
	ErrInvalidIPv4    = errors.New("address must be four dot-separated digit groups")
	ErrInvalidPort    = errors.New("port must be a number between 1 and 65535")
	ErrKeyNotFound    = errors.New("key file does not exist or is not a regular file")
	ErrEmptyToken     = errors.New("access token must not be empty")
	ErrEmptyUsername  = errors.New("ssh username must not be empty")
	ErrTokenDestroyed = errors.New("access token already destroyed")
)

var (
	urlPattern = regexp.MustCompile(`^https?://`)

	// ipv4Pattern accepts four dot-separated groups of 1-3 digits. It
	// does NOT bound each octet at 255; "999.1.1.1" passes. Downstream
	// ssh targeting depends on this accepted input space, so the laxity
	// is preserved rather than silently tightened.
	ipv4Pattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

	portPattern = regexp.MustCompile(`^\d+$`)
)

// ValidateURL succeeds iff s begins with http:// or https://. No
// further structural parsing is performed.
func ValidateURL(s string) error {
	if !urlPattern.MatchString(s) {
		return ErrInvalidURL
	}
	return nil
}

// ValidateIPv4 succeeds iff s matches four dot-separated groups of
// 1-3 digits. See ipv4Pattern for the deliberate octet laxity.
func ValidateIPv4(s string) error {
	if !ipv4Pattern.MatchString(s) {
		return ErrInvalidIPv4
	}
	return nil
}

// ValidatePort succeeds iff s is all-digit and in [1, 65535].
func ValidatePort(s string) error {
	if !portPattern.MatchString(s) {
		return ErrInvalidPort
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 || n > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// ValidateKeyPath succeeds iff the expanded path names an existing
// regular file. A leading ~ resolves to the home directory.
func ValidateKeyPath(s string) error {
	info, err := os.Stat(ExpandPath(s))
	if err != nil || !info.Mode().IsRegular() {
		return ErrKeyNotFound
	}
	return nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(p string) string {
	if len(p) > 0 && p[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

// DeploymentParameters holds every validated input for one run. The
// token lives in a memguard LockedBuffer for the run's duration and is
// never logged or written to disk.
type DeploymentParameters struct {
	RepoURL    string `validate:"required,deployurl"`
	Branch     string `validate:"required"`
	Username   string `validate:"required"`
	ServerAddr string `validate:"required,laxipv4"`
	KeyPath    string `validate:"required,keyfile"`
	AppPort    int    `validate:"required,min=1,max=65535"`

	token *memguard.LockedBuffer
}

// newParamsValidator registers the custom rules backing the struct tags
// above on a fresh validator instance.
func newParamsValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("deployurl", func(fl validator.FieldLevel) bool {
		return ValidateURL(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("laxipv4", func(fl validator.FieldLevel) bool {
		return ValidateIPv4(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("keyfile", func(fl validator.FieldLevel) bool {
		return ValidateKeyPath(fl.Field().String()) == nil
	})
	return v
}

// Validate checks every field. The token is checked separately because
// emptiness there is immediately fatal rather than re-promptable.
func (p *DeploymentParameters) Validate() error {
	return newParamsValidator().Struct(p)
}

// SetToken seals the access token into locked memory. An empty token
// is rejected; the caller maps that to the empty-token exit code.
func (p *DeploymentParameters) SetToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrEmptyToken
	}
	p.token = memguard.NewBufferFromBytes([]byte(token))
	return nil
}

// Token returns the plaintext token for the single operation that
// needs it (URL authority embedding). Callers must not retain it.
func (p *DeploymentParameters) Token() (string, error) {
	if p.token == nil || !p.token.IsAlive() {
		return "", ErrTokenDestroyed
	}
	return p.token.String(), nil
}

// HasToken reports whether a token was supplied and is still sealed.
func (p *DeploymentParameters) HasToken() bool {
	return p.token != nil && p.token.IsAlive()
}

// DestroyToken wipes the token from memory. Safe to call repeatedly;
// the pipeline controller calls it on every exit path.
func (p *DeploymentParameters) DestroyToken() {
	if p.token != nil {
		p.token.Destroy()
	}
}

// DeploymentName derives the deterministic identifier from the
// repository URL: the final path segment with any .git suffix removed.
// It keys the container name, compose project, remote directory, and
// proxy site across the whole pipeline.
func (p *DeploymentParameters) DeploymentName() string {
	return DeploymentNameFromURL(p.RepoURL)
}

// DeploymentNameFromURL implements the name derivation for callers
// that have no full parameter set (cleanup mode).
func DeploymentNameFromURL(repoURL string) string {
	trimmed := strings.TrimSuffix(repoURL, "/")
	name := path.Base(trimmed)
	name = strings.TrimSuffix(name, ".git")
	return strings.ToLower(name)
}

// KeyPathExpanded returns the key path with ~ resolved, as handed to
// ssh and rsync.
func (p *DeploymentParameters) KeyPathExpanded() string {
	return ExpandPath(p.KeyPath)
}

// Describe returns a loggable summary. The token never appears here.
func (p *DeploymentParameters) Describe() string {
	return fmt.Sprintf("repo=%s branch=%s target=%s@%s port=%d",
		SanitizeURL(p.RepoURL), p.Branch, p.Username, p.ServerAddr, p.AppPort)
}
