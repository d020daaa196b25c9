// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the deployment file used by scripted runs. The
// file carries everything the interactive prompts would ask for except
// the access token, which is read from an environment variable so it
// never lands on disk.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultTokenEnv is the environment variable the token is read from
// when the file does not name one.
const DefaultTokenEnv = "DOCKHAND_TOKEN"

// ErrTokenEnvUnset means the configured token variable is empty or
// missing from the environment.
var ErrTokenEnvUnset = errors.New("token environment variable is not set")

// Deployment mirrors the interactive parameter set for scripted runs.
// Unknown keys in the file are rejected so typos fail loudly instead of
// silently falling back to defaults.
type Deployment struct {
	RepoURL    string `yaml:"repo_url"`
	Branch     string `yaml:"branch"`
	Username   string `yaml:"username"`
	ServerAddr string `yaml:"server_addr"`
	KeyPath    string `yaml:"key_path"`
	AppPort    int    `yaml:"app_port"`

	// TokenEnv names the environment variable holding the access token.
	TokenEnv string `yaml:"token_env"`

	// WorkDir, when set, is a fixed workspace reused across runs. The
	// checkout there is updated in place instead of re-cloned, and the
	// directory is kept after the run.
	WorkDir string `yaml:"work_dir"`
}

// Load reads and decodes a deployment file, applying defaults for
// branch and token variable.
func Load(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes deployment YAML. Split from Load for tests.
func Parse(data []byte) (*Deployment, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Deployment
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config file is empty")
		}
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.TokenEnv == "" {
		cfg.TokenEnv = DefaultTokenEnv
	}
	return &cfg, nil
}

// Token reads the access token from the configured environment
// variable.
func (d *Deployment) Token() (string, error) {
	value := os.Getenv(d.TokenEnv)
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrTokenEnvUnset, d.TokenEnv)
	}
	return value, nil
}
