// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullFile(t *testing.T) {
	cfg, err := Parse([]byte(`
repo_url: https://github.com/acme/webapp.git
branch: release
username: deploy
server_addr: 192.0.2.10
key_path: ~/.ssh/id_ed25519
app_port: 3000
token_env: ACME_DEPLOY_TOKEN
work_dir: ~/.dockhand/work
`))
	require.NoError(t, err)

	assert.Equal(t, "https://github.com/acme/webapp.git", cfg.RepoURL)
	assert.Equal(t, "release", cfg.Branch)
	assert.Equal(t, "deploy", cfg.Username)
	assert.Equal(t, "192.0.2.10", cfg.ServerAddr)
	assert.Equal(t, "~/.ssh/id_ed25519", cfg.KeyPath)
	assert.Equal(t, 3000, cfg.AppPort)
	assert.Equal(t, "ACME_DEPLOY_TOKEN", cfg.TokenEnv)
	assert.Equal(t, "~/.dockhand/work", cfg.WorkDir)
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
repo_url: https://github.com/acme/webapp.git
username: deploy
server_addr: 192.0.2.10
key_path: /home/op/.ssh/key
app_port: 8080
`))
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Branch, "branch should default to main")
	assert.Equal(t, DefaultTokenEnv, cfg.TokenEnv)
	assert.Empty(t, cfg.WorkDir, "work_dir has no default; ephemeral is the norm")
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte(`
repo_url: https://github.com/acme/webapp.git
sevrer_addr: 192.0.2.10
`))
	require.Error(t, err, "typoed key must fail loudly")
}

func TestParse_EmptyFile(t *testing.T) {
	_, err := Parse([]byte(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"repo_url: https://github.com/acme/webapp.git\napp_port: 80\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.AppPort)
}

func TestToken(t *testing.T) {
	cfg := &Deployment{TokenEnv: "DOCKHAND_TEST_TOKEN"}

	t.Setenv("DOCKHAND_TEST_TOKEN", "tok123")
	tok, err := cfg.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok123", tok)

	t.Setenv("DOCKHAND_TEST_TOKEN", "")
	_, err = cfg.Token()
	require.ErrorIs(t, err, ErrTokenEnvUnset)
}
