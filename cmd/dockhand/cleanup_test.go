// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestTeardown_RemovesAllArtifacts(t *testing.T) {
	mock := &MockRemoteExecutor{}
	stage := NewDefaultTeardownStage(mock, "deploy", testLogger())

	if err := stage.Teardown(context.Background(), deployParams()); err != nil {
		t.Fatalf("Teardown: %v", err)
	}

	joined := strings.Join(mock.CommandLog(), "\n")
	for _, want := range []string{
		"docker compose down --remove-orphans",
		"docker stop webapp",
		"docker rm webapp",
		"docker rmi webapp:latest",
		"rm -f /etc/nginx/sites-enabled/webapp /etc/nginx/sites-available/webapp",
		"rm -rf ~/apps/webapp",
		"systemctl reload nginx",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("teardown missing %q in:\n%s", want, joined)
		}
	}
}

func TestTeardown_ContinuesPastFailures(t *testing.T) {
	mock := &MockRemoteExecutor{
		RunFunc: func(ctx context.Context, command string) ([]byte, error) {
			// Host never saw this deployment: everything fails.
			return nil, errors.New("no such object")
		},
	}
	stage := NewDefaultTeardownStage(mock, "deploy", testLogger())

	if err := stage.Teardown(context.Background(), deployParams()); err != nil {
		t.Fatalf("best-effort teardown returned error: %v", err)
	}

	// Every step is still attempted.
	if got := len(mock.CommandLog()); got != 7 {
		t.Errorf("steps attempted = %d, want 7: %v", got, mock.CommandLog())
	}
}

func TestTeardown_ContainersRemovedBeforeImage(t *testing.T) {
	mock := &MockRemoteExecutor{}
	stage := NewDefaultTeardownStage(mock, "deploy", testLogger())

	if err := stage.Teardown(context.Background(), deployParams()); err != nil {
		t.Fatalf("Teardown: %v", err)
	}

	log := mock.CommandLog()
	rmIdx, rmiIdx := -1, -1
	for i, cmd := range log {
		if strings.Contains(cmd, "docker rm webapp") {
			rmIdx = i
		}
		if strings.Contains(cmd, "docker rmi") {
			rmiIdx = i
		}
	}
	if rmIdx == -1 || rmiIdx == -1 || rmIdx > rmiIdx {
		t.Errorf("image removed before its container: %v", log)
	}
}

func TestTeardown_RootSkipsSudo(t *testing.T) {
	mock := &MockRemoteExecutor{}
	stage := NewDefaultTeardownStage(mock, "root", testLogger())

	if err := stage.Teardown(context.Background(), deployParams()); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	for _, cmd := range mock.CommandLog() {
		if strings.Contains(cmd, "sudo ") {
			t.Errorf("root run used sudo: %s", cmd)
		}
	}
}
