// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestDeployer(mock *MockRemoteExecutor) *DefaultDeployer {
	d := NewDefaultDeployer(mock, testLogger())
	d.settle = func(time.Duration) {}
	return d
}

func deployParams() *DeploymentParameters {
	return &DeploymentParameters{
		RepoURL:    "https://github.com/acme/webapp.git",
		Branch:     "main",
		Username:   "deploy",
		ServerAddr: "192.0.2.10",
		AppPort:    3000,
	}
}

// runningListing makes docker ps report the named container as up.
func runningListing(name string) func(ctx context.Context, command string) ([]byte, error) {
	return func(ctx context.Context, command string) ([]byte, error) {
		if strings.Contains(command, "docker ps") {
			return []byte(name + "\n"), nil
		}
		return nil, nil
	}
}

func TestDeploy_SingleImageSequence(t *testing.T) {
	mock := &MockRemoteExecutor{RunFunc: runningListing("webapp")}
	d := newTestDeployer(mock)

	inspection := ProjectInspection{Strategy: StrategySingleImage, Descriptor: "Dockerfile"}
	if err := d.Deploy(context.Background(), deployParams(), inspection, "/tmp/work/webapp"); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	log := mock.CommandLog()
	var sequence []string
	for _, cmd := range log {
		switch {
		case strings.HasPrefix(cmd, "mkdir -p"):
			sequence = append(sequence, "mkdir")
		case strings.Contains(cmd, "docker build"):
			sequence = append(sequence, "build")
		case strings.Contains(cmd, "docker run"):
			sequence = append(sequence, "run")
		case strings.Contains(cmd, "docker ps"):
			sequence = append(sequence, "ps")
		}
	}
	want := []string{"mkdir", "build", "run", "ps"}
	if len(sequence) != len(want) {
		t.Fatalf("sequence = %v, want %v (full log: %v)", sequence, want, log)
	}
	for i := range want {
		if sequence[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", sequence, want)
		}
	}

	if len(mock.Uploads) != 1 {
		t.Fatalf("upload count = %d", len(mock.Uploads))
	}
	if mock.Uploads[0] != [2]string{"/tmp/work/webapp", "apps/webapp"} {
		t.Errorf("upload = %v", mock.Uploads[0])
	}
}

func TestDeploy_RunCommandPublishesAppPort(t *testing.T) {
	mock := &MockRemoteExecutor{RunFunc: runningListing("webapp")}
	d := newTestDeployer(mock)

	inspection := ProjectInspection{Strategy: StrategySingleImage, Descriptor: "Dockerfile"}
	if err := d.Deploy(context.Background(), deployParams(), inspection, "/tmp/w"); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	var runCmd string
	for _, cmd := range mock.CommandLog() {
		if strings.Contains(cmd, "docker run") {
			runCmd = cmd
		}
	}
	for _, want := range []string{"--name webapp", "-p 3000:3000", "webapp:latest", "-d"} {
		if !strings.Contains(runCmd, want) {
			t.Errorf("run command missing %q: %s", want, runCmd)
		}
	}
}

func TestDeploy_ComposeSequence(t *testing.T) {
	mock := &MockRemoteExecutor{RunFunc: runningListing("webapp-web-1")}
	d := newTestDeployer(mock)

	inspection := ProjectInspection{Strategy: StrategyCompose, Descriptor: "docker-compose.yml"}
	if err := d.Deploy(context.Background(), deployParams(), inspection, "/tmp/w"); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	joined := strings.Join(mock.CommandLog(), "\n")
	if !strings.Contains(joined, "docker compose up -d --build") {
		t.Errorf("compose bring-up missing: %s", joined)
	}
	if strings.Contains(joined, "docker build -t") {
		t.Errorf("single-image build issued for compose project: %s", joined)
	}
}

func TestDeploy_ReplacesPreviousInstance(t *testing.T) {
	mock := &MockRemoteExecutor{RunFunc: runningListing("webapp")}
	d := newTestDeployer(mock)

	inspection := ProjectInspection{Strategy: StrategySingleImage, Descriptor: "Dockerfile"}
	if err := d.Deploy(context.Background(), deployParams(), inspection, "/tmp/w"); err != nil {
		t.Fatalf("Deploy: %v", err)
	}

	joined := strings.Join(mock.CommandLog(), "\n")
	for _, want := range []string{
		"docker compose down --remove-orphans",
		"docker stop webapp",
		"docker rm webapp",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("teardown step missing %q", want)
		}
	}
}

func TestDeploy_FirstRunTeardownFailuresIgnored(t *testing.T) {
	mock := &MockRemoteExecutor{
		RunFunc: func(ctx context.Context, command string) ([]byte, error) {
			// Nothing to tear down on a fresh host.
			if strings.Contains(command, "docker stop") ||
				strings.Contains(command, "docker rm") ||
				strings.Contains(command, "compose down") {
				return nil, &CommandError{Command: "ssh", ExitCode: 1, Stderr: "No such container"}
			}
			if strings.Contains(command, "docker ps") {
				return []byte("webapp\n"), nil
			}
			return nil, nil
		},
	}
	d := newTestDeployer(mock)

	inspection := ProjectInspection{Strategy: StrategySingleImage, Descriptor: "Dockerfile"}
	if err := d.Deploy(context.Background(), deployParams(), inspection, "/tmp/w"); err != nil {
		t.Fatalf("first deploy failed on empty teardown: %v", err)
	}
}

func TestDeploy_ContainerAbsentAfterSettle(t *testing.T) {
	mock := &MockRemoteExecutor{
		RunFunc: func(ctx context.Context, command string) ([]byte, error) {
			if strings.Contains(command, "docker ps") {
				return []byte("\n"), nil
			}
			return nil, nil
		},
	}
	d := newTestDeployer(mock)

	inspection := ProjectInspection{Strategy: StrategySingleImage, Descriptor: "Dockerfile"}
	err := d.Deploy(context.Background(), deployParams(), inspection, "/tmp/w")
	if code := CodeOf(err); code != ExitContainerNotRunning {
		t.Errorf("exit code = %d (err %v), want %d", code, err, ExitContainerNotRunning)
	}
}

func TestDeploy_BuildFailureCodes(t *testing.T) {
	tests := []struct {
		name     string
		strategy BuildStrategy
		failOn   string
		want     ExitCode
	}{
		{"image build fails", StrategySingleImage, "docker build", ExitImageBuild},
		{"container run fails", StrategySingleImage, "docker run", ExitContainerRun},
		{"compose up fails", StrategyCompose, "compose up", ExitComposeDeploy},
		{"transfer fails", StrategySingleImage, "mkdir -p", ExitFileTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockRemoteExecutor{RunFunc: failCommandsContaining(tt.failOn)}
			d := newTestDeployer(mock)

			inspection := ProjectInspection{Strategy: tt.strategy}
			err := d.Deploy(context.Background(), deployParams(), inspection, "/tmp/w")
			if code := CodeOf(err); code != tt.want {
				t.Errorf("exit code = %d (err %v), want %d", code, err, tt.want)
			}
		})
	}
}

func TestContainsName(t *testing.T) {
	tests := []struct {
		name    string
		listing string
		lookup  string
		want    bool
	}{
		{"exact match", "webapp\n", "webapp", true},
		{"compose dash prefix", "webapp-web-1\nwebapp-db-1\n", "webapp", true},
		{"compose underscore prefix", "webapp_web_1\n", "webapp", true},
		{"unrelated container", "otherapp\n", "webapp", false},
		{"substring not enough", "mywebapp\n", "webapp", false},
		{"empty listing", "\n", "webapp", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := containsName(tt.listing, tt.lookup); got != tt.want {
				t.Errorf("containsName(%q, %q) = %v, want %v", tt.listing, tt.lookup, got, tt.want)
			}
		})
	}
}
