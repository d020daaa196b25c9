// Copyright (C) 2026 Dockhand Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// BuildStrategy selects which build path the Deployer uses. Derived
// once from the workspace probe and immutable afterwards.
type BuildStrategy int

const (
	// StrategyUnknown means no probe has run or none matched.
	StrategyUnknown BuildStrategy = iota

	// StrategySingleImage builds one image from a Dockerfile and runs
	// a single detached container.
	StrategySingleImage

	// StrategyCompose builds and starts all services from a compose
	// descriptor.
	StrategyCompose
)

// String returns "single-image", "compose", or "unknown".
func (s BuildStrategy) String() string {
	switch s {
	case StrategySingleImage:
		return "single-image"
	case StrategyCompose:
		return "compose"
	default:
		return "unknown"
	}
}

// composeDescriptors lists the recognized compose filenames in probe
// order.
var composeDescriptors = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// ProjectInspection is the Inspector's result: the strategy plus the
// descriptor filename the Deployer should reference.
type ProjectInspection struct {
	Strategy   BuildStrategy
	Descriptor string
}

// InspectProject probes the workspace root and decides the build
// strategy: a Dockerfile wins, then the first recognized compose
// descriptor. A workspace with neither is not deployable and the
// pipeline fails before any remote connection is attempted.
func InspectProject(workspace string) (ProjectInspection, error) {
	if isRegularFile(filepath.Join(workspace, "Dockerfile")) {
		return ProjectInspection{Strategy: StrategySingleImage, Descriptor: "Dockerfile"}, nil
	}
	for _, name := range composeDescriptors {
		if isRegularFile(filepath.Join(workspace, name)) {
			return ProjectInspection{Strategy: StrategyCompose, Descriptor: name}, nil
		}
	}
	return ProjectInspection{}, fatal("inspecting project", ExitNoBuildDescriptor,
		fmt.Errorf("no Dockerfile or compose descriptor in %s", workspace))
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
