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
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dockhand-sh/dockhand/cmd/dockhand/config"
	"github.com/dockhand-sh/dockhand/pkg/logging"
	"github.com/dockhand-sh/dockhand/pkg/ux"
)

// Build identity, overridden at link time:
//
//	-ldflags "-X main.buildVersion=v1.2.3 -X main.buildCommit=abc1234"
var (
	buildVersion = "dev"
	buildCommit  = "none"
)

// --- Global Command Variables ---
var (
	logDir      string
	verbose     bool
	quiet       bool
	configPath  string
	cleanupMode bool

	rootCmd = &cobra.Command{
		Use:   "dockhand",
		Short: "Deploy a containerized app from a git repo to a remote host",
		Long: `Dockhand clones an application repository, provisions a remote
Linux host with docker, compose, and nginx over SSH, deploys the app as
a container (or compose stack), and fronts it with a reverse proxy on
port 80.`,
	}

	deployCmd = &cobra.Command{
		Use:   "deploy",
		Short: "Run the full deployment pipeline against a remote host",
		Run:   runDeploy,
	}

	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove a deployment's containers, image, source, and proxy site",
		Run:   runCleanup,
	}

	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Report the remote state of a deployment",
		Run:   runStatus,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dockhand %s (%s)\n", buildVersion, buildCommit)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "~/.dockhand/logs",
		"directory for run-scoped log files (empty disables file logging)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"suppress log output on stderr (file logging unaffected)")

	deployCmd.Flags().StringVarP(&configPath, "config", "c", "",
		"deployment file for scripted runs (skips all prompts)")
	deployCmd.Flags().BoolVar(&cleanupMode, "cleanup", false,
		"tear the deployment down instead of deploying")

	rootCmd.AddCommand(deployCmd, cleanupCmd, statusCmd, versionCmd)
}

// newRunLogger builds the run-scoped logger from the global flags.
// Every record carries a run ID so interleaved or collected log files
// stay attributable to one invocation.
func newRunLogger(service string) *logging.Logger {
	level := logging.LevelInfo
	if verbose {
		level = logging.LevelDebug
	}
	log := logging.New(logging.Config{
		Level:   level,
		LogDir:  logDir,
		Service: service,
		Quiet:   quiet,
	})
	return log.With("run_id", uuid.NewString())
}

// runContext returns a context cancelled by SIGINT/SIGTERM, so an
// interrupted run still unwinds through the workspace cleanup defers.
func runContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// exit closes the logger and terminates with the code bound to err.
func exit(log *logging.Logger, err error) {
	code := CodeOf(err)
	if path := log.Path(); path != "" {
		ux.Muted("run log: %s", path)
	}
	_ = log.Close()
	os.Exit(int(code))
}

func runDeploy(cmd *cobra.Command, args []string) {
	ctx, cancel := runContext()
	defer cancel()

	log := newRunLogger("deploy")
	collector := NewParameterCollector()
	proc := NewDefaultProcessManager()

	if cleanupMode {
		pipeline := NewPipeline(collector, proc, log, "")
		exit(log, pipeline.Cleanup(ctx))
	}

	if configPath != "" {
		params, workDir, err := paramsFromConfig(configPath)
		if err != nil {
			log.Error("config rejected", "path", configPath, "error", err.Error())
			ux.Error("%v", err)
			exit(log, err)
		}
		pipeline := NewPipeline(collector, proc, log, workDir)
		exit(log, pipeline.Execute(ctx, params))
	}

	pipeline := NewPipeline(collector, proc, log, "")
	exit(log, pipeline.Run(ctx))
}

func runCleanup(cmd *cobra.Command, args []string) {
	ctx, cancel := runContext()
	defer cancel()

	log := newRunLogger("cleanup")
	pipeline := NewPipeline(NewParameterCollector(), NewDefaultProcessManager(), log, "")
	exit(log, pipeline.Cleanup(ctx))
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := runContext()
	defer cancel()

	log := newRunLogger("status")
	collector := NewParameterCollector()

	params, err := collector.CollectCleanupTarget(ctx)
	if err != nil {
		exit(log, err)
	}

	remote := NewDefaultRemoteExecutor(NewDefaultProcessManager(),
		params.Username, params.ServerAddr, params.KeyPathExpanded())
	exit(log, reportStatus(ctx, remote, params, log))
}

// reportStatus prints the remote state of one deployment. Only an
// unreachable host is an error; a stopped container is a finding, not
// a failure.
func reportStatus(ctx context.Context, remote RemoteExecutor, params *DeploymentParameters, log *logging.Logger) error {
	name := params.DeploymentName()

	if err := remote.Probe(ctx); err != nil {
		return fatal("testing connection", ExitSSHUnreachable, err)
	}
	ux.Success("host %s reachable", remote.Target())

	listing := fmt.Sprintf("docker ps --filter name=%s --format '{{.Names}}'", name)
	out, err := remote.Run(ctx, listing)
	switch {
	case err != nil:
		ux.Warning("container listing failed: %v", err)
	case containsName(string(out), name):
		ux.Success("container %s running", name)
	default:
		ux.Warning("container %s not running", name)
	}

	if _, err := remote.Run(ctx, "systemctl is-active nginx"); err != nil {
		ux.Warning("reverse proxy not active")
	} else {
		ux.Success("reverse proxy active")
	}

	siteCheck := fmt.Sprintf("test -e %s/%s", sitesEnabledDir, name)
	if _, err := remote.Run(ctx, siteCheck); err != nil {
		ux.Warning("proxy site for %s not enabled", name)
	} else {
		ux.Success("proxy site enabled for %s", name)
	}

	log.Info("status check finished", "name", name)
	return nil
}

// paramsFromConfig converts a deployment file into a validated
// parameter set. Scripted mode is fail-fast: the first invalid field
// aborts instead of re-prompting.
func paramsFromConfig(path string) (*DeploymentParameters, string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}

	params := &DeploymentParameters{
		RepoURL:    cfg.RepoURL,
		Branch:     cfg.Branch,
		Username:   cfg.Username,
		ServerAddr: cfg.ServerAddr,
		KeyPath:    cfg.KeyPath,
		AppPort:    cfg.AppPort,
	}

	if params.Username == "" {
		return nil, "", fatal("loading config", ExitEmptyUsername, ErrEmptyUsername)
	}
	if err := params.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid config %s: %w", path, err)
	}

	token, err := cfg.Token()
	if err != nil {
		return nil, "", fatal("loading config", ExitEmptyToken, err)
	}
	if err := params.SetToken(token); err != nil {
		return nil, "", fatal("loading config", ExitEmptyToken, err)
	}

	return params, cfg.WorkDir, nil
}
