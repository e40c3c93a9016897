package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/server"
)

type serveOptions struct {
	port int
}

func newServeCmd(global *globalOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline and test harness over HTTP",
		Long: `Starts the HTTP API:

  POST /run            run one iteration (JSON input spec)
  POST /run/stream     run one iteration, streaming stage progress as Server-Sent Events
  POST /tests          run harness test types
  GET  /artifacts/{id} metadata of a persisted iteration
  GET  /runs           recorded executions, newest first
  GET  /runs/summary   execution statistics
  GET  /health         monitor health

POST routes require a bearer token (see the token command) when
server.auth.secret or ECHO_AUTH_SECRET is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, global, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, global *globalOptions, opts *serveOptions) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// request logs are informational; show them unless the user asked for debug
	if !global.verbose {
		logger, err := newLeveledLogger(cmd.ErrOrStderr(), slog.LevelInfo, global.logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	if opts.port != 0 {
		if opts.port < 1 || opts.port > 65535 {
			return fmt.Errorf("invalid port %d", opts.port)
		}
		cfg.Server.Port = opts.port
	}

	a, err := buildApp(ctx, cfg, global)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := server.New(cfg.Server, a.serverDeps(), server.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if srv.Tokens() == nil {
		a.logger.Warn("authentication disabled: set server.auth.secret or "+config.AuthSecretEnv+" to protect POST routes")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on :%d\n", cfg.Server.Port)
	return srv.Start(ctx)
}
