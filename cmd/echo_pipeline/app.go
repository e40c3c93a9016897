package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/db"
	"github.com/jonathan/echo-pipeline/internal/generator"
	"github.com/jonathan/echo-pipeline/internal/harness"
	"github.com/jonathan/echo-pipeline/internal/llm"
	"github.com/jonathan/echo-pipeline/internal/observability"
	"github.com/jonathan/echo-pipeline/internal/output"
	"github.com/jonathan/echo-pipeline/internal/pipeline"
	"github.com/jonathan/echo-pipeline/internal/server"
	"github.com/jonathan/echo-pipeline/internal/transform"
	"github.com/jonathan/echo-pipeline/internal/validation"
)

// app holds the wired components for one command invocation
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	generator   *generator.Generator
	transformer *transform.Transformer
	validator   *validation.Validator
	formatter   *output.Formatter
	monitor     *observability.Monitor
	database    *db.DB
	pipeline    *pipeline.Pipeline
	closers     []io.Closer
}

// loadConfig reads the config file (or the defaults) and validates it.
// A configuration problem is fatal before any run starts.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if opts.databaseURL != "" {
		cfg.DatabaseURL = opts.databaseURL
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	cfg.Server.Auth.ResolveSecret()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveAPIKey picks the flag, then the config file, then the provider's env var
func resolveAPIKey(cfg config.GeneratorConfig, flagValue string) (string, error) {
	if cfg.Provider == generator.ProviderStub {
		return "", nil
	}
	if flagValue != "" {
		return flagValue, nil
	}
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	provider, err := llm.ParseProvider(cfg.Provider)
	if err != nil {
		return "", err
	}
	env := llm.APIKeyEnv[provider]
	if key := os.Getenv(env); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%s environment variable or --api-key flag is required for provider %s", env, cfg.Provider)
}

// buildApp wires generator, transformer, validator, formatter, monitor and
// the optional database into a pipeline
func buildApp(ctx context.Context, cfg *config.Config, opts *globalOptions) (*app, error) {
	logger := slog.Default()
	a := &app{cfg: cfg, logger: logger}

	apiKey, err := resolveAPIKey(cfg.Generator, opts.apiKey)
	if err != nil {
		return nil, err
	}
	provider, err := generator.NewProvider(ctx, cfg.Generator, apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider: %w", err)
	}
	if c, ok := provider.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.generator = generator.New(provider, cfg.Generator, cfg.Validator.LengthTargets, logger)
	a.transformer = transform.New(cfg.Transformer.Formats, logger)
	a.validator, err = validation.New(cfg.Validator, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.formatter = output.New(cfg.Formatter, output.WithLogger(logger))
	a.monitor, err = observability.NewMonitor(cfg.Monitor, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithRecorder(a.monitor),
	}
	if cfg.DatabaseURL != "" {
		database, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			// The database mirror is optional; runs still persist to disk
			logger.Warn("database unavailable, continuing without it", "error", err)
		} else if err := database.Migrate(ctx); err != nil {
			logger.Warn("database schema could not be applied, continuing without it", "error", err)
			database.Close()
		} else {
			a.database = database
			pipelineOpts = append(pipelineOpts, pipeline.WithRecorder(database), pipeline.WithArtifactStore(database))
		}
	}

	a.pipeline = pipeline.New(a.generator, a.transformer, a.validator, a.formatter, pipelineOpts...)
	return a, nil
}

// harness builds a harness over the app's components
func (a *app) harness() *harness.Harness {
	suites := harness.DefaultSuites(harness.Deps{
		Runner:      a.pipeline,
		Generator:   a.generator,
		Transformer: a.transformer,
		Validator:   a.validator,
		Config:      a.cfg,
		Prefix:      "harness-",
	})
	return harness.New(a.cfg.Harness, suites, harness.WithLogger(a.logger))
}

// serverDeps exposes the app to the HTTP API. The harness is built once so
// overlapping test requests are refused instead of run twice.
func (a *app) serverDeps() server.Deps {
	deps := server.Deps{
		Pipeline:   a.pipeline,
		Harness:    a.harness(),
		Artifacts:  a.formatter,
		Monitor:    a.monitor,
		ReportPath: a.cfg.Harness.ReportPath,
	}
	if a.database != nil {
		deps.Store = a.database
	}
	return deps
}

// Close releases the provider client and database pool
func (a *app) Close() {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	if a.database != nil {
		a.database.Close()
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("failed to close provider", "error", err)
	}
}
