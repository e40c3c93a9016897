package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configPath  string
	verbose     bool
	logFormat   string
	apiKey      string
	databaseURL string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "echo_pipeline",
		Short: "Echo Pipeline: generate, transform and validate content across formats",
		Long: `Echo Pipeline turns an input spec into markdown, HTML and JSON-LD renderings,
checks that the renderings agree with each other and meet quality thresholds,
and persists accepted iterations with their metadata.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), opts.verbose, opts.logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to config.yaml (defaults are used when omitted)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Print detailed debug information")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")
	// API key can be passed as a flag, or read from GEMINI_API_KEY / OPENAI_API_KEY
	flags.StringVar(&opts.apiKey, "api-key", "", "Provider API key (optional, defaults to the provider's env var)")
	flags.StringVar(&opts.databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	root.AddCommand(
		newRunCmd(opts),
		newTestCmd(opts),
		newHealthCmd(opts),
		newConfigCmd(opts),
		newServeCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func newLogger(out io.Writer, verbose bool, format string) (*slog.Logger, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return newLeveledLogger(out, level, format)
}

func newLeveledLogger(out io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	handlerOpts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (expected text or json)", format)
	}
}
