package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/jonathan/echo-pipeline/internal/observability"
	"github.com/jonathan/echo-pipeline/internal/pipeline"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// errRejected is returned when a run finished but its quality report did not pass
var errRejected = errors.New("iteration rejected by quality validation")

type runOptions struct {
	input     string
	topic     string
	format    string
	length    string
	style     map[string]string
	iteration string
	overwrite bool
	dryRun    bool
}

func newRunCmd(global *globalOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one pipeline iteration end-to-end",
		Long: `Generates content for an input spec, renders it in every configured format,
validates the renderings and persists the accepted iteration.

The input spec can be loaded from a YAML or JSON file using --input. Flags override file values.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipelineCmd(cmd, global, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Path to an input spec file (YAML or JSON)")
	cmd.Flags().StringVarP(&opts.topic, "topic", "t", "", "Content topic")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Primary format: markdown, html or jsonld (default markdown)")
	cmd.Flags().StringVarP(&opts.length, "length", "l", "", "Length: short, medium or long (default medium)")
	cmd.Flags().StringToStringVar(&opts.style, "style", nil, "Style hints as key=value pairs")
	cmd.Flags().StringVar(&opts.iteration, "iteration", "", "Iteration id (generated when omitted)")
	cmd.Flags().BoolVar(&opts.overwrite, "overwrite", false, "Replace an already persisted iteration")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate without persisting")
	return cmd
}

// loadSpec reads the spec file if given, then applies flag overrides and defaults
func loadSpec(cmd *cobra.Command, opts *runOptions) (types.InputSpec, error) {
	var spec types.InputSpec
	if opts.input != "" {
		data, err := os.ReadFile(opts.input)
		if err != nil {
			return spec, fmt.Errorf("failed to read input spec: %w", err)
		}
		if err := yaml.Unmarshal(data, &spec); err != nil {
			return spec, fmt.Errorf("failed to parse input spec %s: %w", opts.input, err)
		}
	}

	if cmd.Flags().Changed("topic") {
		spec.Topic = opts.topic
	}
	if cmd.Flags().Changed("format") {
		spec.PrimaryFormat = types.Format(strings.ToLower(opts.format))
	}
	if cmd.Flags().Changed("length") {
		spec.Length = types.Length(strings.ToLower(opts.length))
	}
	if cmd.Flags().Changed("style") {
		if spec.Style == nil {
			spec.Style = make(map[string]string, len(opts.style))
		}
		for k, v := range opts.style {
			spec.Style[k] = v
		}
	}

	if spec.PrimaryFormat == "" {
		spec.PrimaryFormat = types.FormatMarkdown
	}
	if spec.Length == "" {
		spec.Length = types.LengthMedium
	}
	if spec.Topic == "" {
		return spec, fmt.Errorf("a topic must be provided (via --topic or --input)")
	}
	spec = types.NewInputSpec(spec.Topic, spec.PrimaryFormat, spec.Length, spec.Style)
	if err := spec.Validate(); err != nil {
		return spec, fmt.Errorf("invalid input spec: %w", err)
	}
	return spec, nil
}

func runPipelineCmd(cmd *cobra.Command, global *globalOptions, opts *runOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	spec, err := loadSpec(cmd, opts)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, cfg, global)
	if err != nil {
		return err
	}
	defer a.Close()

	runOpts := pipeline.RunOptions{
		IterationID: opts.iteration,
		Overwrite:   opts.overwrite,
		DryRun:      opts.dryRun,
	}
	if global.verbose {
		runOpts.OnProgress = func(e pipeline.ProgressEvent) {
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", e.Stage, e.Message)
		}
	}

	res, runErr := a.pipeline.Run(ctx, spec, runOpts)

	printer := observability.NewPrinter(cmd.OutOrStdout())
	if res != nil {
		printer.PrintQualityReport(res.Report)
		printer.PrintArtifact(res.IterationID, res.Paths)
	}
	if runErr != nil {
		return runErr
	}
	if !res.Report.Passed {
		return fmt.Errorf("%w: %s", errRejected, strings.Join(res.Report.Reasons, "; "))
	}
	if opts.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "Iteration %s passed validation (dry run, nothing persisted)\n", res.IterationID)
	}
	return nil
}
