package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/echo-pipeline/internal/harness"
	"github.com/jonathan/echo-pipeline/internal/observability"
	"github.com/jonathan/echo-pipeline/internal/types"
)

type testOptions struct {
	types           string
	reportPath      string
	iterations      int
	unitOnly        bool
	integrationOnly bool
	performanceOnly bool
	qualityOnly     bool
}

func newTestCmd(global *globalOptions) *cobra.Command {
	opts := &testOptions{}
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run the pipeline test harness",
		Long: `Runs unit, integration, performance and quality batches concurrently and
writes an aggregate report. Exits non-zero unless every requested type passes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTestCmd(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.types, "types", "", "Comma-separated test types (default: all)")
	cmd.Flags().StringVar(&opts.reportPath, "report", "", "Report path (default from config)")
	cmd.Flags().IntVar(&opts.iterations, "iterations", 0, "Performance iterations (default from config)")
	cmd.Flags().BoolVar(&opts.unitOnly, "unit-only", false, "Run only unit tests")
	cmd.Flags().BoolVar(&opts.integrationOnly, "integration-only", false, "Run only integration tests")
	cmd.Flags().BoolVar(&opts.performanceOnly, "performance-only", false, "Run only performance tests")
	cmd.Flags().BoolVar(&opts.qualityOnly, "quality-only", false, "Run only quality tests")
	return cmd
}

// requestedTypes combines --types with the --*-only shortcuts
func requestedTypes(opts *testOptions) ([]types.TestType, error) {
	var names []string
	if opts.types != "" {
		names = append(names, opts.types)
	}
	for tt, on := range map[types.TestType]bool{
		types.TestUnit:        opts.unitOnly,
		types.TestIntegration: opts.integrationOnly,
		types.TestPerformance: opts.performanceOnly,
		types.TestQuality:     opts.qualityOnly,
	} {
		if on {
			names = append(names, string(tt))
		}
	}
	return harness.ParseTestTypes(strings.Join(names, ","))
}

func runTestCmd(cmd *cobra.Command, global *globalOptions, opts *testOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(global)
	if err != nil {
		return err
	}
	requested, err := requestedTypes(opts)
	if err != nil {
		return err
	}
	if opts.reportPath != "" {
		cfg.Harness.ReportPath = opts.reportPath
	}
	if opts.iterations > 0 {
		cfg.Harness.PerformanceIterations = opts.iterations
	}

	a, err := buildApp(ctx, cfg, global)
	if err != nil {
		return err
	}
	defer a.Close()

	report, runErr := a.harness().Run(ctx, requested)
	if report == nil {
		return runErr
	}

	if err := harness.WriteReport(report, cfg.Harness.ReportPath); err != nil {
		return err
	}
	if a.database != nil {
		if err := a.database.SaveTestReport(ctx, report); err != nil {
			a.logger.Warn("failed to mirror test report to database", "error", err)
		}
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintTestReport(report)
	fmt.Fprintf(cmd.OutOrStdout(), "Test report saved to: %s\n", cfg.Harness.ReportPath)

	if runErr != nil {
		return runErr
	}
	if !report.Passed {
		failing := make([]string, len(report.FailingTypes))
		for i, tt := range report.FailingTypes {
			failing[i] = fmt.Sprintf("%s (%s)", tt, report.Results[tt].Summary())
		}
		return fmt.Errorf("test types failed: %s", strings.Join(failing, ", "))
	}
	return nil
}
