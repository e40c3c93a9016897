package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonathan/echo-pipeline/internal/observability"
	"github.com/jonathan/echo-pipeline/internal/types"
)

func newHealthCmd(global *globalOptions) *cobra.Command {
	var asJSON bool
	var limit int
	var saveReport bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report monitor health and recent execution statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(global)
			if err != nil {
				return err
			}
			monitor, err := observability.NewMonitor(cfg.Monitor, nil)
			if err != nil {
				return err
			}

			health := monitor.Health()
			summary, err := storedSummary(monitor, limit)
			if err != nil {
				return err
			}

			if saveReport {
				path, err := monitor.SavePerformanceReport(summary)
				if err != nil {
					return err
				}
				cmd.PrintErrf("Performance report written to %s\n", path)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{"health": health, "summary": summary}); err != nil {
					return err
				}
			} else {
				printer := observability.NewPrinter(cmd.OutOrStdout())
				printer.PrintHealth(health)
				printer.PrintExecutionSummary(summary)
			}

			if health.Status == observability.StatusError {
				return fmt.Errorf("unhealthy: %v", health.Errors)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print health as JSON")
	cmd.Flags().BoolVar(&saveReport, "save-report", false, "Also write performance_report_<timestamp>.json to the metrics directory")
	cmd.Flags().IntVar(&limit, "limit", 0, "Summarize only the most recent N executions (default: all)")
	return cmd
}

// storedSummary summarizes the execution files kept in the metrics directory
func storedSummary(m *observability.Monitor, limit int) (observability.ExecutionSummary, error) {
	files, err := m.Files()
	if err != nil {
		return observability.ExecutionSummary{}, err
	}
	if limit > 0 && len(files) > limit {
		files = files[len(files)-limit:]
	}
	var records []types.ExecutionRecord
	for _, path := range files {
		file, err := m.LoadExecution(filepath.Base(path))
		if err != nil {
			return observability.ExecutionSummary{}, err
		}
		records = append(records, file.ExecutionRecord)
	}
	return observability.Summarize(records), nil
}
