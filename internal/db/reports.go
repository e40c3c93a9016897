package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// SaveTestReport stores a harness report with one summary row per test type
func (db *DB) SaveTestReport(ctx context.Context, report *types.TestReport) error {
	if report == nil {
		return fmt.Errorf("report is nil")
	}
	runID, err := uuid.Parse(report.RunID)
	if err != nil {
		return fmt.Errorf("invalid report run id %q: %w", report.RunID, err)
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO test_reports (run_id, started_at, finished_at, passed, report)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID, report.StartedAt, report.FinishedAt, report.Passed, body,
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", runID, err)
	}

	batch := &pgx.Batch{}
	for _, tt := range report.Requested {
		r, ok := report.Results[tt]
		if !ok {
			continue
		}
		var p95 *float64
		if r.Durations != nil {
			p95 = &r.Durations.P95MS
		}
		batch.Queue(
			`INSERT INTO test_results (run_id, test_type, total, passed, pass_rate, succeeded, p95_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			runID, string(tt), r.Total, r.Passed, r.PassRate, r.Succeeded, p95,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save results of %s: %w", runID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit report %s: %w", runID, err)
	}
	return nil
}

// GetTestReport loads a stored report; it returns nil when the run is unknown
func (db *DB) GetTestReport(ctx context.Context, runID uuid.UUID) (*types.TestReport, error) {
	var body []byte
	err := db.pool.QueryRow(ctx, `SELECT report FROM test_reports WHERE run_id = $1`, runID).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get report %s: %w", runID, err)
	}
	var report types.TestReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &report, nil
}

// ListTestReports lists recent harness reports, newest first
func (db *DB) ListTestReports(ctx context.Context, limit int) ([]TestRunSummary, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, started_at, finished_at, passed FROM test_reports ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var out []TestRunSummary
	for rows.Next() {
		var s TestRunSummary
		if err := rows.Scan(&s.RunID, &s.StartedAt, &s.FinishedAt, &s.Passed); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
