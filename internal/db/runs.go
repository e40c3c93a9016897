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

const runColumns = `id, iteration_id, topic, primary_format, status, COALESCE(failed_stage, ''), COALESCE(error, ''),
	quality_score, consistency_score, reasons, paths, started_at, duration_ms, created_at`

// Record stores one finished pipeline execution
func (db *DB) Record(ctx context.Context, rec types.ExecutionRecord) error {
	reasons, err := jsonList(rec.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}
	paths, err := jsonList(rec.Paths)
	if err != nil {
		return fmt.Errorf("failed to marshal paths: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, iteration_id, topic, primary_format, status, failed_stage, error,
		     quality_score, consistency_score, reasons, paths, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13)`,
		uuid.New(), rec.IterationID, rec.Topic, string(rec.PrimaryFormat), RunStatus(rec), rec.FailedStage, rec.Error,
		rec.QualityScore, rec.ConsistencyScore, reasons, paths, rec.StartedAt, rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.IterationID, err)
	}
	return nil
}

// GetRun retrieves a pipeline run by ID
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves recent pipeline runs, newest first
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return db.queryRuns(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
}

// RunsForIteration retrieves every recorded attempt of an iteration, newest first
func (db *DB) RunsForIteration(ctx context.Context, iterationID string) ([]Run, error) {
	return db.queryRuns(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE iteration_id = $1 ORDER BY started_at DESC`, iterationID)
}

func (db *DB) queryRuns(ctx context.Context, sql string, args ...any) ([]Run, error) {
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var format string
	var reasons, paths []byte
	var durationMS int64
	err := row.Scan(&run.ID, &run.IterationID, &run.Topic, &format, &run.Status, &run.FailedStage, &run.Error,
		&run.QualityScore, &run.ConsistencyScore, &reasons, &paths, &run.StartedAt, &durationMS, &run.CreatedAt)
	if err != nil {
		return nil, err
	}
	run.PrimaryFormat = types.Format(format)
	run.Duration = millis(durationMS)
	if err := json.Unmarshal(reasons, &run.Reasons); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
	}
	if err := json.Unmarshal(paths, &run.Paths); err != nil {
		return nil, fmt.Errorf("failed to unmarshal paths: %w", err)
	}
	return &run, nil
}

// jsonList marshals a string list, storing nil as []
func jsonList(items []string) ([]byte, error) {
	if items == nil {
		items = []string{}
	}
	return json.Marshal(items)
}
