package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// SaveArtifact stores an accepted artifact and its variants, replacing any
// earlier copy of the same iteration
func (db *DB) SaveArtifact(ctx context.Context, artifact *types.Artifact) error {
	if artifact == nil {
		return fmt.Errorf("artifact is nil")
	}
	metadata, err := json.Marshal(artifact.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO artifacts (iteration_id, generated_at, metadata)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (iteration_id) DO UPDATE SET generated_at = $2, metadata = $3, updated_at = NOW()`,
		artifact.IterationID, artifact.Metadata.GeneratedAt, metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", artifact.IterationID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM artifact_variants WHERE iteration_id = $1`, artifact.IterationID); err != nil {
		return fmt.Errorf("failed to clear variants of %s: %w", artifact.IterationID, err)
	}

	batch := &pgx.Batch{}
	for _, v := range artifact.Variants {
		batch.Queue(`INSERT INTO artifact_variants (iteration_id, format, body) VALUES ($1, $2, $3)`,
			artifact.IterationID, string(v.Format), v.Body)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to save variants of %s: %w", artifact.IterationID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit artifact %s: %w", artifact.IterationID, err)
	}
	return nil
}

// GetArtifact loads a stored artifact; it returns nil when the iteration is unknown.
// Variants come back without their source document.
func (db *DB) GetArtifact(ctx context.Context, iterationID string) (*types.Artifact, error) {
	var metadata []byte
	err := db.pool.QueryRow(ctx,
		`SELECT metadata FROM artifacts WHERE iteration_id = $1`, iterationID,
	).Scan(&metadata)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get artifact %s: %w", iterationID, err)
	}

	artifact := &types.Artifact{IterationID: iterationID}
	if err := json.Unmarshal(metadata, &artifact.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact metadata: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT format, body FROM artifact_variants WHERE iteration_id = $1`, iterationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variants of %s: %w", iterationID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var format, body string
		if err := rows.Scan(&format, &body); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		artifact.Variants = append(artifact.Variants, types.Variant{Format: types.Format(format), Body: body})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get variants of %s: %w", iterationID, err)
	}
	sortVariants(artifact.Variants)
	return artifact, nil
}

// sortVariants puts variants in canonical format order
func sortVariants(variants []types.Variant) {
	formats := make([]types.Format, len(variants))
	byFormat := make(map[types.Format]types.Variant, len(variants))
	for i, v := range variants {
		formats[i] = v.Format
		byFormat[v.Format] = v
	}
	for i, f := range types.SortFormats(formats) {
		variants[i] = byFormat[f]
	}
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
