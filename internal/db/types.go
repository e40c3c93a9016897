package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// Run statuses
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// Run represents a pipeline run record
type Run struct {
	ID               uuid.UUID     `json:"id"`
	IterationID      string        `json:"iteration_id"`
	Topic            string        `json:"topic"`
	PrimaryFormat    types.Format  `json:"primary_format"`
	Status           string        `json:"status"`
	FailedStage      string        `json:"failed_stage,omitempty"`
	Error            string        `json:"error,omitempty"`
	QualityScore     float64       `json:"quality_score"`
	ConsistencyScore float64       `json:"consistency_score"`
	Reasons          []string      `json:"reasons"`
	Paths            []string      `json:"paths"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration_ns"`
	CreatedAt        time.Time     `json:"created_at"`
}

// RunStatus classifies an execution record
func RunStatus(rec types.ExecutionRecord) string {
	switch {
	case !rec.Success:
		return StatusFailed
	case rec.Accepted:
		return StatusAccepted
	default:
		return StatusRejected
	}
}

// TestRunSummary is one stored harness report without its samples
type TestRunSummary struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Passed     bool      `json:"passed"`
}
