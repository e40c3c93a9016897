package pipeline

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when the caller cancels a run between or during stages
var ErrCancelled = errors.New("pipeline run cancelled")

// StageError wraps the failure of one pipeline stage
type StageError struct {
	Stage       string
	IterationID string
	Cause       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %s failed for iteration %s: %v", e.Stage, e.IterationID, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}
