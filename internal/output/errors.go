// Package output persists accepted artifacts as a directory of variant files plus metadata.
package output

import "fmt"

// ConflictError is returned when an iteration directory already exists and overwrite was not requested.
// Nothing is written in that case.
type ConflictError struct {
	IterationID string
	Path        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("artifact conflict: iteration %s already persisted at %s", e.IterationID, e.Path)
}

// PersistenceError reports a failed persist. Files written by the failing call have been removed.
type PersistenceError struct {
	IterationID string
	Path        string
	Message     string
	Cause       error
}

func (e *PersistenceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("persistence error: iteration %s: %s (%s): %v", e.IterationID, e.Message, e.Path, e.Cause)
	}
	return fmt.Sprintf("persistence error: iteration %s: %s (%s)", e.IterationID, e.Message, e.Path)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}
