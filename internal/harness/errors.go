// Package harness runs batches of pipeline checks per test type and aggregates them into a report.
package harness

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned when Run is called while a previous run is in progress
var ErrAlreadyRunning = errors.New("harness is already running")

// ErrNoTestTypes is returned when no test type was requested
var ErrNoTestTypes = errors.New("no test types requested")

// UnknownTestTypeError is returned for a test type name the harness does not know
type UnknownTestTypeError struct {
	Name string
}

func (e *UnknownTestTypeError) Error() string {
	return fmt.Sprintf("unknown test type %q (expected unit, integration, performance or quality)", e.Name)
}

// ReportError is returned when a report cannot be written
type ReportError struct {
	Path    string
	Message string
	Cause   error
}

func (e *ReportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("report error (%s): %s: %v", e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("report error (%s): %s", e.Path, e.Message)
}

func (e *ReportError) Unwrap() error {
	return e.Cause
}
