// Package server provides the HTTP API for running the echo pipeline and its test harness.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/jonathan/echo-pipeline/internal/harness"
	"github.com/jonathan/echo-pipeline/internal/output"
	"github.com/jonathan/echo-pipeline/internal/pipeline"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the requested resource does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation  *ErrValidation
		notFound    *ErrNotFound
		unknownType *harness.UnknownTestTypeError
		conflict    *output.ConflictError
		stage       *pipeline.StageError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &unknownType), errors.Is(err, harness.ErrNoTestTypes):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.Is(err, harness.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrCancelled), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	case errors.As(err, &stage) && stage.Stage == pipeline.StageInput:
		return http.StatusBadRequest
	case errors.As(err, &stage) && stage.Stage == pipeline.StageGenerate:
		// the content provider failed
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
