// Package transform converts a canonical document into one variant per requested format.
package transform

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/echo-pipeline/internal/rendering"
)

// ErrNoFormats is returned when a transformation is requested for zero formats
var ErrNoFormats = errors.New("no formats requested")

// TransformationError aggregates every format that failed to encode
type TransformationError struct {
	Failures []*rendering.CodecError
}

func (e *TransformationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("transformation failed for %d format(s): %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *TransformationError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
