// Package rendering encodes canonical documents into markdown, HTML and JSON-LD and decodes them back.
package rendering

import (
	"fmt"

	"github.com/jonathan/echo-pipeline/internal/types"
)

// CodecError reports a document that cannot be encoded or a body that cannot be decoded.
// Index is the offending block position, or -1 when the failure concerns the whole body.
type CodecError struct {
	Format    types.Format
	BlockKind types.BlockKind
	Index     int
	Message   string
	Cause     error
}

func (e *CodecError) Error() string {
	where := string(e.Format)
	if e.Index >= 0 {
		where = fmt.Sprintf("%s block %d", e.Format, e.Index)
		if e.BlockKind != "" {
			where = fmt.Sprintf("%s (%s)", where, e.BlockKind)
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("codec error: %s: %s: %v", where, e.Message, e.Cause)
	}
	return fmt.Sprintf("codec error: %s: %s", where, e.Message)
}

func (e *CodecError) Unwrap() error {
	return e.Cause
}

// TemplateError represents an error executing the HTML document template
type TemplateError struct {
	Message string
	Cause   error
}

func (e *TemplateError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("template error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("template error: %s", e.Message)
}

func (e *TemplateError) Unwrap() error {
	return e.Cause
}
