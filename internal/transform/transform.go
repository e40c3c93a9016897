package transform

import (
	"errors"
	"log/slog"

	"github.com/jonathan/echo-pipeline/internal/rendering"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// Transformer encodes documents into a fixed set of formats
type Transformer struct {
	formats []types.Format
	logger  *slog.Logger
}

// New creates a Transformer for the given formats (all formats when empty)
func New(formats []types.Format, logger *slog.Logger) *Transformer {
	if len(formats) == 0 {
		formats = types.AllFormats
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{
		formats: types.SortFormats(formats),
		logger:  logger.With("component", "transform"),
	}
}

// Formats returns the configured formats in canonical order
func (t *Transformer) Formats() []types.Format {
	return append([]types.Format(nil), t.formats...)
}

// Transform encodes doc into every configured format
func (t *Transformer) Transform(doc *types.Document) (map[types.Format]types.Variant, error) {
	variants, err := Transform(doc, t.formats)
	if err != nil {
		t.logger.Warn("transformation failed", "error", err)
		return nil, err
	}
	t.logger.Debug("document transformed", "formats", len(variants), "blocks", len(doc.Blocks))
	return variants, nil
}

// Transform encodes doc into each requested format in canonical order.
// The result is deterministic for a given document. When any format fails,
// no variants are returned and the error lists every failing format.
func Transform(doc *types.Document, formats []types.Format) (map[types.Format]types.Variant, error) {
	if len(formats) == 0 {
		return nil, ErrNoFormats
	}

	variants := make(map[types.Format]types.Variant, len(formats))
	var failures []*rendering.CodecError

	for _, format := range types.SortFormats(formats) {
		body, err := rendering.Encode(doc, format)
		if err != nil {
			var codecErr *rendering.CodecError
			if !errors.As(err, &codecErr) {
				codecErr = &rendering.CodecError{Format: format, Index: -1, Message: "encoding failed", Cause: err}
			}
			failures = append(failures, codecErr)
			continue
		}
		variants[format] = types.Variant{Format: format, Body: body, DerivedFrom: doc}
	}

	if len(failures) > 0 {
		return nil, &TransformationError{Failures: failures}
	}
	return variants, nil
}
