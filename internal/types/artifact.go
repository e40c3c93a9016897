package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrReportNotPassed is returned when an artifact is built from a failing quality report
var ErrReportNotPassed = errors.New("quality report did not pass")

// GeneratorInfo records the generator settings used for a run
type GeneratorInfo struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// ArtifactMetadata is persisted next to the variant files
type ArtifactMetadata struct {
	GeneratedAt   time.Time      `json:"generated_at"`
	InputSpec     InputSpec      `json:"input_spec"`
	QualityReport QualityReport  `json:"quality_report"`
	Generator     *GeneratorInfo `json:"generator,omitempty"`
}

// Artifact is the persisted bundle of variants for one accepted iteration
type Artifact struct {
	IterationID string           `json:"iteration_id"`
	Variants    []Variant        `json:"variants"`
	Metadata    ArtifactMetadata `json:"metadata"`
}

// NewArtifact assembles an artifact from an accepted run.
// Variants are stored in canonical format order and must all derive from the same Document.
func NewArtifact(iterationID string, variants map[Format]Variant, spec InputSpec, report QualityReport, generatedAt time.Time) (*Artifact, error) {
	if iterationID == "" {
		return nil, fmt.Errorf("iteration id is required")
	}
	if !report.Passed {
		return nil, ErrReportNotPassed
	}
	if len(variants) == 0 {
		return nil, fmt.Errorf("artifact %s has no variants", iterationID)
	}

	formats := make([]Format, 0, len(variants))
	for f := range variants {
		formats = append(formats, f)
	}

	var source *Document
	ordered := make([]Variant, 0, len(variants))
	for _, f := range SortFormats(formats) {
		v := variants[f]
		if source == nil {
			source = v.DerivedFrom
		} else if v.DerivedFrom != source {
			return nil, fmt.Errorf("artifact %s mixes variants from different documents (%s)", iterationID, f)
		}
		ordered = append(ordered, v)
	}

	return &Artifact{
		IterationID: iterationID,
		Variants:    ordered,
		Metadata: ArtifactMetadata{
			GeneratedAt:   generatedAt.UTC(),
			InputSpec:     spec,
			QualityReport: report,
		},
	}, nil
}
