package types

import (
	"fmt"
	"sort"
)

// Quality criteria names
const (
	CriterionLength      = "length"
	CriterionValidity    = "validity"
	CriterionKeywords    = "keywords"
	CriterionScore       = "score"
	CriterionConsistency = "consistency"
)

// CriterionScores holds the normalized per-criterion values for one variant
type CriterionScores struct {
	Length    float64 `json:"length"`
	Validity  float64 `json:"validity"`
	Keywords  float64 `json:"keywords"`
	WordCount int     `json:"word_count"`
}

// PairScore is the structural match ratio between two variants
type PairScore struct {
	A     Format  `json:"a"`
	B     Format  `json:"b"`
	Ratio float64 `json:"ratio"`
}

// Name renders the pair as "a,b"
func (p PairScore) Name() string {
	return string(p.A) + "," + string(p.B)
}

// Failure is one itemized reason a report did not pass
type Failure struct {
	Format    string  `json:"format"` // a single format or a "a,b" pair
	Criterion string  `json:"criterion"`
	Score     float64 `json:"score"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s/%s: %s", f.Format, f.Criterion, f.Detail)
}

// QualityReport is the outcome of validating one run's variants
type QualityReport struct {
	VariantScores    map[Format]float64         `json:"variant_scores"`
	Criteria         map[Format]CriterionScores `json:"criteria"`
	ConsistencyScore float64                    `json:"consistency_score"`
	PairScores       []PairScore                `json:"pair_scores,omitempty"`
	Passed           bool                       `json:"passed"`
	Reasons          []string                   `json:"reasons"`
	Failures         []Failure                  `json:"failures,omitempty"`
}

// SortFailures orders failures by (format, criterion), keeping insertion order for ties
func SortFailures(failures []Failure) {
	sort.SliceStable(failures, func(i, j int) bool {
		if failures[i].Format != failures[j].Format {
			return failures[i].Format < failures[j].Format
		}
		return failures[i].Criterion < failures[j].Criterion
	})
}

// MinScore returns the lowest per-variant score (0 when there are none)
func (r *QualityReport) MinScore() float64 {
	if len(r.VariantScores) == 0 {
		return 0
	}
	lowest := 1.0
	for _, s := range r.VariantScores {
		lowest = min(lowest, s)
	}
	return lowest
}

// MeanScore averages the per-variant scores (0 when there are none)
func (r *QualityReport) MeanScore() float64 {
	if len(r.VariantScores) == 0 {
		return 0
	}
	total := 0.0
	for _, f := range r.Formats() {
		total += r.VariantScores[f]
	}
	return total / float64(len(r.VariantScores))
}

// Formats returns the scored formats in canonical order
func (r *QualityReport) Formats() []Format {
	formats := make([]Format, 0, len(r.VariantScores))
	for f := range r.VariantScores {
		formats = append(formats, f)
	}
	return SortFormats(formats)
}
