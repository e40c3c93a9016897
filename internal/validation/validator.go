// Package validation scores content variants and checks that they agree with each other.
package validation

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/rendering"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// Validator scores variants against an input spec
type Validator struct {
	cfg    config.ValidatorConfig
	logger *slog.Logger
}

// New creates a Validator, failing with *config.ConfigError on invalid weights or thresholds
func New(cfg config.ValidatorConfig, logger *slog.Logger) (*Validator, error) {
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{cfg: cfg, logger: logger.With("component", "validator")}, nil
}

// Config returns the validator configuration
func (v *Validator) Config() config.ValidatorConfig {
	return v.cfg
}

type decodedVariant struct {
	doc *types.Document
	err error
}

// Validate scores every variant and the consistency between them.
// It never fails: problems are reported through Passed, Reasons and Failures.
func (v *Validator) Validate(variants map[types.Format]types.Variant, spec types.InputSpec) types.QualityReport {
	report := types.QualityReport{
		VariantScores: make(map[types.Format]float64, len(variants)),
		Criteria:      make(map[types.Format]types.CriterionScores, len(variants)),
		Reasons:       []string{},
	}

	formats := make([]types.Format, 0, len(variants))
	for f := range variants {
		formats = append(formats, f)
	}
	formats = types.SortFormats(formats)

	if len(formats) == 0 {
		report.Failures = []types.Failure{{Format: "-", Criterion: types.CriterionScore, Detail: "no variants to validate"}}
		report.Reasons = []string{report.Failures[0].String()}
		return report
	}

	target := v.cfg.LengthTargets.For(spec.Length)
	keywords := Keywords(spec.Topic)
	decoded := make(map[types.Format]decodedVariant, len(formats))
	var failures []types.Failure

	for _, f := range formats {
		variant := variants[f]
		doc, err := rendering.Decode(variant.Body, f)
		decoded[f] = decodedVariant{doc: doc, err: err}

		scores := types.CriterionScores{}
		if err == nil {
			scores.Validity = 1
			scores.WordCount = doc.WordCount()
		} else {
			scores.WordCount = len(strings.Fields(variant.Body))
		}
		scores.Length = LengthScore(scores.WordCount, target)
		var missing []string
		scores.Keywords, missing = KeywordScore(variant.Body, keywords)

		score := v.cfg.Weights.Length*scores.Length +
			v.cfg.Weights.Validity*scores.Validity +
			v.cfg.Weights.Keywords*scores.Keywords
		report.Criteria[f] = scores
		report.VariantScores[f] = score

		v.logger.Debug("variant scored", "format", f, "score", score,
			"length", scores.Length, "validity", scores.Validity, "keywords", scores.Keywords)

		if score < v.cfg.QualityThreshold {
			failures = append(failures, variantFailures(f, score, v.cfg.QualityThreshold, scores, target, err, missing)...)
		}
	}

	report.ConsistencyScore, report.PairScores = 1, []types.PairScore{}
	for i := 0; i < len(formats); i++ {
		for j := i + 1; j < len(formats); j++ {
			pair, pairFailures := v.comparePair(formats[i], formats[j], decoded[formats[i]], decoded[formats[j]])
			report.PairScores = append(report.PairScores, pair)
			report.ConsistencyScore = min(report.ConsistencyScore, pair.Ratio)
			failures = append(failures, pairFailures...)
		}
	}

	report.Passed = report.ConsistencyScore >= v.cfg.ConsistencyThreshold
	for _, s := range report.VariantScores {
		if s < v.cfg.QualityThreshold {
			report.Passed = false
		}
	}

	types.SortFailures(failures)
	report.Failures = failures
	for _, f := range failures {
		report.Reasons = append(report.Reasons, f.String())
	}

	v.logger.Info("variants validated", "formats", len(formats), "passed", report.Passed,
		"min_score", report.MinScore(), "consistency", report.ConsistencyScore)
	return report
}

func variantFailures(f types.Format, score, threshold float64, scores types.CriterionScores, target int, decodeErr error, missing []string) []types.Failure {
	name := string(f)
	failures := []types.Failure{{
		Format: name, Criterion: types.CriterionScore, Score: score, Threshold: threshold,
		Detail: fmt.Sprintf("score %.2f below quality threshold %.2f", score, threshold),
	}}
	if scores.Length < 1 {
		failures = append(failures, types.Failure{
			Format: name, Criterion: types.CriterionLength, Score: scores.Length, Threshold: threshold,
			Detail: fmt.Sprintf("%d words against a target of %d (%.2f)", scores.WordCount, target, scores.Length),
		})
	}
	if decodeErr != nil {
		failures = append(failures, types.Failure{
			Format: name, Criterion: types.CriterionValidity, Threshold: threshold,
			Detail: fmt.Sprintf("body does not decode: %v", decodeErr),
		})
	}
	if len(missing) > 0 {
		failures = append(failures, types.Failure{
			Format: name, Criterion: types.CriterionKeywords, Score: scores.Keywords, Threshold: threshold,
			Detail: fmt.Sprintf("missing keywords: %s (%.2f)", strings.Join(missing, ", "), scores.Keywords),
		})
	}
	return failures
}

// comparePair aligns two decoded variants. Every unmatched block is itemised
// whenever the pair is not a perfect match, and the ratio is flagged when it
// falls below the consistency threshold.
func (v *Validator) comparePair(a, b types.Format, da, db decodedVariant) (types.PairScore, []types.Failure) {
	pair := types.PairScore{A: a, B: b}
	name := pair.Name()
	threshold := v.cfg.ConsistencyThreshold

	if da.err != nil || db.err != nil {
		var undecodable []string
		if da.err != nil {
			undecodable = append(undecodable, string(a))
		}
		if db.err != nil {
			undecodable = append(undecodable, string(b))
		}
		return pair, []types.Failure{{
			Format: name, Criterion: types.CriterionConsistency, Threshold: threshold,
			Detail: fmt.Sprintf("cannot compare: %s does not decode", strings.Join(undecodable, " and ")),
		}}
	}

	al := rendering.Align(da.doc, db.doc)
	pair.Ratio = al.Ratio()

	var failures []types.Failure
	if pair.Ratio < threshold {
		failures = append(failures, types.Failure{
			Format: name, Criterion: types.CriterionConsistency, Score: pair.Ratio, Threshold: threshold,
			Detail: fmt.Sprintf("match ratio %.2f below consistency threshold %.2f", pair.Ratio, threshold),
		})
	}
	for _, idx := range al.OnlyA {
		failures = append(failures, blockMismatch(name, pair.Ratio, threshold, da.doc.Blocks[idx], idx, a, b))
	}
	for _, idx := range al.OnlyB {
		failures = append(failures, blockMismatch(name, pair.Ratio, threshold, db.doc.Blocks[idx], idx, b, a))
	}
	return pair, failures
}

func blockMismatch(pair string, ratio, threshold float64, block types.Block, idx int, has, lacks types.Format) types.Failure {
	return types.Failure{
		Format: pair, Criterion: types.CriterionConsistency, Score: ratio, Threshold: threshold,
		Detail: fmt.Sprintf("%s block %d %q in %s has no match in %s", block.Kind, idx, excerpt(block.Text()), has, lacks),
	}
}

func excerpt(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	const limit = 40
	if r := []rune(text); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return text
}
