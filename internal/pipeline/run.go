// Package pipeline runs one input spec through generation, transformation, validation and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/echo-pipeline/internal/generator"
	"github.com/jonathan/echo-pipeline/internal/output"
	"github.com/jonathan/echo-pipeline/internal/transform"
	"github.com/jonathan/echo-pipeline/internal/types"
	"github.com/jonathan/echo-pipeline/internal/validation"
)

// Stage names, in execution order
const (
	StageInput     = "input"
	StageGenerate  = "generate"
	StageTransform = "transform"
	StageValidate  = "validate"
	StagePersist   = "persist"
)

// Stages lists every stage in execution order
var Stages = []string{StageInput, StageGenerate, StageTransform, StageValidate, StagePersist}

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	Stage       string `json:"stage"`
	Message     string `json:"message"`
	IterationID string `json:"iteration_id"`
	Content     any    `json:"content,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)

// Recorder receives a summary of every finished run, accepted or not
type Recorder interface {
	Record(ctx context.Context, rec types.ExecutionRecord) error
}

// ArtifactStore mirrors persisted artifacts somewhere other than the output directory
type ArtifactStore interface {
	SaveArtifact(ctx context.Context, artifact *types.Artifact) error
}

// RunOptions holds per-run settings
type RunOptions struct {
	IterationID string // generated when empty
	Overwrite   bool
	DryRun      bool // validate but do not persist
	OnProgress  ProgressCallback
}

// Result is everything one run produced. Variants and Report are kept even
// when persistence fails.
type Result struct {
	IterationID    string
	Spec           types.InputSpec
	Document       *types.Document
	Variants       map[types.Format]types.Variant
	Report         *types.QualityReport
	Artifact       *types.Artifact
	Paths          []string
	Accepted       bool
	StartedAt      time.Time
	Duration       time.Duration
	StageDurations map[string]time.Duration
}

// Pipeline wires the stages together. It is safe to run concurrently;
// each run owns its document and variants.
type Pipeline struct {
	generator   *generator.Generator
	transformer *transform.Transformer
	validator   *validation.Validator
	formatter   *output.Formatter
	recorders   []Recorder
	stores      []ArtifactStore
	logger      *slog.Logger
	now         func() time.Time
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithRecorder adds a recorder notified after every run
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorders = append(p.recorders, r)
		}
	}
}

// WithArtifactStore adds a mirror for accepted artifacts
func WithArtifactStore(s ArtifactStore) Option {
	return func(p *Pipeline) {
		if s != nil {
			p.stores = append(p.stores, s)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a Pipeline
func New(gen *generator.Generator, tr *transform.Transformer, val *validation.Validator, f *output.Formatter, opts ...Option) *Pipeline {
	p := &Pipeline{
		generator:   gen,
		transformer: tr,
		validator:   val,
		formatter:   f,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "pipeline")
	return p
}

func emitProgress(opts *RunOptions, stage, iterationID, message string, content any) {
	if opts.OnProgress != nil {
		opts.OnProgress(ProgressEvent{
			Stage:       stage,
			Message:     message,
			IterationID: iterationID,
			Content:     content,
		})
	}
}

// Run executes one iteration. Stage failures are returned as *StageError;
// a report that does not pass is not an error and yields Accepted == false.
// Cancellation is checked before each stage and a cancelled run persists nothing.
func (p *Pipeline) Run(ctx context.Context, spec types.InputSpec, opts RunOptions) (*Result, error) {
	id := opts.IterationID
	if id == "" {
		id = uuid.NewString()
	}
	res := &Result{
		IterationID:    id,
		Spec:           spec,
		StartedAt:      p.now(),
		StageDurations: make(map[string]time.Duration, len(Stages)),
	}

	err := p.run(ctx, spec, &opts, res)
	res.Duration = p.now().Sub(res.StartedAt)
	p.record(ctx, res, err)

	if err != nil {
		p.logger.Warn("pipeline run failed", "iteration_id", id, "error", err)
		return res, err
	}
	p.logger.Info("pipeline run finished", "iteration_id", id, "accepted", res.Accepted, "duration", res.Duration)
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, spec types.InputSpec, opts *RunOptions, res *Result) error {
	id := res.IterationID

	stage := func(name string, fn func() error) error {
		if ctx.Err() != nil {
			return &StageError{Stage: name, IterationID: id, Cause: cancelled(ctx.Err())}
		}
		start := p.now()
		err := fn()
		res.StageDurations[name] = p.now().Sub(start)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			err = cancelled(err)
		}
		return &StageError{Stage: name, IterationID: id, Cause: err}
	}

	if err := stage(StageInput, func() error { return spec.Validate() }); err != nil {
		return err
	}

	if err := stage(StageGenerate, func() error {
		doc, err := p.generator.Generate(ctx, spec)
		res.Document = doc
		return err
	}); err != nil {
		return err
	}
	emitProgress(opts, StageGenerate, id, fmt.Sprintf("Generated %d blocks (%d words)", len(res.Document.Blocks), res.Document.WordCount()), res.Document)

	if err := stage(StageTransform, func() error {
		variants, err := p.transformer.Transform(res.Document)
		res.Variants = variants
		return err
	}); err != nil {
		return err
	}
	emitProgress(opts, StageTransform, id, fmt.Sprintf("Rendered %d formats", len(res.Variants)), nil)

	if err := stage(StageValidate, func() error {
		report := p.validator.Validate(res.Variants, spec)
		res.Report = &report
		return nil
	}); err != nil {
		return err
	}
	emitProgress(opts, StageValidate, id, fmt.Sprintf("Quality passed: %t (consistency %.2f)", res.Report.Passed, res.Report.ConsistencyScore), res.Report)

	if !res.Report.Passed || opts.DryRun {
		return nil
	}

	if err := stage(StagePersist, func() error {
		artifact, err := types.NewArtifact(id, res.Variants, spec, *res.Report, res.StartedAt)
		if err != nil {
			return err
		}
		info := p.generator.Info()
		artifact.Metadata.Generator = &info

		paths, err := p.formatter.Persist(artifact, opts.Overwrite)
		if err != nil {
			return err
		}
		res.Artifact, res.Paths, res.Accepted = artifact, paths, true
		return nil
	}); err != nil {
		return err
	}
	emitProgress(opts, StagePersist, id, fmt.Sprintf("Persisted %d files", len(res.Paths)), res.Paths)

	for _, s := range p.stores {
		if err := s.SaveArtifact(ctx, res.Artifact); err != nil {
			p.logger.Warn("failed to mirror artifact", "iteration_id", id, "error", err)
		}
	}
	return nil
}

func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// Record builds the execution summary of a finished run
func Record(res *Result, runErr error) types.ExecutionRecord {
	rec := types.ExecutionRecord{
		IterationID:   res.IterationID,
		Topic:         res.Spec.Topic,
		PrimaryFormat: res.Spec.PrimaryFormat,
		StartedAt:     res.StartedAt,
		Duration:      res.Duration,
		Success:       runErr == nil,
		Accepted:      res.Accepted,
		Paths:         res.Paths,
	}
	if res.Report != nil {
		rec.QualityScore = res.Report.MinScore()
		rec.ConsistencyScore = res.Report.ConsistencyScore
		rec.Reasons = res.Report.Reasons
	}
	if runErr != nil {
		rec.Error = runErr.Error()
		var stageErr *StageError
		if errors.As(runErr, &stageErr) {
			rec.FailedStage = stageErr.Stage
		}
	}
	return rec
}

// record notifies recorders; their failures never fail the run
func (p *Pipeline) record(ctx context.Context, res *Result, runErr error) {
	if len(p.recorders) == 0 {
		return
	}
	rec := Record(res, runErr)
	// a cancelled caller context must not prevent the record from being written
	ctx = context.WithoutCancel(ctx)
	for _, r := range p.recorders {
		if err := r.Record(ctx, rec); err != nil {
			p.logger.Warn("failed to record execution", "iteration_id", res.IterationID, "error", err)
		}
	}
}
