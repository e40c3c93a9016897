package pipeline

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/generator"
	"github.com/jonathan/echo-pipeline/internal/output"
	"github.com/jonathan/echo-pipeline/internal/transform"
	"github.com/jonathan/echo-pipeline/internal/types"
	"github.com/jonathan/echo-pipeline/internal/validation"
)

type memoryRecorder struct {
	mu      sync.Mutex
	records []types.ExecutionRecord
	err     error
}

func (r *memoryRecorder) Record(_ context.Context, rec types.ExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.err
}

type memoryStore struct {
	saved []*types.Artifact
	err   error
}

func (s *memoryStore) SaveArtifact(_ context.Context, a *types.Artifact) error {
	s.saved = append(s.saved, a)
	return s.err
}

func newTestPipeline(t *testing.T, provider generator.Provider, opts ...Option) (*Pipeline, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Formatter.OutputDir = t.TempDir()

	val, err := validation.New(cfg.Validator, nil)
	require.NoError(t, err)

	p := New(
		generator.New(provider, cfg.Generator, cfg.Validator.LengthTargets, nil),
		transform.New(cfg.Transformer.Formats, nil),
		val,
		output.New(cfg.Formatter),
		opts...,
	)
	return p, cfg.Formatter.OutputDir
}

func echoSpec() types.InputSpec {
	return types.NewInputSpec("Echo Pipeline Testing", types.FormatMarkdown, types.LengthMedium, nil)
}

func fixed(body string) generator.Provider {
	return generator.ProviderFunc(func(context.Context, types.GenerationRequest) (string, error) {
		return body, nil
	})
}

func entries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	return list
}

func TestRun_AcceptedAndPersisted(t *testing.T) {
	rec := &memoryRecorder{}
	store := &memoryStore{}
	p, root := newTestPipeline(t, generator.NewStub(), WithRecorder(rec), WithArtifactStore(store))

	var stages []string
	res, err := p.Run(context.Background(), echoSpec(), RunOptions{
		IterationID: "1",
		OnProgress:  func(e ProgressEvent) { stages = append(stages, e.Stage) },
	})
	require.NoError(t, err)

	assert.True(t, res.Accepted)
	assert.True(t, res.Report.Passed)
	assert.Equal(t, 1.0, res.Report.ConsistencyScore)
	assert.Len(t, res.Variants, 3)
	assert.Len(t, res.Paths, 4)
	assert.Equal(t, []string{StageGenerate, StageTransform, StageValidate, StagePersist}, stages)
	for _, s := range Stages {
		assert.Contains(t, res.StageDurations, s)
	}

	require.NotNil(t, res.Artifact.Metadata.Generator)
	assert.Equal(t, "stub", res.Artifact.Metadata.Generator.Provider)
	for _, v := range res.Artifact.Variants {
		assert.Same(t, res.Document, v.DerivedFrom)
	}
	assert.DirExists(t, root+"/iteration-1")

	require.Len(t, rec.records, 1)
	assert.True(t, rec.records[0].Success)
	assert.True(t, rec.records[0].Accepted)
	assert.Equal(t, "Echo Pipeline Testing", rec.records[0].Topic)
	require.Len(t, store.saved, 1)
	assert.Same(t, res.Artifact, store.saved[0])
}

func TestRun_GeneratesIterationID(t *testing.T) {
	p, _ := newTestPipeline(t, generator.NewStub())

	a, err := p.Run(context.Background(), echoSpec(), RunOptions{})
	require.NoError(t, err)
	b, err := p.Run(context.Background(), echoSpec(), RunOptions{})
	require.NoError(t, err)

	assert.Len(t, a.IterationID, 36)
	assert.NotEqual(t, a.IterationID, b.IterationID)
}

func TestRun_RejectedReportPersistsNothing(t *testing.T) {
	rec := &memoryRecorder{}
	p, root := newTestPipeline(t, fixed("# Echo\n\nToo short.\n"), WithRecorder(rec))

	res, err := p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "2"})
	require.NoError(t, err)

	assert.False(t, res.Accepted)
	assert.False(t, res.Report.Passed)
	assert.NotEmpty(t, res.Report.Reasons)
	assert.Nil(t, res.Artifact)
	assert.Empty(t, entries(t, root))

	require.Len(t, rec.records, 1)
	assert.True(t, rec.records[0].Success)
	assert.False(t, rec.records[0].Accepted)
}

func TestRun_DryRun(t *testing.T) {
	p, root := newTestPipeline(t, generator.NewStub())

	res, err := p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "3", DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.Report.Passed)
	assert.False(t, res.Accepted)
	assert.Empty(t, entries(t, root))
}

func TestRun_InvalidSpec(t *testing.T) {
	p, _ := newTestPipeline(t, generator.NewStub())

	_, err := p.Run(context.Background(), types.NewInputSpec("", types.FormatMarkdown, types.LengthShort, nil), RunOptions{IterationID: "4"})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageInput, stageErr.Stage)
	assert.Equal(t, "4", stageErr.IterationID)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	rec := &memoryRecorder{}
	p, root := newTestPipeline(t, generator.NewStub(), WithRecorder(rec))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, echoSpec(), RunOptions{IterationID: "5"})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, entries(t, root))

	require.Len(t, rec.records, 1)
	assert.False(t, rec.records[0].Success)
	assert.Equal(t, StageInput, rec.records[0].FailedStage)
}

func TestRun_CancelledDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, root := newTestPipeline(t, generator.ProviderFunc(func(ctx context.Context, _ types.GenerationRequest) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}))

	_, err := p.Run(ctx, echoSpec(), RunOptions{IterationID: "6"})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageGenerate, stageErr.Stage)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, entries(t, root))
}

func TestRun_CancelledBeforePersist(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, root := newTestPipeline(t, generator.NewStub())

	res, err := p.Run(ctx, echoSpec(), RunOptions{
		IterationID: "7",
		OnProgress: func(e ProgressEvent) {
			if e.Stage == StageValidate {
				cancel()
			}
		},
	})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersist, stageErr.Stage)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.True(t, res.Report.Passed)
	assert.Empty(t, entries(t, root))
}

func TestRun_TransformFailure(t *testing.T) {
	p, root := newTestPipeline(t, fixed("# Echo Pipeline Testing\n\n```go\nx := 1\n```\n"))

	_, err := p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "8"})
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageTransform, stageErr.Stage)

	var trErr *transform.TransformationError
	require.ErrorAs(t, err, &trErr)
	require.Len(t, trErr.Failures, 1)
	assert.Equal(t, types.FormatJSONLD, trErr.Failures[0].Format)
	assert.Empty(t, entries(t, root))
}

func TestRun_ProviderFailure(t *testing.T) {
	boom := errors.New("quota exceeded")
	p, _ := newTestPipeline(t, generator.ProviderFunc(func(context.Context, types.GenerationRequest) (string, error) {
		return "", boom
	}))

	_, err := p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "9"})
	var providerErr *generator.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrCancelled)
}

func TestRun_ConflictKeepsVariantsAndReport(t *testing.T) {
	p, _ := newTestPipeline(t, generator.NewStub())
	_, err := p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "10"})
	require.NoError(t, err)

	res, err := p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "10"})
	var conflict *output.ConflictError
	require.ErrorAs(t, err, &conflict)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersist, stageErr.Stage)

	assert.False(t, res.Accepted)
	assert.Len(t, res.Variants, 3)
	require.NotNil(t, res.Report)
	assert.True(t, res.Report.Passed)

	res, err = p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "10", Overwrite: true})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestRun_RecorderAndStoreFailuresAreNotFatal(t *testing.T) {
	rec := &memoryRecorder{err: errors.New("disk full")}
	store := &memoryStore{err: errors.New("db down")}
	p, _ := newTestPipeline(t, generator.NewStub(), WithRecorder(rec), WithArtifactStore(store))

	res, err := p.Run(context.Background(), echoSpec(), RunOptions{IterationID: "11"})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Len(t, rec.records, 1)
	assert.Len(t, store.saved, 1)
}

func TestRecord(t *testing.T) {
	res := &Result{
		IterationID: "x",
		Spec:        echoSpec(),
		Report: &types.QualityReport{
			VariantScores:    map[types.Format]float64{types.FormatHTML: 0.9, types.FormatMarkdown: 0.7},
			ConsistencyScore: 0.5,
			Reasons:          []string{"r"},
		},
	}
	rec := Record(res, &StageError{Stage: StagePersist, IterationID: "x", Cause: errors.New("boom")})

	assert.False(t, rec.Success)
	assert.Equal(t, StagePersist, rec.FailedStage)
	assert.Equal(t, 0.7, rec.QualityScore)
	assert.Equal(t, 0.5, rec.ConsistencyScore)
	assert.Equal(t, "pipeline stage persist failed for iteration x: boom", rec.Error)
}
