package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/generator"
	"github.com/jonathan/echo-pipeline/internal/output"
	"github.com/jonathan/echo-pipeline/internal/pipeline"
	"github.com/jonathan/echo-pipeline/internal/transform"
	"github.com/jonathan/echo-pipeline/internal/types"
	"github.com/jonathan/echo-pipeline/internal/validation"
)

func stubDeps(t *testing.T) (Deps, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Formatter.OutputDir = t.TempDir()
	cfg.Harness.PerformanceIterations = 2

	gen := generator.New(generator.NewStub(), cfg.Generator, cfg.Validator.LengthTargets, nil)
	tr := transform.New(cfg.Transformer.Formats, nil)
	val, err := validation.New(cfg.Validator, nil)
	require.NoError(t, err)

	return Deps{
		Runner:      pipeline.New(gen, tr, val, output.New(cfg.Formatter)),
		Generator:   gen,
		Transformer: tr,
		Validator:   val,
		Config:      cfg,
		Prefix:      "harness-",
	}, cfg
}

func TestDefaultSuites_Shape(t *testing.T) {
	d, _ := stubDeps(t)
	suites := DefaultSuites(d)

	assert.Len(t, suites[types.TestUnit], 2*len(types.AllFormats)+3)
	assert.Len(t, suites[types.TestIntegration], 1)
	assert.Len(t, suites[types.TestPerformance], 2)
	assert.Len(t, suites[types.TestQuality], len(types.AllFormats))
	assert.Equal(t, 2, suites[types.TestPerformance][1].Iteration)
}

func TestDefaultSuites_AllPassWithStubProvider(t *testing.T) {
	d, cfg := stubDeps(t)
	h := New(cfg.Harness, DefaultSuites(d))

	report, err := h.Run(context.Background(), types.AllTestTypes)
	require.NoError(t, err)

	for _, tt := range types.AllTestTypes {
		r := report.Results[tt]
		assert.Truef(t, r.Succeeded, "%s: %v", tt, r.Reasons)
	}
	assert.True(t, report.Passed)
	assert.Equal(t, "2/2 passed", report.Results[types.TestPerformance].Summary())

	for _, id := range []string{"harness-integration", "harness-performance-1", "harness-quality-3"} {
		assert.DirExists(t, filepath.Join(cfg.Formatter.OutputDir, cfg.Formatter.DirName(id)))
	}
}

func TestDefaultSuites_RerunOverwrites(t *testing.T) {
	d, cfg := stubDeps(t)
	suites := DefaultSuites(d)

	for range 2 {
		report, err := New(cfg.Harness, suites).Run(context.Background(), []types.TestType{types.TestIntegration})
		require.NoError(t, err)
		assert.True(t, report.Passed)
	}

	entries, err := os.ReadDir(cfg.Formatter.OutputDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUnitCases_PassWithStubProvider(t *testing.T) {
	d, _ := stubDeps(t)
	for _, c := range DefaultSuites(d)[types.TestUnit] {
		t.Run(c.Name, func(t *testing.T) {
			out := c.Run(context.Background())
			assert.True(t, out.Passed, out.Error)
		})
	}
}
