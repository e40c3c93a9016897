package harness

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/generator"
	"github.com/jonathan/echo-pipeline/internal/output"
	"github.com/jonathan/echo-pipeline/internal/pipeline"
	"github.com/jonathan/echo-pipeline/internal/rendering"
	"github.com/jonathan/echo-pipeline/internal/transform"
	"github.com/jonathan/echo-pipeline/internal/types"
	"github.com/jonathan/echo-pipeline/internal/validation"
)

// Runner executes one pipeline iteration; *pipeline.Pipeline satisfies it
type Runner interface {
	Run(ctx context.Context, spec types.InputSpec, opts pipeline.RunOptions) (*pipeline.Result, error)
}

// Deps are the components the built-in suites exercise
type Deps struct {
	Runner      Runner
	Generator   *generator.Generator
	Transformer *transform.Transformer
	Validator   *validation.Validator
	Config      *config.Config
	// Prefix namespaces the iteration ids the pipeline cases persist under
	Prefix string
}

// IntegrationSpec is the input the integration case runs end to end
var IntegrationSpec = types.InputSpec{
	Topic:         "Echo Pipeline Testing",
	PrimaryFormat: types.FormatMarkdown,
	Length:        types.LengthMedium,
}

// DefaultSuites builds the unit, integration, performance and quality cases
func DefaultSuites(d Deps) Suites {
	return Suites{
		types.TestUnit:        unitCases(d),
		types.TestIntegration: integrationCases(d),
		types.TestPerformance: performanceCases(d),
		types.TestQuality:     qualityCases(d),
	}
}

func unitCases(d Deps) []Case {
	var cases []Case
	for _, f := range types.AllFormats {
		spec := types.InputSpec{Topic: "Unit " + string(f), PrimaryFormat: f, Length: types.LengthShort}
		cases = append(cases, Case{
			Name: "generator/" + string(f),
			Run: func(ctx context.Context) types.Outcome {
				doc, err := d.Generator.Generate(ctx, spec)
				if err != nil {
					return failed(err)
				}
				if len(doc.Blocks) == 0 {
					return types.Outcome{Error: "generated document is empty"}
				}
				return types.Outcome{Passed: true}
			},
		})
	}

	for _, f := range types.AllFormats {
		cases = append(cases, Case{
			Name: "codec/" + string(f) + "/roundtrip",
			Run: func(context.Context) types.Outcome {
				doc := fixtureDocument(f)
				body, err := rendering.Encode(doc, f)
				if err != nil {
					return failed(err)
				}
				back, err := rendering.Decode(body, f)
				if err != nil {
					return failed(err)
				}
				if !rendering.Equal(doc, back) {
					return types.Outcome{Error: fmt.Sprintf("%s round trip changed the document", f)}
				}
				return types.Outcome{Passed: true}
			},
		})
	}

	cases = append(cases,
		Case{
			Name: "transformer/determinism",
			Run: func(context.Context) types.Outcome {
				doc := stubDocument(d, IntegrationSpec)
				first, err := d.Transformer.Transform(doc)
				if err != nil {
					return failed(err)
				}
				second, err := d.Transformer.Transform(doc)
				if err != nil {
					return failed(err)
				}
				for f, v := range first {
					if second[f].Body != v.Body {
						return types.Outcome{Error: fmt.Sprintf("%s output differs between calls", f)}
					}
				}
				return types.Outcome{Passed: true}
			},
		},
		Case{
			Name: "validator/consistent-variants",
			Run: func(context.Context) types.Outcome {
				spec := IntegrationSpec
				variants, err := d.Transformer.Transform(stubDocument(d, spec))
				if err != nil {
					return failed(err)
				}
				return reportOutcome(d.Validator.Validate(variants, spec))
			},
		},
		Case{
			Name: "formatter/persist-and-conflict",
			Run:  func(context.Context) types.Outcome { return formatterCheck(d) },
		},
	)
	return cases
}

func integrationCases(d Deps) []Case {
	return []Case{{
		Name: "pipeline/end-to-end",
		Run: func(ctx context.Context) types.Outcome {
			return runPipeline(ctx, d, IntegrationSpec, d.Prefix+"integration")
		},
	}}
}

func performanceCases(d Deps) []Case {
	n := 1
	if d.Config != nil && d.Config.Harness.PerformanceIterations > 0 {
		n = d.Config.Harness.PerformanceIterations
	}
	cases := make([]Case, 0, n)
	for i := 1; i <= n; i++ {
		spec := types.InputSpec{
			Topic:         fmt.Sprintf("Performance Test %d", i),
			PrimaryFormat: types.FormatMarkdown,
			Length:        types.LengthShort,
		}
		cases = append(cases, Case{
			Name:      fmt.Sprintf("pipeline/iteration-%d", i),
			Iteration: i,
			Run: func(ctx context.Context) types.Outcome {
				return runPipeline(ctx, d, spec, fmt.Sprintf("%sperformance-%d", d.Prefix, i))
			},
		})
	}
	return cases
}

func qualityCases(d Deps) []Case {
	var cases []Case
	for i, f := range types.AllFormats {
		spec := types.InputSpec{
			Topic:         fmt.Sprintf("Test %d", i+1),
			PrimaryFormat: f,
			Length:        types.LengthMedium,
		}
		cases = append(cases, Case{
			Name:      "pipeline/" + string(f),
			Iteration: i + 1,
			Run: func(ctx context.Context) types.Outcome {
				return runPipeline(ctx, d, spec, fmt.Sprintf("%squality-%d", d.Prefix, i+1))
			},
		})
	}
	return cases
}

// runPipeline passes when the run is accepted and persisted
func runPipeline(ctx context.Context, d Deps, spec types.InputSpec, iterationID string) types.Outcome {
	res, err := d.Runner.Run(ctx, spec, pipeline.RunOptions{IterationID: iterationID, Overwrite: true})
	if err != nil {
		out := failed(err)
		if res != nil && res.Report != nil {
			out.QualityScore = res.Report.MinScore()
			out.ConsistencyScore = res.Report.ConsistencyScore
		}
		return out
	}
	return reportOutcome(*res.Report)
}

func reportOutcome(report types.QualityReport) types.Outcome {
	return types.Outcome{
		Passed:           report.Passed,
		QualityScore:     report.MinScore(),
		ConsistencyScore: report.ConsistencyScore,
		Reasons:          report.Reasons,
	}
}

func failed(err error) types.Outcome {
	return types.Outcome{Error: err.Error()}
}

// formatterCheck persists a stub artifact into a scratch directory, then
// checks the second persist conflicts and leaves the files unchanged
func formatterCheck(d Deps) types.Outcome {
	dir, err := os.MkdirTemp("", "echo-harness-*")
	if err != nil {
		return failed(err)
	}
	defer os.RemoveAll(dir)

	naming := "iteration-" + config.IterationPlaceholder
	if d.Config != nil {
		naming = d.Config.Formatter.NamingConvention
	}
	f := output.New(config.FormatterConfig{OutputDir: dir, NamingConvention: naming})

	spec := IntegrationSpec
	variants, err := d.Transformer.Transform(stubDocument(d, spec))
	if err != nil {
		return failed(err)
	}
	report := types.QualityReport{
		VariantScores:    map[types.Format]float64{},
		ConsistencyScore: 1,
		Passed:           true,
		Reasons:          []string{},
	}
	for format := range variants {
		report.VariantScores[format] = 1
	}
	artifact, err := types.NewArtifact("harness", variants, spec, report, time.Now())
	if err != nil {
		return failed(err)
	}

	paths, err := f.Persist(artifact, false)
	if err != nil {
		return failed(err)
	}
	if len(paths) != len(variants)+1 {
		return types.Outcome{Error: fmt.Sprintf("expected %d files, wrote %d", len(variants)+1, len(paths))}
	}
	before, err := f.ReadMetadata("harness")
	if err != nil {
		return failed(err)
	}

	if _, err := f.Persist(artifact, false); err == nil {
		return types.Outcome{Error: "second persist without overwrite did not conflict"}
	}
	after, err := f.ReadMetadata("harness")
	if err != nil {
		return failed(err)
	}
	if !reflect.DeepEqual(before, after) {
		return types.Outcome{Error: "conflicting persist changed the existing artifact"}
	}
	return types.Outcome{Passed: true}
}

func stubDocument(d Deps, spec types.InputSpec) *types.Document {
	return generator.StubDocument(d.Generator.Request(spec))
}

// fixtureDocument exercises every block kind the format supports
func fixtureDocument(origin types.Format) *types.Document {
	doc := &types.Document{
		Origin: origin,
		Blocks: []types.Block{
			types.Heading(1, "Harness Fixture"),
			types.Paragraph(
				types.Span{Text: "Plain text with "},
				types.Span{Text: "bold", Strong: true},
				types.Span{Text: " and a "},
				types.Span{Text: "link", Href: "https://example.com/docs"},
				types.Span{Text: "."},
			),
			types.List(false, "first item", "second item"),
			types.List(true, "step one", "step two"),
			{Kind: types.BlockQuote, Spans: []types.Span{{Text: "Quoted line."}}},
			types.Heading(2, "Closing"),
			types.Paragraph(types.Span{Text: "Final paragraph."}),
		},
	}
	if origin != types.FormatJSONLD {
		doc.Blocks = append(doc.Blocks, types.Block{Kind: types.BlockCode, Language: "go", Code: "fmt.Println(\"echo\")"})
	}
	return doc
}
