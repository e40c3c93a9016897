package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/rendering"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// Generator requests content for an input spec and decodes it into a Document
type Generator struct {
	provider Provider
	cfg      config.GeneratorConfig
	targets  config.LengthTargets
	logger   *slog.Logger
}

// New creates a Generator. Length targets translate the spec's length class into words.
func New(provider Provider, cfg config.GeneratorConfig, targets config.LengthTargets, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider: provider,
		cfg:      cfg,
		targets:  targets,
		logger:   logger.With("component", "generator"),
	}
}

// Info describes the generator settings for artifact metadata
func (g *Generator) Info() types.GeneratorInfo {
	return types.GeneratorInfo{
		Provider:    g.cfg.Provider,
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	}
}

// Request builds the provider request for a spec
func (g *Generator) Request(spec types.InputSpec) types.GenerationRequest {
	return types.GenerationRequest{
		Topic:        spec.Topic,
		Format:       spec.PrimaryFormat,
		Style:        spec.Style,
		LengthTarget: g.targets.For(spec.Length),
	}
}

type providerResult struct {
	text string
	err  error
}

// Generate calls the provider under the configured timeout and decodes the answer
// in the spec's primary format. A context cancelled by the caller returns its error
// unchanged; an expired timeout returns *GenerationTimeoutError.
func (g *Generator) Generate(ctx context.Context, spec types.InputSpec) (*types.Document, error) {
	if g.provider == nil {
		return nil, &ProviderError{Provider: g.cfg.Provider, Message: "no provider configured"}
	}
	req := g.Request(spec)
	timeout := g.cfg.Timeout()

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan providerResult, 1)
	start := time.Now()
	go func() {
		text, err := g.provider.Generate(callCtx, req)
		results <- providerResult{text: text, err: err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var res providerResult
	select {
	case res = <-results:
	case <-timer:
		g.logger.Warn("provider timed out", "provider", g.cfg.Provider, "timeout", timeout)
		return nil, &GenerationTimeoutError{Provider: g.cfg.Provider, Timeout: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: g.cfg.Provider, Message: "generation failed", Cause: res.err}
	}
	if strings.TrimSpace(res.text) == "" {
		return nil, &ProviderError{Provider: g.cfg.Provider, Message: "empty response"}
	}

	doc, err := rendering.Decode(res.text, spec.PrimaryFormat)
	if err != nil {
		return nil, &ProviderError{
			Provider: g.cfg.Provider,
			Message:  fmt.Sprintf("response is not valid %s", spec.PrimaryFormat),
			Cause:    err,
		}
	}
	doc.Origin = spec.PrimaryFormat

	g.logger.Info("content generated", "provider", g.cfg.Provider, "format", spec.PrimaryFormat,
		"blocks", len(doc.Blocks), "words", doc.WordCount(), "duration", time.Since(start))
	return doc, nil
}
