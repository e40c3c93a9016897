package generator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/llm"
	"github.com/jonathan/echo-pipeline/internal/prompts"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// Provider produces raw content for a request, in the requested format
type Provider interface {
	Generate(ctx context.Context, req types.GenerationRequest) (string, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, req types.GenerationRequest) (string, error)

// Generate calls f
func (f ProviderFunc) Generate(ctx context.Context, req types.GenerationRequest) (string, error) {
	return f(ctx, req)
}

// LLMProvider prompts a hosted model for content
type LLMProvider struct {
	client llm.Client
}

// NewLLMProvider wraps an LLM client
func NewLLMProvider(client llm.Client) *LLMProvider {
	return &LLMProvider{client: client}
}

// Generate renders the generation prompt, calls the model and strips wrapping the model added
func (p *LLMProvider) Generate(ctx context.Context, req types.GenerationRequest) (string, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return "", err
	}
	system, err := prompts.Get(prompts.Generation, "system")
	if err != nil {
		return "", err
	}

	text, err := p.client.GenerateContent(ctx, system, prompt)
	if err != nil {
		return "", err
	}

	text = llm.CleanCodeFence(text)
	if req.Format == types.FormatJSONLD {
		if obj := llm.ExtractJSONObject(text); obj != "" {
			text = obj
		}
	}
	return text, nil
}

// Close releases the underlying client
func (p *LLMProvider) Close() error {
	return p.client.Close()
}

// BuildPrompt fills the generation prompt for a request
func BuildPrompt(req types.GenerationRequest) (string, error) {
	instructions, err := prompts.Get(prompts.Generation, "format-"+string(req.Format))
	if err != nil {
		return "", fmt.Errorf("no prompt for format %s: %w", req.Format, err)
	}
	return prompts.Render(prompts.Generation, "generate", map[string]string{
		"Topic":              req.Topic,
		"LengthTarget":       fmt.Sprintf("%d", req.LengthTarget),
		"Style":              describeStyle(req.Style),
		"FormatInstructions": instructions,
	})
}

// describeStyle renders style hints as sorted key=value pairs
func describeStyle(style map[string]string) string {
	if len(style) == 0 {
		return "neutral"
	}
	keys := make([]string, 0, len(style))
	for k := range style {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+style[k])
	}
	return strings.Join(parts, ", ")
}

// NewProvider builds the provider named by the generator config.
// Hosted providers need an API key; the stub does not.
func NewProvider(ctx context.Context, cfg config.GeneratorConfig, apiKey string) (Provider, error) {
	if cfg.Provider == ProviderStub {
		return NewStub(), nil
	}

	llmCfg, err := llm.FromGeneratorConfig(cfg)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(ctx, llmCfg, apiKey)
	if err != nil {
		return nil, err
	}
	return NewLLMProvider(client), nil
}
