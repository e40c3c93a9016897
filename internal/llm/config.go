// Package llm wraps the hosted model SDKs behind one small client interface.
package llm

import (
	"fmt"
	"strings"

	"github.com/jonathan/echo-pipeline/internal/config"
)

// Provider represents an LLM provider
type Provider string

// Provider constants define supported LLM providers
const (
	// ProviderGemini is the Google Gemini provider
	ProviderGemini Provider = "gemini"
	// ProviderOpenAI is the OpenAI chat completions provider
	ProviderOpenAI Provider = "openai"
)

// DefaultModelName selects the provider's default model
const DefaultModelName = "default"

// DefaultModels maps each provider to the model used when none is configured
var DefaultModels = map[Provider]string{
	ProviderGemini: "gemini-2.5-flash",
	ProviderOpenAI: "gpt-4o-mini",
}

// APIKeyEnv names the environment variable holding each provider's key
var APIKeyEnv = map[Provider]string{
	ProviderGemini: "GEMINI_API_KEY",
	ProviderOpenAI: "OPENAI_API_KEY",
}

// Config holds the model settings for one client
type Config struct {
	Provider    Provider
	Model       string
	MaxTokens   int
	Temperature float64
}

// DefaultConfig returns the default configuration (Gemini)
func DefaultConfig() *Config {
	return &Config{
		Provider:    ProviderGemini,
		Model:       DefaultModels[ProviderGemini],
		MaxTokens:   1000,
		Temperature: 0.7,
	}
}

// ParseProvider converts a configured provider name
func ParseProvider(name string) (Provider, error) {
	switch p := Provider(strings.ToLower(strings.TrimSpace(name))); p {
	case ProviderGemini, ProviderOpenAI:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported LLM provider %q", name)
	}
}

// FromGeneratorConfig builds a client config from the generator section
func FromGeneratorConfig(g config.GeneratorConfig) (*Config, error) {
	provider, err := ParseProvider(g.Provider)
	if err != nil {
		return nil, err
	}
	return &Config{
		Provider:    provider,
		Model:       g.Model,
		MaxTokens:   g.MaxTokens,
		Temperature: g.Temperature,
	}, nil
}

// ResolveModel returns the configured model, falling back to the provider default
func (c *Config) ResolveModel() string {
	if c.Model == "" || c.Model == DefaultModelName {
		return DefaultModels[c.Provider]
	}
	return c.Model
}

// WithModel returns a copy of the config using model
func (c *Config) WithModel(model string) *Config {
	out := *c
	out.Model = model
	return &out
}
