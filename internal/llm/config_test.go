package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/echo-pipeline/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, "gemini-2.5-flash", cfg.ResolveModel())
	assert.Equal(t, 1000, cfg.MaxTokens)
}

func TestResolveModel_Default(t *testing.T) {
	for _, model := range []string{"", DefaultModelName} {
		cfg := &Config{Provider: ProviderOpenAI, Model: model}
		assert.Equal(t, "gpt-4o-mini", cfg.ResolveModel(), "model %q", model)
	}

	cfg := &Config{Provider: ProviderOpenAI, Model: "gpt-4.1"}
	assert.Equal(t, "gpt-4.1", cfg.ResolveModel())
}

func TestWithModel(t *testing.T) {
	cfg := DefaultConfig()
	custom := cfg.WithModel("custom-model")

	assert.Equal(t, "gemini-2.5-flash", cfg.ResolveModel())
	assert.Equal(t, "custom-model", custom.ResolveModel())
	assert.Equal(t, cfg.Temperature, custom.Temperature)
}

func TestParseProvider(t *testing.T) {
	p, err := ParseProvider(" OpenAI ")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, p)

	_, err = ParseProvider("stub")
	assert.Error(t, err)
}

func TestFromGeneratorConfig(t *testing.T) {
	g := config.DefaultConfig().Generator
	g.Provider = "gemini"
	g.MaxTokens = 2048

	cfg, err := FromGeneratorConfig(g)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, cfg.Provider)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, DefaultModels[ProviderGemini], cfg.ResolveModel())

	g.Provider = "anthropic"
	_, err = FromGeneratorConfig(g)
	assert.Error(t, err)
}

func TestProviderConstants(t *testing.T) {
	assert.Equal(t, Provider("gemini"), ProviderGemini)
	assert.Equal(t, Provider("openai"), ProviderOpenAI)
	assert.Equal(t, "GEMINI_API_KEY", APIKeyEnv[ProviderGemini])
	assert.Equal(t, "OPENAI_API_KEY", APIKeyEnv[ProviderOpenAI])
}
