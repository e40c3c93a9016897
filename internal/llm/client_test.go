package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_RequiresAPIKey(t *testing.T) {
	for _, p := range []Provider{ProviderGemini, ProviderOpenAI} {
		_, err := NewClient(context.Background(), &Config{Provider: p}, "")
		require.Error(t, err, p)
		assert.Contains(t, err.Error(), "API key is required")
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{Provider: "anthropic"}, "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}

func TestOpenAIClient_GenerateContent(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 0, "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "# Echo\n\nBody"}}]
		}`)
	}))
	defer srv.Close()

	cfg := &Config{Provider: ProviderOpenAI, Model: DefaultModelName, MaxTokens: 256, Temperature: 0.2}
	client, err := NewOpenAIClient(cfg, "test-key", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	text, err := client.GenerateContent(context.Background(), "be terse", "write about echo")
	require.NoError(t, err)
	assert.Equal(t, "# Echo\n\nBody", text)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 256, got["max_completion_tokens"])
	assert.EqualValues(t, 0.2, got["temperature"])
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "x", "object": "chat.completion", "created": 0, "model": "m", "choices": []}`)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(&Config{Provider: ProviderOpenAI}, "k", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAIClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": {"message": "overloaded"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := NewOpenAIClient(&Config{Provider: ProviderOpenAI}, "k", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	_, err = client.GenerateContent(context.Background(), "", "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to generate content")
}

func TestGeminiClient_Live(t *testing.T) {
	apiKey := os.Getenv(APIKeyEnv[ProviderGemini])
	if apiKey == "" {
		t.Skip("GEMINI_API_KEY not set")
	}

	client, err := NewClient(context.Background(), DefaultConfig(), apiKey)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	text, err := client.GenerateContent(context.Background(), "Answer with one word.", "Say hello.")
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
