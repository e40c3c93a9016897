package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanCodeFence(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "json code block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			expected: `{"key": "value"}`,
		},
		{
			name:     "markdown code block",
			input:    "```markdown\n# Title\n\nBody\n```\n",
			expected: "# Title\n\nBody",
		},
		{
			name:     "generic code block",
			input:    "```\n<article></article>\n```",
			expected: "<article></article>",
		},
		{
			name:     "tilde fence",
			input:    "~~~md\n# Title\n~~~",
			expected: "# Title",
		},
		{
			name:     "inner fence kept",
			input:    "```markdown\n# T\n\n````go\nx\n````\n```",
			expected: "# T\n\n````go\nx\n````",
		},
		{
			name:     "plain text",
			input:    "  # Title\n\nBody  ",
			expected: "# Title\n\nBody",
		},
		{
			name:     "document starting with a fenced block",
			input:    "```go\nx := 1\n```\n\nMore text",
			expected: "```go\nx := 1\n```\n\nMore text",
		},
		{
			name:     "unterminated fence",
			input:    "```json\n{\"a\": 1}",
			expected: "```json\n{\"a\": 1}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanCodeFence(tt.input))
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple object", input: `{"key": "value"}`, expected: `{"key": "value"}`},
		{name: "preamble", input: "Here is the JSON:\n{\"a\": 1}", expected: `{"a": 1}`},
		{name: "trailing text", input: `{"key": "value"} and more`, expected: `{"key": "value"}`},
		{name: "nested", input: `x {"a": {"b": {"c": 1}}} y`, expected: `{"a": {"b": {"c": 1}}}`},
		{name: "braces in strings", input: `{"t": "Hello {name}!"}`, expected: `{"t": "Hello {name}!"}`},
		{name: "escaped quotes", input: `{"m": "say \"}\" now"}`, expected: `{"m": "say \"}\" now"}`},
		{name: "unbalanced", input: `{"a": {`, expected: ""},
		{name: "no object", input: "not json", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSONObject(tt.input))
		})
	}
}
