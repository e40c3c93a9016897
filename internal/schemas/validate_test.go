package schemas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	schemafiles "github.com/jonathan/echo-pipeline/schemas"
)

const validArticle = `{
	"@context": "https://schema.org",
	"@type": "TechArticle",
	"headline": "Go",
	"hasPart": [
		{"@type": "WebPageElement", "position": 1, "kind": "heading", "level": 1, "spans": [{"text": "Go"}]},
		{"@type": "WebPageElement", "position": 2, "kind": "list", "items": [[{"text": "one"}], [{"text": "two", "strong": true}]]}
	]
}`

func TestValidate_JSONLDArticle(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantError bool
	}{
		{name: "valid article", content: validArticle},
		{name: "missing context", content: `{"@type": "Article", "hasPart": []}`, wantError: true},
		{name: "code parts are rejected", content: `{"@context": "https://schema.org", "@type": "Article", "hasPart": [{"@type": "WebPageElement", "position": 1, "kind": "code"}]}`, wantError: true},
		{name: "heading without level", content: `{"@context": "https://schema.org", "@type": "Article", "hasPart": [{"@type": "WebPageElement", "position": 1, "kind": "heading"}]}`, wantError: true},
		{name: "level out of range", content: `{"@context": "https://schema.org", "@type": "Article", "hasPart": [{"@type": "WebPageElement", "position": 1, "kind": "heading", "level": 7}]}`, wantError: true},
		{name: "list without items", content: `{"@context": "https://schema.org", "@type": "Article", "hasPart": [{"@type": "WebPageElement", "position": 1, "kind": "list"}]}`, wantError: true},
		{name: "unknown span field", content: `{"@context": "https://schema.org", "@type": "Article", "hasPart": [{"@type": "WebPageElement", "position": 1, "kind": "paragraph", "spans": [{"text": "x", "color": "red"}]}]}`, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(schemafiles.JSONLDArticle, []byte(tt.content))
			if tt.wantError {
				require.Error(t, err)
				validationErr, ok := err.(*ValidationError)
				require.True(t, ok, "error should be ValidationError type, got %T", err)
				assert.Greater(t, len(validationErr.Errors), 0)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	err := Validate("nope.schema.json", []byte(`{}`))
	require.Error(t, err)

	var loadErr *SchemaLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "nope.schema.json", loadErr.Path)
}

func TestValidate_MalformedDocument(t *testing.T) {
	err := Validate(schemafiles.JSONLDArticle, []byte("{ invalid json }"))
	require.Error(t, err)
	_, isValidation := err.(*ValidationError)
	assert.False(t, isValidation)
}

func TestValidateFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "article.jsonld")
	require.NoError(t, os.WriteFile(path, []byte(validArticle), 0644))

	assert.NoError(t, ValidateFile(schemafiles.JSONLDArticle, path))

	err := ValidateFile(schemafiles.JSONLDArticle, filepath.Join(tmpDir, "missing.jsonld"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidate_ArtifactMetadata(t *testing.T) {
	valid := `{
		"iteration_id": "abc",
		"generated_at": "2024-01-01T00:00:00Z",
		"input_spec": {"topic": "Go", "primary_format": "markdown", "length": "short"},
		"quality_report": {"variant_scores": {"markdown": 0.9}, "consistency_score": 1, "passed": true, "reasons": []},
		"files": {"markdown": "index.md"}
	}`
	assert.NoError(t, Validate(schemafiles.ArtifactMetadata, []byte(valid)))

	notPassed := `{
		"iteration_id": "abc",
		"generated_at": "2024-01-01T00:00:00Z",
		"input_spec": {"topic": "Go", "primary_format": "markdown", "length": "short"},
		"quality_report": {"variant_scores": {}, "consistency_score": 0.1, "passed": false, "reasons": ["x"]},
		"files": {}
	}`
	assert.Error(t, Validate(schemafiles.ArtifactMetadata, []byte(notPassed)))
}

func TestValidateJSONString_Valid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`
	jsonContent := `{"name": "test"}`

	err := ValidateJSONString(schemaContent, jsonContent)
	assert.NoError(t, err)
}

func TestValidateJSONString_Invalid(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string"}
		}
	}`
	jsonContent := `{"age": 30}`

	err := ValidateJSONString(schemaContent, jsonContent)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.Greater(t, len(validationErr.Errors), 0)
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Errors: []FieldError{
			{Field: "name", Message: "is required"},
			{Field: "age", Message: "must be a number"},
		},
	}

	errorMsg := err.Error()
	assert.Contains(t, errorMsg, "validation failed")
	assert.Contains(t, errorMsg, "name")
	assert.Contains(t, errorMsg, "age")
}

func TestValidateJSONString_NestedFieldValidation(t *testing.T) {
	schemaContent := `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "object",
		"required": ["person"],
		"properties": {
			"person": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string"}
				}
			}
		}
	}`

	err := ValidateJSONString(schemaContent, `{"person": {}}`)
	require.Error(t, err)

	validationErr, ok := err.(*ValidationError)
	require.True(t, ok)
	require.NotEmpty(t, validationErr.Errors)
	assert.Contains(t, validationErr.Errors[0].Field, "person")
}
