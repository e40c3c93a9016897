// Package schemas embeds the JSON Schema documents that describe persisted and exchanged data.
package schemas

import "embed"

// Schema file names
const (
	JSONLDArticle    = "jsonld_article.schema.json"
	ArtifactMetadata = "artifact_metadata.schema.json"
	TestReport       = "test_report.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Load returns the content of an embedded schema file
func Load(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Names lists every embedded schema file
func Names() []string {
	return []string{JSONLDArticle, ArtifactMetadata, TestReport}
}
