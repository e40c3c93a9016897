package harness

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jonathan/echo-pipeline/internal/schemas"
	"github.com/jonathan/echo-pipeline/internal/types"
	schemafiles "github.com/jonathan/echo-pipeline/schemas"
)

// WriteReport validates the report against the test report schema and writes it as indented JSON
func WriteReport(report *types.TestReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return &ReportError{Path: path, Message: "failed to marshal report", Cause: err}
	}
	if err := schemas.Validate(schemafiles.TestReport, data); err != nil {
		return &ReportError{Path: path, Message: "report does not match schema", Cause: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &ReportError{Path: path, Message: "failed to create report directory", Cause: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &ReportError{Path: path, Message: "failed to write report", Cause: err}
	}
	return nil
}

// ReadReport loads a report written by WriteReport
func ReadReport(path string) (*types.TestReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ReportError{Path: path, Message: "failed to read report", Cause: err}
	}
	var report types.TestReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, &ReportError{Path: path, Message: "failed to parse report", Cause: err}
	}
	return &report, nil
}
