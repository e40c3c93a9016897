package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/schemas"
	"github.com/jonathan/echo-pipeline/internal/types"
	schemafiles "github.com/jonathan/echo-pipeline/schemas"
)

// MetadataFile is the name of the metadata document inside an iteration directory
const MetadataFile = "metadata.json"

const (
	dirPerm  fs.FileMode = 0o755
	filePerm fs.FileMode = 0o644
)

// WriteFileFunc writes one file; os.WriteFile by default
type WriteFileFunc func(name string, data []byte, perm fs.FileMode) error

// Option customizes a Formatter
type Option func(*Formatter)

// WithWriteFile replaces the file writer, mainly to inject failures in tests
func WithWriteFile(fn WriteFileFunc) Option {
	return func(f *Formatter) {
		f.writeFile = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(f *Formatter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Formatter writes artifacts under the configured output directory.
// Persist calls are serialized.
type Formatter struct {
	cfg       config.FormatterConfig
	writeFile WriteFileFunc
	logger    *slog.Logger
	mu        sync.Mutex
}

// New creates a Formatter
func New(cfg config.FormatterConfig, opts ...Option) *Formatter {
	f := &Formatter{cfg: cfg, writeFile: os.WriteFile, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "formatter")
	return f
}

// Dir returns the directory an iteration is persisted to
func (f *Formatter) Dir(iterationID string) string {
	return filepath.Join(f.cfg.OutputDir, f.cfg.DirName(iterationID))
}

// FileName returns the file name used for a variant format
func FileName(format types.Format) string {
	return "index" + format.Extension()
}

// metadataDocument is the JSON written to metadata.json
type metadataDocument struct {
	IterationID   string                  `json:"iteration_id"`
	GeneratedAt   time.Time               `json:"generated_at"`
	InputSpec     types.InputSpec         `json:"input_spec"`
	QualityReport types.QualityReport     `json:"quality_report"`
	Generator     *types.GeneratorInfo    `json:"generator,omitempty"`
	Files         map[types.Format]string `json:"files"`
}

type pendingFile struct {
	path string
	data []byte
}

// Persist writes every variant and the metadata document for an artifact and
// returns the written paths in write order (variants canonically, metadata last).
//
// An existing iteration directory is a *ConflictError unless overwrite is set,
// in which case the previous directory is restored if the new write fails.
// Any failed write removes what this call wrote and returns *PersistenceError.
func (f *Formatter) Persist(artifact *types.Artifact, overwrite bool) ([]string, error) {
	if artifact == nil {
		return nil, &PersistenceError{Message: "artifact is nil"}
	}
	id := artifact.IterationID
	if !artifact.Metadata.QualityReport.Passed {
		return nil, &PersistenceError{IterationID: id, Message: "refusing to persist", Cause: types.ErrReportNotPassed}
	}

	name := f.cfg.DirName(id)
	if id == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, &PersistenceError{IterationID: id, Path: name, Message: "iteration id does not name a single directory"}
	}
	dir := filepath.Join(f.cfg.OutputDir, name)

	files, err := f.plan(dir, artifact)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	backup := ""
	if _, err := os.Stat(dir); err == nil {
		if !overwrite {
			return nil, &ConflictError{IterationID: id, Path: dir}
		}
		backup = fmt.Sprintf("%s.previous-%s", dir, uuid.NewString())
		if err := os.Rename(dir, backup); err != nil {
			return nil, &PersistenceError{IterationID: id, Path: dir, Message: "failed to set aside previous artifact", Cause: err}
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, &PersistenceError{IterationID: id, Path: dir, Message: "failed to inspect output directory", Cause: err}
	}

	fail := func(path, message string, cause error, written []string) error {
		f.rollback(dir, written, backup)
		return &PersistenceError{IterationID: id, Path: path, Message: message, Cause: cause}
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fail(dir, "failed to create output directory", err, nil)
	}

	written := make([]string, 0, len(files))
	for _, pf := range files {
		if err := f.writeFile(pf.path, pf.data, filePerm); err != nil {
			// a partial write may have left the file behind
			return nil, fail(pf.path, "failed to write file", err, append(written, pf.path))
		}
		written = append(written, pf.path)
	}

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			f.logger.Warn("failed to remove previous artifact", "path", backup, "error", err)
		}
	}

	f.logger.Info("artifact persisted", "iteration_id", id, "dir", dir, "files", len(written), "overwrite", backup != "")
	return written, nil
}

// plan builds every file body before anything touches the disk
func (f *Formatter) plan(dir string, artifact *types.Artifact) ([]pendingFile, error) {
	id := artifact.IterationID
	if len(artifact.Variants) == 0 {
		return nil, &PersistenceError{IterationID: id, Path: dir, Message: "artifact has no variants"}
	}

	meta := metadataDocument{
		IterationID:   id,
		GeneratedAt:   artifact.Metadata.GeneratedAt,
		InputSpec:     artifact.Metadata.InputSpec,
		QualityReport: artifact.Metadata.QualityReport,
		Generator:     artifact.Metadata.Generator,
		Files:         make(map[types.Format]string, len(artifact.Variants)),
	}

	files := make([]pendingFile, 0, len(artifact.Variants)+1)
	for _, v := range artifact.Variants {
		if _, dup := meta.Files[v.Format]; dup {
			return nil, &PersistenceError{IterationID: id, Path: dir, Message: fmt.Sprintf("duplicate %s variant", v.Format)}
		}
		name := FileName(v.Format)
		meta.Files[v.Format] = name
		files = append(files, pendingFile{path: filepath.Join(dir, name), data: []byte(v.Body)})
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, &PersistenceError{IterationID: id, Path: MetadataFile, Message: "failed to marshal metadata", Cause: err}
	}
	if err := schemas.Validate(schemafiles.ArtifactMetadata, data); err != nil {
		return nil, &PersistenceError{IterationID: id, Path: MetadataFile, Message: "metadata does not match schema", Cause: err}
	}
	files = append(files, pendingFile{path: filepath.Join(dir, MetadataFile), data: append(data, '\n')})
	return files, nil
}

// rollback removes files written by a failed call and restores the previous directory
func (f *Formatter) rollback(dir string, written []string, backup string) {
	for _, path := range written {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("rollback: failed to remove file", "path", path, "error", err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		f.logger.Warn("rollback: failed to remove directory", "path", dir, "error", err)
	}
	if backup != "" {
		if err := os.Rename(backup, dir); err != nil {
			f.logger.Error("rollback: failed to restore previous artifact", "path", backup, "error", err)
		}
	}
}

// ReadMetadata loads and schema-checks the metadata of a persisted iteration
func (f *Formatter) ReadMetadata(iterationID string) (map[string]any, error) {
	path := filepath.Join(f.Dir(iterationID), MetadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := schemas.Validate(schemafiles.ArtifactMetadata, data); err != nil {
		return nil, err
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return meta, nil
}
