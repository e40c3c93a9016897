package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/echo-pipeline/internal/harness"
	"github.com/jonathan/echo-pipeline/internal/observability"
	"github.com/jonathan/echo-pipeline/internal/pipeline"
	"github.com/jonathan/echo-pipeline/internal/server/middleware"
	"github.com/jonathan/echo-pipeline/internal/types"
)

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 20
	maxListLimit     = 1000
)

var iterationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// specFields maps InputSpec struct fields to their JSON names for error messages
var specFields = map[string]string{
	"Topic":         "topic",
	"PrimaryFormat": "primary_format",
	"Length":        "length",
}

// runRequest is the body of POST /run and POST /run/stream
type runRequest struct {
	Topic         string            `json:"topic"`
	PrimaryFormat types.Format      `json:"primary_format,omitempty"`
	Length        types.Length      `json:"length,omitempty"`
	Style         map[string]string `json:"style,omitempty"`
	IterationID   string            `json:"iteration_id,omitempty"`
	Overwrite     bool              `json:"overwrite,omitempty"`
	DryRun        bool              `json:"dry_run,omitempty"`
}

// runResponse describes a finished run. A rejected run is not an error:
// Accepted is false and the report lists the reasons.
type runResponse struct {
	IterationID      string               `json:"iteration_id"`
	Accepted         bool                 `json:"accepted"`
	DryRun           bool                 `json:"dry_run,omitempty"`
	Report           *types.QualityReport `json:"quality_report,omitempty"`
	Paths            []string             `json:"paths,omitempty"`
	DurationMS       int64                `json:"duration_ms"`
	StageDurationsMS map[string]int64     `json:"stage_durations_ms"`
}

type testsRequest struct {
	Types []string `json:"types"`
}

type runsResponse struct {
	Runs  []types.ExecutionRecord `json:"runs"`
	Total int                     `json:"total"`
}

type artifactResponse struct {
	Source   string          `json:"source"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	Artifact *types.Artifact `json:"artifact,omitempty"`
}

// decodeJSON reads a JSON body, rejecting unknown fields. An empty body
// leaves v untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			if allowEmpty {
				return nil
			}
			return &ErrValidation{Field: "body", Message: "request body is empty"}
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	return nil
}

// decodeRun parses a run request, applying the same defaults as the CLI
func decodeRun(w http.ResponseWriter, r *http.Request) (runRequest, types.InputSpec, error) {
	var req runRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		return req, types.InputSpec{}, err
	}
	if req.PrimaryFormat == "" {
		req.PrimaryFormat = types.FormatMarkdown
	}
	if req.Length == "" {
		req.Length = types.LengthMedium
	}
	if req.IterationID != "" && !iterationIDPattern.MatchString(req.IterationID) {
		return req, types.InputSpec{}, &ErrValidation{Field: "iteration_id", Message: "must be 1-128 letters, digits, '.', '_' or '-'"}
	}

	spec := types.NewInputSpec(strings.TrimSpace(req.Topic), req.PrimaryFormat, req.Length, req.Style)
	if err := spec.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := specFields[verrs[0].Field()]
			if field == "" {
				field = verrs[0].Field()
			}
			return req, spec, &ErrValidation{Field: field, Message: fmt.Sprintf("failed %q check", verrs[0].Tag())}
		}
		return req, spec, &ErrValidation{Field: "input", Message: err.Error()}
	}
	return req, spec, nil
}

func newRunResponse(res *pipeline.Result, dryRun bool) runResponse {
	resp := runResponse{
		IterationID:      res.IterationID,
		Accepted:         res.Accepted,
		DryRun:           dryRun,
		Report:           res.Report,
		Paths:            res.Paths,
		DurationMS:       res.Duration.Milliseconds(),
		StageDurationsMS: make(map[string]int64, len(res.StageDurations)),
	}
	for stage, d := range res.StageDurations {
		resp.StageDurationsMS[stage] = d.Milliseconds()
	}
	return resp
}

// handleRun runs one pipeline iteration and returns its outcome
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, spec, err := decodeRun(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	subject, _ := middleware.Subject(r)
	s.logger.Info("run requested", "topic", spec.Topic, "format", spec.PrimaryFormat, "subject", subject)

	res, err := s.deps.Pipeline.Run(r.Context(), spec, pipeline.RunOptions{
		IterationID: req.IterationID,
		Overwrite:   req.Overwrite,
		DryRun:      req.DryRun,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, newRunResponse(res, req.DryRun))
}

// handleRunStream runs one iteration and streams stage progress as SSE.
// Request errors are plain JSON responses; once the stream has started,
// failures arrive as an error event.
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	req, spec, err := decodeRun(w, r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	subject, _ := middleware.Subject(r)
	s.logger.Info("streaming run requested", "topic", spec.Topic, "format", spec.PrimaryFormat, "subject", subject)

	res, err := s.deps.Pipeline.Run(r.Context(), spec, pipeline.RunOptions{
		IterationID: req.IterationID,
		Overwrite:   req.Overwrite,
		DryRun:      req.DryRun,
		OnProgress: func(event pipeline.ProgressEvent) {
			// content is left out of the stream; the complete event carries the report
			event.Content = nil
			if err := sse.WriteEvent(eventProgress, event); err != nil {
				s.logger.Debug("failed to write progress event", "error", err)
			}
		},
	})
	if err != nil {
		if werr := sse.WriteError(HTTPStatus(err), err.Error()); werr != nil {
			s.logger.Debug("failed to write error event", "error", werr)
		}
		return
	}
	if err := sse.WriteEvent(eventComplete, newRunResponse(res, req.DryRun)); err != nil {
		s.logger.Debug("failed to write complete event", "error", err)
	}
}

// handleTests runs the requested harness test types; an empty body runs them all.
// A report whose types failed is still 200; its passed field carries the verdict.
func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	var req testsRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		s.errorResponse(w, err)
		return
	}
	requested, err := harness.ParseTestTypes(strings.Join(req.Types, ","))
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	subject, _ := middleware.Subject(r)
	s.logger.Info("harness run requested", "types", requested, "subject", subject)

	report, runErr := s.deps.Harness.Run(r.Context(), requested)
	if report == nil {
		s.errorResponse(w, runErr)
		return
	}

	if s.deps.ReportPath != "" {
		if err := harness.WriteReport(report, s.deps.ReportPath); err != nil {
			s.logger.Warn("failed to write test report", "path", s.deps.ReportPath, "error", err)
		}
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.SaveTestReport(r.Context(), report); err != nil {
			s.logger.Warn("failed to mirror test report to database", "error", err)
		}
	}

	if runErr != nil {
		s.errorResponse(w, runErr)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleArtifact returns a persisted iteration, falling back to the database
// mirror when the output directory no longer has it
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !iterationIDPattern.MatchString(id) {
		s.errorResponse(w, &ErrValidation{Field: "id", Message: "invalid iteration id"})
		return
	}

	meta, err := s.deps.Artifacts.ReadMetadata(id)
	if err == nil {
		s.jsonResponse(w, http.StatusOK, artifactResponse{Source: "filesystem", Metadata: meta})
		return
	}
	if !errors.Is(err, os.ErrNotExist) {
		s.errorResponse(w, err)
		return
	}

	if s.deps.Store != nil {
		artifact, err := s.deps.Store.GetArtifact(r.Context(), id)
		if err != nil {
			s.errorResponse(w, err)
			return
		}
		if artifact != nil {
			s.jsonResponse(w, http.StatusOK, artifactResponse{Source: "database", Artifact: artifact})
			return
		}
	}
	s.errorResponse(w, &ErrNotFound{Resource: "artifact", ID: id})
}

// handleListRuns returns recorded executions, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	history := s.deps.Monitor.History()
	total := len(history)
	slices.Reverse(history)
	if len(history) > limit {
		history = history[:limit]
	}
	s.jsonResponse(w, http.StatusOK, runsResponse{Runs: history, Total: total})
}

// handleRunSummary aggregates the most recent executions
func (s *Server) handleRunSummary(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.deps.Monitor.Summary(limit))
}

// handleHealth reports monitor health; an error status is 503
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.deps.Monitor.Health()
	status := http.StatusOK
	if health.Status == observability.StatusError {
		status = http.StatusServiceUnavailable
	}
	s.jsonResponse(w, status, health)
}

func listLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxListLimit {
		return 0, &ErrValidation{Field: "limit", Message: fmt.Sprintf("must be an integer between 1 and %d", maxListLimit)}
	}
	return n, nil
}
