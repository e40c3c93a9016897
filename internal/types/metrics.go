package types

import (
	"fmt"
	"time"
)

// TestType names one harness test category
type TestType string

const (
	TestUnit        TestType = "unit"
	TestIntegration TestType = "integration"
	TestPerformance TestType = "performance"
	TestQuality     TestType = "quality"
)

// AllTestTypes lists the harness test types in execution/report order
var AllTestTypes = []TestType{TestUnit, TestIntegration, TestPerformance, TestQuality}

// ResourceUsage is a point-in-time snapshot of process resources
type ResourceUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
	MemoryRSS     uint64  `json:"memory_rss"`
	MemoryVMS     uint64  `json:"memory_vms"`
	Goroutines    int     `json:"goroutines"`
}

// Outcome is the result of one harness case
type Outcome struct {
	Passed           bool     `json:"passed"`
	QualityScore     float64  `json:"quality_score,omitempty"`
	ConsistencyScore float64  `json:"consistency_score,omitempty"`
	Error            string   `json:"error,omitempty"`
	Reasons          []string `json:"reasons,omitempty"`
}

// MetricSample records one harness case execution
type MetricSample struct {
	TestType  TestType      `json:"test_type"`
	Name      string        `json:"name"`
	Iteration int           `json:"iteration,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Resources ResourceUsage `json:"resource_usage"`
	Outcome   Outcome       `json:"outcome"`
}

// ExecutionRecord summarizes one pipeline run for monitoring and the run store
type ExecutionRecord struct {
	IterationID      string        `json:"iteration_id"`
	Topic            string        `json:"topic"`
	PrimaryFormat    Format        `json:"primary_format"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration_ns"`
	Success          bool          `json:"success"`
	Accepted         bool          `json:"accepted"`
	FailedStage      string        `json:"failed_stage,omitempty"`
	Error            string        `json:"error,omitempty"`
	QualityScore     float64       `json:"quality_score"`
	ConsistencyScore float64       `json:"consistency_score"`
	Reasons          []string      `json:"reasons,omitempty"`
	Paths            []string      `json:"paths,omitempty"`
}

// DurationStats summarizes sample durations in milliseconds
type DurationStats struct {
	Count  int     `json:"count"`
	MinMS  float64 `json:"min_ms"`
	MaxMS  float64 `json:"max_ms"`
	MeanMS float64 `json:"mean_ms"`
	P50MS  float64 `json:"p50_ms"`
	P90MS  float64 `json:"p90_ms"`
	P95MS  float64 `json:"p95_ms"`
	P99MS  float64 `json:"p99_ms"`
}

// TypeResult aggregates the samples of one test type
type TypeResult struct {
	TestType  TestType       `json:"test_type"`
	Total     int            `json:"total"`
	Passed    int            `json:"passed"`
	Failed    int            `json:"failed"`
	PassRate  float64        `json:"pass_rate"`
	Succeeded bool           `json:"succeeded"`
	TimedOut  bool           `json:"timed_out,omitempty"`
	Durations *DurationStats `json:"durations,omitempty"`
	Samples   []MetricSample `json:"samples"`
	Reasons   []string       `json:"reasons,omitempty"`
}

// Summary renders the pass count as "passed/total passed"
func (r *TypeResult) Summary() string {
	return fmt.Sprintf("%d/%d passed", r.Passed, r.Total)
}

// TestReport is the harness output for one invocation
type TestReport struct {
	RunID        string                   `json:"run_id"`
	StartedAt    time.Time                `json:"started_at"`
	FinishedAt   time.Time                `json:"finished_at"`
	Passed       bool                     `json:"passed"`
	Requested    []TestType               `json:"requested"`
	FailingTypes []TestType               `json:"failing_types,omitempty"`
	Results      map[TestType]*TypeResult `json:"results"`
}
