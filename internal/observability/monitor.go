package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// Health statuses
const (
	StatusHealthy = "healthy"
	StatusWarning = "warning"
	StatusError   = "error"
)

// recentWindow is how many of the latest executions feed the recent trend
const recentWindow = 10

// resourceWarnPercent is the memory and disk usage above which health degrades to warning
const resourceWarnPercent = 90.0

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ExecutionFile is the JSON document written for every recorded run
type ExecutionFile struct {
	types.ExecutionRecord
	RecordedAt  time.Time           `json:"recorded_at"`
	System      SystemInfo          `json:"system_info"`
	Performance types.ResourceUsage `json:"performance"`
}

// ExecutionSummary aggregates recent executions
type ExecutionSummary struct {
	TotalExecutions int           `json:"total_executions"`
	Accepted        int           `json:"accepted"`
	Failed          int           `json:"failed"`
	AverageDuration time.Duration `json:"average_duration_ns"`
	MinDuration     time.Duration `json:"min_duration_ns"`
	MaxDuration     time.Duration `json:"max_duration_ns"`
	AverageQuality  float64       `json:"average_quality"`
	MinQuality      float64       `json:"min_quality"`
	MaxQuality      float64       `json:"max_quality"`
	Recent          *RecentTrend  `json:"recent_trends,omitempty"`
}

// RecentTrend averages the latest executions of a summary
type RecentTrend struct {
	Executions      int           `json:"executions"`
	AverageDuration time.Duration `json:"avg_duration_ns"`
	AverageQuality  float64       `json:"avg_quality"`
}

// PerformanceReport is the document written by SavePerformanceReport
type PerformanceReport struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Summary     ExecutionSummary `json:"execution_summary"`
	System      SystemInfo       `json:"system_info"`
	Health      HealthStatus     `json:"health"`
}

// HealthStatus reports whether the monitor can record and whether the host is under pressure
type HealthStatus struct {
	Status          string     `json:"status"`
	MetricsDir      string     `json:"metrics_directory"`
	MetricsWritable bool       `json:"metrics_writable"`
	HistorySize     int        `json:"execution_history_size"`
	System          SystemInfo `json:"system_resources"`
	Warnings        []string   `json:"warnings,omitempty"`
	Errors          []string   `json:"errors,omitempty"`
}

// Monitor keeps an in-memory execution history and writes one metrics file per run
type Monitor struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	history []types.ExecutionRecord

	now           func() time.Time
	sampleSystem  func() SystemInfo
	sampleProcess func() types.ResourceUsage
}

// NewMonitor creates the metrics directory and returns a Monitor writing into it
func NewMonitor(cfg config.MonitorConfig, logger *slog.Logger) (*Monitor, error) {
	if cfg.MetricsDir == "" {
		return nil, &config.ConfigError{Field: "monitor.metrics_dir", Message: "is required"}
	}
	if err := os.MkdirAll(cfg.MetricsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := cfg.MetricsDir
	return &Monitor{
		dir:           dir,
		logger:        logger.With("component", "monitor"),
		now:           time.Now,
		sampleSystem:  func() SystemInfo { return SampleSystem(dir) },
		sampleProcess: SampleProcess,
	}, nil
}

// Dir returns the metrics directory
func (m *Monitor) Dir() string {
	return m.dir
}

// Record appends the execution to the history and writes execution_<id>_<timestamp>.json
func (m *Monitor) Record(_ context.Context, rec types.ExecutionRecord) error {
	now := m.now()
	file := ExecutionFile{
		ExecutionRecord: rec,
		RecordedAt:      now.UTC(),
		System:          m.sampleSystem(),
		Performance:     m.sampleProcess(),
	}

	m.mu.Lock()
	m.history = append(m.history, rec)
	m.mu.Unlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal execution record: %w", err)
	}
	name := fmt.Sprintf("execution_%s_%s.json", unsafeName.ReplaceAllString(rec.IterationID, "_"), now.Format("20060102_150405"))
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution record: %w", err)
	}

	m.logger.Debug("execution recorded", "iteration_id", rec.IterationID, "path", path)
	return nil
}

// History returns a copy of the recorded executions, oldest first
func (m *Monitor) History() []types.ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ExecutionRecord(nil), m.history...)
}

// ClearHistory forgets recorded executions; metrics files are kept
func (m *Monitor) ClearHistory() {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
}

// Summary aggregates the last limit executions (all when limit <= 0)
func (m *Monitor) Summary(limit int) ExecutionSummary {
	history := m.History()
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return Summarize(history)
}

// Summarize aggregates execution records
func Summarize(records []types.ExecutionRecord) ExecutionSummary {
	s := ExecutionSummary{TotalExecutions: len(records)}
	if len(records) == 0 {
		return s
	}

	var totalDuration time.Duration
	var totalQuality float64
	s.MinDuration, s.MinQuality = records[0].Duration, records[0].QualityScore
	for _, r := range records {
		totalDuration += r.Duration
		totalQuality += r.QualityScore
		s.MinDuration = min(s.MinDuration, r.Duration)
		s.MaxDuration = max(s.MaxDuration, r.Duration)
		s.MinQuality = min(s.MinQuality, r.QualityScore)
		s.MaxQuality = max(s.MaxQuality, r.QualityScore)
		if r.Accepted {
			s.Accepted++
		}
		if !r.Success {
			s.Failed++
		}
	}
	s.AverageDuration = totalDuration / time.Duration(len(records))
	s.AverageQuality = totalQuality / float64(len(records))

	recent := records[max(0, len(records)-recentWindow):]
	trend := &RecentTrend{Executions: len(recent)}
	totalDuration, totalQuality = 0, 0
	for _, r := range recent {
		totalDuration += r.Duration
		totalQuality += r.QualityScore
	}
	trend.AverageDuration = totalDuration / time.Duration(len(recent))
	trend.AverageQuality = totalQuality / float64(len(recent))
	s.Recent = trend
	return s
}

// SavePerformanceReport writes performance_report_<timestamp>.json with the
// given summary, a fresh system sample and the current health
func (m *Monitor) SavePerformanceReport(summary ExecutionSummary) (string, error) {
	now := m.now()
	report := PerformanceReport{
		GeneratedAt: now.UTC(),
		Summary:     summary,
		System:      m.sampleSystem(),
		Health:      m.Health(),
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal performance report: %w", err)
	}
	path := filepath.Join(m.dir, fmt.Sprintf("performance_report_%s.json", now.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write performance report: %w", err)
	}
	m.logger.Info("performance report saved", "path", path)
	return path, nil
}

// Files lists the execution files in the metrics directory, sorted by name
func (m *Monitor) Files() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, "execution_*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// LoadExecution reads one execution file from the metrics directory
func (m *Monitor) LoadExecution(name string) (*ExecutionFile, error) {
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("invalid metrics file name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics file: %w", err)
	}
	var file ExecutionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse metrics file %s: %w", name, err)
	}
	return &file, nil
}

// Health checks that the metrics directory is writable and the host has memory and disk headroom
func (m *Monitor) Health() HealthStatus {
	h := HealthStatus{
		Status:      StatusHealthy,
		MetricsDir:  m.dir,
		HistorySize: len(m.History()),
		System:      m.sampleSystem(),
	}

	if err := checkWritable(m.dir); err != nil {
		h.Errors = append(h.Errors, fmt.Sprintf("metrics directory not writable: %v", err))
	} else {
		h.MetricsWritable = true
	}
	if h.System.MemoryPercent > resourceWarnPercent {
		h.Warnings = append(h.Warnings, fmt.Sprintf("high memory usage (%.1f%%)", h.System.MemoryPercent))
	}
	if h.System.DiskPercent > resourceWarnPercent {
		h.Warnings = append(h.Warnings, fmt.Sprintf("high disk usage (%.1f%%)", h.System.DiskPercent))
	}

	switch {
	case len(h.Errors) > 0:
		h.Status = StatusError
	case len(h.Warnings) > 0:
		h.Status = StatusWarning
	}
	return h
}

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("not a directory")
	}
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
