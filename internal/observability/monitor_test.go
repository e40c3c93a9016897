package observability

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/types"
)

func testMonitor(t *testing.T, system SystemInfo) *Monitor {
	t.Helper()
	m, err := NewMonitor(config.MonitorConfig{MetricsDir: filepath.Join(t.TempDir(), "metrics")}, nil)
	require.NoError(t, err)
	m.now = func() time.Time { return time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC) }
	m.sampleSystem = func() SystemInfo { return system }
	m.sampleProcess = func() types.ResourceUsage { return types.ResourceUsage{MemoryRSS: 1024, Goroutines: 3} }
	return m
}

func TestMonitor_Record(t *testing.T) {
	m := testMonitor(t, SystemInfo{CPUCount: 4})

	rec := types.ExecutionRecord{IterationID: "abc/1", Topic: "Echo", Success: true, Accepted: true, Duration: time.Second, QualityScore: 0.9}
	require.NoError(t, m.Record(context.Background(), rec))

	files, err := m.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "execution_abc_1_20260506_070809.json", filepath.Base(files[0]))

	loaded, err := m.LoadExecution(filepath.Base(files[0]))
	require.NoError(t, err)
	assert.Equal(t, "abc/1", loaded.IterationID)
	assert.Equal(t, 4, loaded.System.CPUCount)
	assert.Equal(t, uint64(1024), loaded.Performance.MemoryRSS)
	assert.Equal(t, time.Second, loaded.Duration)

	assert.Len(t, m.History(), 1)
	m.ClearHistory()
	assert.Empty(t, m.History())
}

func TestMonitor_LoadExecutionRejectsPaths(t *testing.T) {
	m := testMonitor(t, SystemInfo{})
	_, err := m.LoadExecution("../secret.json")
	assert.Error(t, err)
	_, err = m.LoadExecution("missing.json")
	assert.Error(t, err)
}

func TestMonitor_Summary(t *testing.T) {
	m := testMonitor(t, SystemInfo{})
	records := []types.ExecutionRecord{
		{IterationID: "1", Success: true, Accepted: true, Duration: 100 * time.Millisecond, QualityScore: 0.9},
		{IterationID: "2", Success: false, Duration: 300 * time.Millisecond, QualityScore: 0},
		{IterationID: "3", Success: true, Accepted: false, Duration: 200 * time.Millisecond, QualityScore: 0.6},
	}
	for _, r := range records {
		require.NoError(t, m.Record(context.Background(), r))
	}

	s := m.Summary(0)
	assert.Equal(t, 3, s.TotalExecutions)
	assert.Equal(t, 1, s.Accepted)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 200*time.Millisecond, s.AverageDuration)
	assert.Equal(t, 100*time.Millisecond, s.MinDuration)
	assert.Equal(t, 300*time.Millisecond, s.MaxDuration)
	assert.InDelta(t, 0.5, s.AverageQuality, 1e-9)
	assert.Equal(t, 0.0, s.MinQuality)
	assert.Equal(t, 0.9, s.MaxQuality)

	recent := m.Summary(2)
	assert.Equal(t, 2, recent.TotalExecutions)
	assert.Equal(t, 250*time.Millisecond, recent.AverageDuration)

	assert.Equal(t, ExecutionSummary{}, Summarize(nil))
}

func TestSummarize_RecentTrend(t *testing.T) {
	var records []types.ExecutionRecord
	for i := range 15 {
		q := 0.5
		if i >= 5 {
			q = 0.9
		}
		records = append(records, types.ExecutionRecord{Duration: time.Duration(i+1) * 10 * time.Millisecond, QualityScore: q})
	}

	s := Summarize(records)
	require.NotNil(t, s.Recent)
	assert.Equal(t, 10, s.Recent.Executions)
	assert.Equal(t, 105*time.Millisecond, s.Recent.AverageDuration)
	assert.InDelta(t, 0.9, s.Recent.AverageQuality, 1e-9)
	assert.InDelta(t, 23.0/30.0, s.AverageQuality, 1e-9)

	short := Summarize(records[:3])
	require.NotNil(t, short.Recent)
	assert.Equal(t, 3, short.Recent.Executions)
	assert.Equal(t, short.AverageDuration, short.Recent.AverageDuration)
}

func TestMonitor_SavePerformanceReport(t *testing.T) {
	m := testMonitor(t, SystemInfo{CPUCount: 2, MemoryPercent: 30})
	require.NoError(t, m.Record(context.Background(), types.ExecutionRecord{IterationID: "1", Success: true, Duration: time.Second, QualityScore: 0.8}))

	path, err := m.SavePerformanceReport(m.Summary(0))
	require.NoError(t, err)
	assert.Equal(t, "performance_report_20260506_070809.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var report PerformanceReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 1, report.Summary.TotalExecutions)
	require.NotNil(t, report.Summary.Recent)
	assert.InDelta(t, 0.8, report.Summary.Recent.AverageQuality, 1e-9)
	assert.Equal(t, 2, report.System.CPUCount)
	assert.Equal(t, StatusHealthy, report.Health.Status)

	files, err := m.Files()
	require.NoError(t, err)
	assert.Len(t, files, 1, "the report is not listed as an execution")
}

func TestMonitor_Health(t *testing.T) {
	tests := []struct {
		name     string
		system   SystemInfo
		status   string
		warnings int
	}{
		{name: "healthy", system: SystemInfo{MemoryPercent: 40, DiskPercent: 50}, status: StatusHealthy},
		{name: "memory pressure", system: SystemInfo{MemoryPercent: 95, DiskPercent: 50}, status: StatusWarning, warnings: 1},
		{name: "memory and disk pressure", system: SystemInfo{MemoryPercent: 91, DiskPercent: 99}, status: StatusWarning, warnings: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testMonitor(t, tt.system).Health()
			assert.Equal(t, tt.status, h.Status)
			assert.True(t, h.MetricsWritable)
			assert.Len(t, h.Warnings, tt.warnings)
		})
	}
}

func TestMonitor_HealthUnwritable(t *testing.T) {
	m := testMonitor(t, SystemInfo{MemoryPercent: 95})
	require.NoError(t, os.RemoveAll(m.Dir()))

	h := m.Health()
	assert.Equal(t, StatusError, h.Status)
	assert.False(t, h.MetricsWritable)
	assert.NotEmpty(t, h.Errors)
}

func TestNewMonitor_RequiresDir(t *testing.T) {
	_, err := NewMonitor(config.MonitorConfig{}, nil)
	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSampleProcess(t *testing.T) {
	usage := SampleProcess()
	assert.Positive(t, usage.Goroutines)
}
