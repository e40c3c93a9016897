// Package observability provides formatted output for verbose CLI mode and run monitoring.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jonathan/echo-pipeline/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out   io.Writer
	box   lipgloss.Style
	title lipgloss.Style
	good  lipgloss.Style
	bad   lipgloss.Style
}

// NewPrinter creates a new Printer that writes to the given writer.
// Colors are only emitted when the writer is a color-capable terminal.
func NewPrinter(out io.Writer) *Printer {
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:   out,
		box:   r.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1).Width(boxWidth - 2),
		title: r.NewStyle().Bold(true),
		good:  r.NewStyle().Foreground(lipgloss.Color("2")),
		bad:   r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// printBox prints a bordered box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for i, line := range lines {
		lines[i] = truncate(line, boxWidth-4)
	}
	fmt.Fprintln(p.out, p.box.Render(p.title.Render(title)+"\n\n"+strings.Join(lines, "\n")))
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}

func (p *Printer) verdict(ok bool, yes, no string) string {
	if ok {
		return p.good.Render(yes)
	}
	return p.bad.Render(no)
}

// writeList writes at most maxItemsToShow items and a count of the rest
func writeList(sb *strings.Builder, items []string) {
	for i, item := range items {
		if i == maxItemsToShow {
			fmt.Fprintf(sb, "  ... and %d more\n", len(items)-maxItemsToShow)
			break
		}
		fmt.Fprintf(sb, "  • %s\n", item)
	}
}

// PrintQualityReport outputs variant scores, pair ratios and failure reasons
func (p *Printer) PrintQualityReport(report *types.QualityReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Status:       %s\n", p.verdict(report.Passed, "PASSED", "FAILED"))
	fmt.Fprintf(&sb, "Consistency:  %.3f\n\n", report.ConsistencyScore)

	sb.WriteString("Variants:\n")
	for _, f := range report.Formats() {
		c := report.Criteria[f]
		fmt.Fprintf(&sb, "  %-9s %.3f  %d words\n", f, report.VariantScores[f], c.WordCount)
		fmt.Fprintf(&sb, "    length %.2f  valid %.0f  keywords %.2f\n", c.Length, c.Validity, c.Keywords)
	}

	if len(report.PairScores) > 0 {
		sb.WriteString("\nPairs:\n")
		for _, pair := range report.PairScores {
			fmt.Fprintf(&sb, "  %-16s %.3f\n", pair.Name(), pair.Ratio)
		}
	}

	if len(report.Reasons) > 0 {
		sb.WriteString("\nReasons:\n")
		writeList(&sb, report.Reasons)
	}

	p.printBox("QUALITY REPORT", sb.String())
}

// PrintArtifact outputs where an accepted iteration was written
func (p *Printer) PrintArtifact(iterationID string, paths []string) {
	if len(paths) == 0 {
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Iteration:  %s\n\nFiles:\n", iterationID)
	for _, path := range paths {
		fmt.Fprintf(&sb, "  %s\n", path)
	}
	p.printBox("ARTIFACT PERSISTED", sb.String())
}

// PrintTestReport outputs the harness results per test type
func (p *Printer) PrintTestReport(report *types.TestReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Run:     %s\n", report.RunID)
	fmt.Fprintf(&sb, "Status:  %s\n", p.verdict(report.Passed, "ALL PASSED", "FAILED"))
	fmt.Fprintf(&sb, "Took:    %s\n\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	for _, tt := range report.Requested {
		r, ok := report.Results[tt]
		if !ok {
			continue
		}
		status := p.verdict(r.Succeeded, "ok", "FAIL")
		if r.TimedOut {
			status = p.bad.Render("TIMEOUT")
		}
		fmt.Fprintf(&sb, "%-12s %-14s %5.1f%%  %s\n", tt, r.Summary(), r.PassRate*100, status)
		if d := r.Durations; d != nil && d.Count > 0 {
			fmt.Fprintf(&sb, "  p50 %.1fms  p95 %.1fms  p99 %.1fms  max %.1fms\n", d.P50MS, d.P95MS, d.P99MS, d.MaxMS)
		}
		writeList(&sb, r.Reasons)
	}

	p.printBox("TEST HARNESS SUMMARY", sb.String())
}

// PrintExecutionSummary outputs aggregated monitor history
func (p *Printer) PrintExecutionSummary(s ExecutionSummary) {
	if s.TotalExecutions == 0 {
		p.printBox("EXECUTION SUMMARY", "No executions recorded")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Executions:  %d (%d accepted, %d failed)\n", s.TotalExecutions, s.Accepted, s.Failed)
	fmt.Fprintf(&sb, "Duration:    avg %s  min %s  max %s\n", s.AverageDuration.Round(time.Millisecond), s.MinDuration.Round(time.Millisecond), s.MaxDuration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Quality:     avg %.3f  min %.3f  max %.3f\n", s.AverageQuality, s.MinQuality, s.MaxQuality)
	if s.Recent != nil {
		fmt.Fprintf(&sb, "%-13savg %s  quality %.3f\n", fmt.Sprintf("Last %d:", s.Recent.Executions), s.Recent.AverageDuration.Round(time.Millisecond), s.Recent.AverageQuality)
	}
	p.printBox("EXECUTION SUMMARY", sb.String())
}

// PrintHealth outputs the monitor health status
func (p *Printer) PrintHealth(h HealthStatus) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Status:       %s\n", p.verdict(h.Status == StatusHealthy, h.Status, h.Status))
	fmt.Fprintf(&sb, "Metrics dir:  %s (writable: %t)\n", h.MetricsDir, h.MetricsWritable)
	fmt.Fprintf(&sb, "History:      %d executions\n", h.HistorySize)
	fmt.Fprintf(&sb, "Memory:       %.1f%%\n", h.System.MemoryPercent)
	fmt.Fprintf(&sb, "Disk:         %.1f%%\n", h.System.DiskPercent)
	fmt.Fprintf(&sb, "CPU:          %.1f%%\n", h.System.CPUPercent)

	issues := append(append([]string(nil), h.Errors...), h.Warnings...)
	sort.Strings(issues)
	if len(issues) > 0 {
		sb.WriteString("\nIssues:\n")
		writeList(&sb, issues)
	}
	p.printBox("HEALTH", sb.String())
}
