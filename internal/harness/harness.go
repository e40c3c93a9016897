package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/echo-pipeline/internal/config"
	"github.com/jonathan/echo-pipeline/internal/observability"
	"github.com/jonathan/echo-pipeline/internal/types"
)

// State is the lifecycle position of a harness
type State string

const (
	StateIdle        State = "idle"
	StateRunning     State = "running"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
)

// Case is one check inside a batch. Run reports its outcome; it must honour ctx.
type Case struct {
	Name      string
	Iteration int
	Run       func(ctx context.Context) types.Outcome
}

// Suites maps each test type to the cases it runs
type Suites map[types.TestType][]Case

// Harness runs requested test types as concurrent batches. Every sample goes
// through one channel to a single aggregator, which is the only writer of the report.
type Harness struct {
	cfg    config.HarnessConfig
	suites Suites
	logger *slog.Logger

	now           func() time.Time
	sampleProcess func() types.ResourceUsage

	mu      sync.Mutex
	state   State
	running map[types.TestType]bool
}

// Option customizes a Harness
type Option func(*Harness)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(h *Harness) {
		h.now = now
	}
}

// WithResourceSampler replaces the per-sample process resource sampler
func WithResourceSampler(fn func() types.ResourceUsage) Option {
	return func(h *Harness) {
		h.sampleProcess = fn
	}
}

// New creates an idle Harness
func New(cfg config.HarnessConfig, suites Suites, opts ...Option) *Harness {
	h := &Harness{
		cfg:           cfg,
		suites:        suites,
		logger:        slog.Default(),
		now:           time.Now,
		sampleProcess: observability.SampleProcess,
		state:         StateIdle,
		running:       make(map[types.TestType]bool),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "harness")
	return h
}

// State returns the current lifecycle state
func (h *Harness) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Running returns the test types whose batches are in progress, in report order
func (h *Harness) Running() []types.TestType {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []types.TestType
	for _, tt := range types.AllTestTypes {
		if h.running[tt] {
			out = append(out, tt)
		}
	}
	return out
}

func (h *Harness) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Harness) setRunning(tt types.TestType, on bool) {
	h.mu.Lock()
	if on {
		h.running[tt] = true
	} else {
		delete(h.running, tt)
	}
	h.mu.Unlock()
}

// Workers is the number of batches allowed to run at once
func (h *Harness) Workers() int {
	if h.cfg.Workers > 0 {
		return h.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ParseTestTypes parses a comma-separated list such as "unit,performance".
// Duplicates are dropped and the result is in report order. An empty string selects every type.
func ParseTestTypes(s string) ([]types.TestType, error) {
	if strings.TrimSpace(s) == "" {
		return slices.Clone(types.AllTestTypes), nil
	}
	seen := make(map[types.TestType]bool)
	for _, part := range strings.Split(s, ",") {
		name := types.TestType(strings.ToLower(strings.TrimSpace(part)))
		if name == "" {
			continue
		}
		if !slices.Contains(types.AllTestTypes, name) {
			return nil, &UnknownTestTypeError{Name: string(name)}
		}
		seen[name] = true
	}
	return orderTypes(seen), nil
}

func orderTypes(set map[types.TestType]bool) []types.TestType {
	var out []types.TestType
	for _, tt := range types.AllTestTypes {
		if set[tt] {
			out = append(out, tt)
		}
	}
	return out
}

// message is what workers send to the aggregator
type message struct {
	sample   *types.MetricSample
	finished *batchEnd
}

type batchEnd struct {
	testType types.TestType
	timedOut bool
}

// Run executes the requested test types and returns the aggregated report.
// Omitted types are skipped entirely. A report is returned even when no case
// passes; the error is non-nil only for invalid requests or caller cancellation.
func (h *Harness) Run(ctx context.Context, requested []types.TestType) (*types.TestReport, error) {
	set := make(map[types.TestType]bool)
	for _, tt := range requested {
		if !slices.Contains(types.AllTestTypes, tt) {
			return nil, &UnknownTestTypeError{Name: string(tt)}
		}
		set[tt] = true
	}
	order := orderTypes(set)
	if len(order) == 0 {
		return nil, ErrNoTestTypes
	}

	h.mu.Lock()
	if h.state == StateRunning || h.state == StateAggregating {
		h.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	h.state = StateRunning
	h.mu.Unlock()

	report := &types.TestReport{
		RunID:     uuid.NewString(),
		StartedAt: h.now().UTC(),
		Requested: order,
		Results:   make(map[types.TestType]*types.TypeResult, len(order)),
	}
	for _, tt := range order {
		report.Results[tt] = &types.TypeResult{TestType: tt, Samples: []types.MetricSample{}}
	}
	h.logger.Info("harness started", "run_id", report.RunID, "types", order, "workers", h.Workers())

	messages := make(chan message, 16)
	aggregated := make(chan struct{})
	go func() {
		defer close(aggregated)
		for msg := range messages {
			switch {
			case msg.sample != nil:
				r := report.Results[msg.sample.TestType]
				r.Samples = append(r.Samples, *msg.sample)
			case msg.finished != nil:
				report.Results[msg.finished.testType].TimedOut = msg.finished.timedOut
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(h.Workers())
	for _, tt := range order {
		g.Go(func() error {
			h.runBatch(ctx, tt, messages)
			return nil
		})
	}
	_ = g.Wait()
	close(messages)
	<-aggregated

	h.setState(StateAggregating)
	h.aggregate(report)
	report.FinishedAt = h.now().UTC()
	h.setState(StateDone)

	h.logger.Info("harness finished", "run_id", report.RunID, "passed", report.Passed, "failing_types", report.FailingTypes)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("harness cancelled: %w", err)
	}
	return report, nil
}

// runBatch runs the cases of one type in order under the type's timeout.
// Cases left over after the deadline are recorded as failed, never dropped.
func (h *Harness) runBatch(ctx context.Context, tt types.TestType, out chan<- message) {
	h.setRunning(tt, true)
	defer h.setRunning(tt, false)

	timeout := h.cfg.Timeouts.For(tt)
	bctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	logger := h.logger.With("test_type", tt)
	cases := h.suites[tt]
	logger.Info("batch started", "cases", len(cases), "timeout", timeout)

	timedOut := false
	for _, c := range cases {
		start := h.now()
		var outcome types.Outcome
		if err := bctx.Err(); err != nil {
			outcome = types.Outcome{Error: skipReason(err)}
		} else {
			outcome = runCase(bctx, c)
		}
		if errors.Is(bctx.Err(), context.DeadlineExceeded) {
			timedOut = true
		}

		sample := types.MetricSample{
			TestType:  tt,
			Name:      c.Name,
			Iteration: c.Iteration,
			StartedAt: start.UTC(),
			Duration:  h.now().Sub(start),
			Resources: h.sampleProcess(),
			Outcome:   outcome,
		}
		if !outcome.Passed {
			logger.Warn("case failed", "case", c.Name, "error", outcome.Error, "reasons", len(outcome.Reasons))
		}
		out <- message{sample: &sample}
	}

	out <- message{finished: &batchEnd{testType: tt, timedOut: timedOut}}
	logger.Info("batch finished", "timed_out", timedOut)
}

func skipReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "not run: batch timeout exceeded"
	}
	return "not run: " + err.Error()
}

// runCase isolates a panicking case so the rest of the batch still runs
func runCase(ctx context.Context, c Case) (outcome types.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = types.Outcome{Error: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return c.Run(ctx)
}

// aggregate fills counts, pass rates, durations and the overall verdict
func (h *Harness) aggregate(report *types.TestReport) {
	report.Passed = true
	for _, tt := range report.Requested {
		r := report.Results[tt]
		r.Total = len(r.Samples)
		for _, s := range r.Samples {
			if s.Outcome.Passed {
				r.Passed++
				continue
			}
			r.Reasons = append(r.Reasons, failureReason(s))
		}
		r.Failed = r.Total - r.Passed
		if r.Total > 0 {
			r.PassRate = float64(r.Passed) / float64(r.Total)
		}
		r.Durations = durationStats(r.Samples)
		r.Succeeded = r.Total > 0 && !r.TimedOut && r.PassRate >= h.cfg.MinPassRate
		if !r.Succeeded {
			report.Passed = false
			report.FailingTypes = append(report.FailingTypes, tt)
		}
	}
}

func failureReason(s types.MetricSample) string {
	detail := s.Outcome.Error
	if detail == "" && len(s.Outcome.Reasons) > 0 {
		detail = strings.Join(s.Outcome.Reasons, "; ")
	}
	if detail == "" {
		detail = "failed"
	}
	return fmt.Sprintf("%s: %s", s.Name, detail)
}
