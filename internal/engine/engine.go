// Package engine owns a full load-test run: it wires the load pattern,
// scenario execution, metrics aggregation, and threshold monitoring, and
// reports a terminal summary.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stampede-load/stampede/internal/analyzer"
	"github.com/stampede-load/stampede/internal/controller"
	"github.com/stampede-load/stampede/internal/metrics"
	"github.com/stampede-load/stampede/internal/pattern"
	"github.com/stampede-load/stampede/internal/scenario"
	"github.com/stampede-load/stampede/internal/threshold"
	"github.com/stampede-load/stampede/internal/transport"
)

// ErrInvalidConfig marks a configuration rejected before any traffic is
// generated.
var ErrInvalidConfig = errors.New("invalid engine configuration")

// Reason explains why a run ended.
type Reason string

const (
	ReasonCompleted   Reason = "completed"
	ReasonThreshold   Reason = "threshold_breached"
	ReasonInterrupted Reason = "interrupted"
	ReasonConfigError Reason = "config_error"
)

// Summary is the terminal report of one run.
type Summary struct {
	RunID    string
	Reason   Reason
	Duration time.Duration
	PeakVUs  int
	Stats    metrics.Snapshot
	Breach   *threshold.Breach
	Analysis analyzer.Report
}

// Options configure a run. Pattern, Scenarios, and Requester are required.
type Options struct {
	Pattern   pattern.Pattern
	Scenarios []*scenario.Scenario
	Requester transport.Requester

	Thresholds threshold.Config

	// Seed supplies initial template variables for each virtual-user run
	// (e.g. a data feeder or static tokens). May be nil.
	Seed scenario.SeedSource

	// SnapshotInterval is the cadence of snapshots pushed to
	// subscribers and retained for trend analysis. Defaults to 1s.
	SnapshotInterval time.Duration

	// PreflightURL, when set, is probed with a single GET before any
	// load is generated; an unreachable target fails the run as a
	// configuration error.
	PreflightURL string
}

// Engine runs one load test. An engine is single-use: build, subscribe,
// run, read the summary.
type Engine struct {
	opts      Options
	collector *metrics.Collector

	mu      sync.Mutex
	subs    []chan metrics.Snapshot
	history []metrics.Snapshot
	started bool
}

// New validates cross-field invariants and builds an engine. Per-field
// type validation is the config loader's job; the engine re-checks what
// must hold for the run to be meaningful.
func New(opts Options) (*Engine, error) {
	if opts.Pattern == nil {
		return nil, fmt.Errorf("%w: a load pattern is required", ErrInvalidConfig)
	}
	if opts.Requester == nil {
		return nil, fmt.Errorf("%w: a requester is required", ErrInvalidConfig)
	}
	if len(opts.Scenarios) == 0 {
		return nil, fmt.Errorf("%w: at least one scenario is required", ErrInvalidConfig)
	}
	for _, scn := range opts.Scenarios {
		if err := scn.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if opts.SnapshotInterval <= 0 {
		opts.SnapshotInterval = time.Second
	}

	return &Engine{
		opts:      opts,
		collector: metrics.NewCollector(),
	}, nil
}

// Subscribe returns a channel receiving periodic snapshots during the
// run. The channel is closed when the run ends. Slow consumers skip
// snapshots rather than stall the run.
func (e *Engine) Subscribe() <-chan metrics.Snapshot {
	ch := make(chan metrics.Snapshot, 4)
	e.mu.Lock()
	e.subs = append(e.subs, ch)
	e.mu.Unlock()
	return ch
}

// Collector exposes the aggregator for reporting.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// Run executes the load test until the pattern completes, a threshold
// breach aborts it, or ctx is cancelled. It always returns a usable
// Summary; the error is non-nil only for configuration failures.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return Summary{Reason: ReasonConfigError}, fmt.Errorf("%w: engine already ran", ErrInvalidConfig)
	}
	e.started = true
	e.mu.Unlock()

	summary := Summary{RunID: uuid.NewString()}
	defer e.closeSubs()

	if e.opts.PreflightURL != "" {
		if err := e.preflight(ctx); err != nil {
			summary.Reason = ReasonConfigError
			return summary, fmt.Errorf("%w: preflight: %v", ErrInvalidConfig, err)
		}
	}

	selector, err := scenario.NewSelector(e.opts.Scenarios)
	if err != nil {
		summary.Reason = ReasonConfigError
		return summary, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	executor := scenario.NewExecutor(e.opts.Requester, e.collector, e.opts.Seed)

	ctrl, err := controller.New(controller.Config{
		Pattern:  e.opts.Pattern,
		Selector: selector,
		Executor: executor,
	})
	if err != nil {
		summary.Reason = ReasonConfigError
		return summary, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitor := threshold.NewMonitor(e.opts.Thresholds, e.collector, func(threshold.Breach) {
		cancel()
	})

	e.collector.Start()
	start := time.Now()

	done := make(chan struct{})
	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		monitor.Run(done)
	}()
	go func() {
		defer loops.Done()
		e.publishLoop(done)
	}()

	runErr := ctrl.Run(runCtx)

	close(done)
	loops.Wait()

	// One final evaluation so a breach in the last polling gap is still
	// recorded for the summary.
	monitor.Check()

	summary.Duration = time.Since(start)
	summary.PeakVUs = ctrl.Peak()
	summary.Stats = e.collector.Snapshot()
	summary.Breach = monitor.Breach()

	e.mu.Lock()
	history := make([]metrics.Snapshot, len(e.history))
	copy(history, e.history)
	e.mu.Unlock()
	summary.Analysis = analyzer.Analyze(summary.Stats, history, summary.PeakVUs)

	switch {
	case summary.Breach != nil && e.opts.Thresholds.StopOnBreach:
		summary.Reason = ReasonThreshold
	case runErr != nil && ctx.Err() != nil:
		summary.Reason = ReasonInterrupted
	default:
		summary.Reason = ReasonCompleted
	}
	return summary, nil
}

// preflight issues one probe request to confirm the target is reachable.
func (e *Engine) preflight(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := e.opts.Requester.Do(probeCtx, transport.Request{
		Method: http.MethodGet,
		URL:    e.opts.PreflightURL,
	})
	if err != nil {
		return err
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("target returned status %d", resp.StatusCode)
	}
	return nil
}

// maxHistory bounds how many periodic snapshots are retained for trend
// analysis.
const maxHistory = 1024

// publishLoop snapshots on a cadence, feeding subscribers and the trend
// history.
func (e *Engine) publishLoop(done <-chan struct{}) {
	ticker := time.NewTicker(e.opts.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			snap := e.collector.Snapshot()
			e.mu.Lock()
			e.history = append(e.history, snap)
			if len(e.history) > maxHistory {
				// Halve the resolution so memory stays bounded on
				// very long runs; trends only need endpoints anyway.
				compact := e.history[:0]
				for i := 0; i < len(e.history); i += 2 {
					compact = append(compact, e.history[i])
				}
				e.history = compact
			}
			subs := e.subs
			e.mu.Unlock()
			for _, ch := range subs {
				select {
				case ch <- snap:
				default:
				}
			}
		}
	}
}

func (e *Engine) closeSubs() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		close(ch)
	}
	e.subs = nil
}
