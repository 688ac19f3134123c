package threshold

import (
	"sync"
	"time"

	"github.com/stampede-load/stampede/internal/metrics"
)

const (
	defaultInterval   = time.Second
	defaultMinSamples = 10
)

// Snapshotter supplies point-in-time metrics. *metrics.Collector
// satisfies it.
type Snapshotter interface {
	Snapshot() metrics.Snapshot
}

// Config tunes the monitor.
type Config struct {
	Thresholds []Threshold

	// MinSamples guards the cold-start period: thresholds are not
	// evaluated until at least this many results have been folded.
	// Defaults to 10.
	MinSamples int64

	// Interval is the polling cadence. Defaults to 1s.
	Interval time.Duration

	// StopOnBreach triggers run cancellation on the first breach. When
	// false, breaches are recorded but the run continues.
	StopOnBreach bool
}

// Breach records the first threshold violation of a run.
type Breach struct {
	Results  []Result // failing results only
	Snapshot metrics.Snapshot
	At       time.Time
}

// Monitor polls metrics snapshots on a fixed cadence and fires the abort
// callback at most once, no matter how many evaluations breach.
type Monitor struct {
	cfg      Config
	source   Snapshotter
	onBreach func(Breach)

	once sync.Once
	mu   sync.Mutex
	hit  *Breach
}

// NewMonitor builds a monitor. onBreach may be nil when only recording is
// wanted.
func NewMonitor(cfg Config, source Snapshotter, onBreach func(Breach)) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = defaultMinSamples
	}
	return &Monitor{cfg: cfg, source: source, onBreach: onBreach}
}

// Breach returns the recorded breach, or nil if none fired.
func (m *Monitor) Breach() *Breach {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hit
}

// Run polls until done is closed. It never returns early; a breach only
// signals through the callback so the caller decides how to wind down.
func (m *Monitor) Run(done <-chan struct{}) {
	if len(m.cfg.Thresholds) == 0 {
		return
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			m.Check()
		}
	}
}

// Check runs one evaluation pass. Exposed so the engine can force a final
// evaluation at run end.
func (m *Monitor) Check() {
	snap := m.source.Snapshot()
	if snap.Total < m.cfg.MinSamples {
		return
	}

	var failing []Result
	for _, res := range Evaluate(m.cfg.Thresholds, snap) {
		if !res.Pass {
			failing = append(failing, res)
		}
	}
	if len(failing) == 0 {
		return
	}

	m.once.Do(func() {
		breach := Breach{Results: failing, Snapshot: snap, At: time.Now()}
		m.mu.Lock()
		m.hit = &breach
		m.mu.Unlock()
		if m.cfg.StopOnBreach && m.onBreach != nil {
			m.onBreach(breach)
		}
	})
}
