package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Trailing window for throughput reporting.
	throughputWindow = 30 * time.Second

	// Number of slowest requests retained for the final report.
	slowestKept = 5
)

// Collector folds request results into bounded running state. It is safe
// for concurrent use by many producers and snapshot readers; raw results
// are never retained after folding.
type Collector struct {
	mu          sync.Mutex
	hist        *hdrhistogram.Histogram
	byClass     map[Classification]int64
	statusCodes map[int]int64
	errorKinds  map[string]int64
	scenarios   map[string]*scenarioTally
	window      *slidingWindow
	slowest     []SlowRequest
	minLatency  time.Duration
	maxLatency  time.Duration
	sumLatency  time.Duration
	totalBytes  int64
	start       time.Time
}

type scenarioTally struct {
	total    int64
	failures int64
}

// SlowRequest identifies one of the slowest observed requests.
type SlowRequest struct {
	Scenario string        `json:"scenario"`
	Step     string        `json:"step"`
	URL      string        `json:"url"`
	Latency  time.Duration `json:"-"`
	Status   int           `json:"status"`

	LatencyMs float64 `json:"latency_ms"`
}

// ScenarioStats summarizes one scenario's share of the run.
type ScenarioStats struct {
	Total    int64 `json:"total"`
	Failures int64 `json:"failures"`
}

// Snapshot is an immutable point-in-time view of the aggregate state.
type Snapshot struct {
	Total       int64                    `json:"total"`
	Successes   int64                    `json:"successes"`
	Failures    int64                    `json:"failures"`
	ByClass     map[Classification]int64 `json:"by_class,omitempty"`
	ErrorKinds  map[string]int64         `json:"errors,omitempty"`
	StatusCodes map[int]int64            `json:"status_codes,omitempty"`
	Scenarios   map[string]ScenarioStats `json:"scenarios,omitempty"`
	Slowest     []SlowRequest            `json:"slowest,omitempty"`

	MinLatency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`
	MeanLatency time.Duration `json:"-"`
	P50Latency  time.Duration `json:"-"`
	P95Latency  time.Duration `json:"-"`
	P99Latency  time.Duration `json:"-"`
	Elapsed     time.Duration `json:"-"`

	RequestsPerSec float64   `json:"requests_per_sec"`
	WindowRPS      float64   `json:"window_rps"`
	TotalBytes     int64     `json:"total_bytes"`
	Taken          time.Time `json:"taken"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P95LatencyMs  float64 `json:"p95_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	ElapsedMs     float64 `json:"elapsed_ms"`
}

// ErrorRate returns the failure percentage over all folded results.
func (s Snapshot) ErrorRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total) * 100
}

// LatencyAt returns the latency for a named aggregate
// (p50, p95, p99, min, max, avg).
func (s Snapshot) LatencyAt(aggregate string) (time.Duration, error) {
	switch aggregate {
	case "p50":
		return s.P50Latency, nil
	case "p95":
		return s.P95Latency, nil
	case "p99":
		return s.P99Latency, nil
	case "min":
		return s.MinLatency, nil
	case "max":
		return s.MaxLatency, nil
	case "avg", "mean":
		return s.MeanLatency, nil
	default:
		return 0, fmt.Errorf("unknown latency aggregate %q", aggregate)
	}
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	// Percentile error is bounded by the histogram resolution, at most
	// 0.1% of the reported value, independent of sample volume.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:        h,
		byClass:     make(map[Classification]int64),
		statusCodes: make(map[int]int64),
		errorKinds:  make(map[string]int64),
		scenarios:   make(map[string]*scenarioTally),
		window:      newSlidingWindow(throughputWindow),
		start:       time.Now(),
	}
}

// Start marks the run start for elapsed and throughput calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	c.start = time.Now()
	c.mu.Unlock()
}

// Record folds a single result into the aggregate state.
func (c *Collector) Record(res Result) {
	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if res.Latency > 0 {
		us := res.Latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += res.Latency
	if c.minLatency == 0 || res.Latency < c.minLatency {
		c.minLatency = res.Latency
	}
	if res.Latency > c.maxLatency {
		c.maxLatency = res.Latency
	}

	c.byClass[res.Class]++
	if res.StatusCode > 0 {
		c.statusCodes[res.StatusCode]++
	}
	if res.Err != nil {
		c.errorKinds[errorKind(res.Err)]++
	} else if res.Class.Failed() {
		c.errorKinds[string(res.Class)]++
	}

	if res.Scenario != "" {
		tally := c.scenarios[res.Scenario]
		if tally == nil {
			tally = &scenarioTally{}
			c.scenarios[res.Scenario] = tally
		}
		tally.total++
		if res.Class.Failed() {
			tally.failures++
		}
	}

	c.totalBytes += res.Bytes
	c.window.add(res.Timestamp)
	c.noteSlow(res)
}

// noteSlow keeps a bounded list of the slowest requests seen so far.
func (c *Collector) noteSlow(res Result) {
	if len(c.slowest) < slowestKept {
		c.slowest = append(c.slowest, slowFrom(res))
	} else if res.Latency > c.slowest[len(c.slowest)-1].Latency {
		c.slowest[len(c.slowest)-1] = slowFrom(res)
	} else {
		return
	}
	sort.Slice(c.slowest, func(i, j int) bool {
		return c.slowest[i].Latency > c.slowest[j].Latency
	})
}

func slowFrom(res Result) SlowRequest {
	return SlowRequest{
		Scenario:  res.Scenario,
		Step:      res.Step,
		URL:       res.URL,
		Latency:   res.Latency,
		Status:    res.StatusCode,
		LatencyMs: float64(res.Latency) / float64(time.Millisecond),
	}
}

// Snapshot produces an immutable view of the current aggregate state.
func (c *Collector) Snapshot() Snapshot {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var total, failures int64
	byClass := make(map[Classification]int64, len(c.byClass))
	for class, n := range c.byClass {
		byClass[class] = n
		total += n
		if class.Failed() {
			failures += n
		}
	}

	snap := Snapshot{
		Total:      total,
		Successes:  total - failures,
		Failures:   failures,
		ByClass:    byClass,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		TotalBytes: c.totalBytes,
		Taken:      now,
		Elapsed:    now.Sub(c.start),
	}

	if total > 0 {
		snap.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}
	if c.hist.TotalCount() > 0 {
		snap.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		snap.P95Latency = time.Duration(c.hist.ValueAtQuantile(95)) * time.Microsecond
		snap.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	if len(c.errorKinds) > 0 {
		snap.ErrorKinds = make(map[string]int64, len(c.errorKinds))
		for kind, n := range c.errorKinds {
			snap.ErrorKinds[kind] = n
		}
	}
	if len(c.statusCodes) > 0 {
		snap.StatusCodes = make(map[int]int64, len(c.statusCodes))
		for code, n := range c.statusCodes {
			snap.StatusCodes[code] = n
		}
	}
	if len(c.scenarios) > 0 {
		snap.Scenarios = make(map[string]ScenarioStats, len(c.scenarios))
		for name, tally := range c.scenarios {
			snap.Scenarios[name] = ScenarioStats{Total: tally.total, Failures: tally.failures}
		}
	}
	if len(c.slowest) > 0 {
		snap.Slowest = append([]SlowRequest(nil), c.slowest...)
	}

	if snap.Elapsed > 0 && total > 0 {
		snap.RequestsPerSec = float64(total) / snap.Elapsed.Seconds()
	}
	snap.WindowRPS = c.window.rate(now)

	snap.MinLatencyMs = float64(snap.MinLatency) / float64(time.Millisecond)
	snap.MaxLatencyMs = float64(snap.MaxLatency) / float64(time.Millisecond)
	snap.MeanLatencyMs = float64(snap.MeanLatency) / float64(time.Millisecond)
	snap.P50LatencyMs = float64(snap.P50Latency) / float64(time.Millisecond)
	snap.P95LatencyMs = float64(snap.P95Latency) / float64(time.Millisecond)
	snap.P99LatencyMs = float64(snap.P99Latency) / float64(time.Millisecond)
	snap.ElapsedMs = float64(snap.Elapsed) / float64(time.Millisecond)

	return snap
}
