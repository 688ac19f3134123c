package threshold

import (
	"sync"
	"testing"
	"time"

	"github.com/stampede-load/stampede/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Threshold
		wantErr bool
	}{
		{
			name:  "latency p95",
			input: "latency:p95 < 500",
			want:  Threshold{Metric: "latency", Aggregate: "p95", Operator: "<", Value: 500},
		},
		{
			name:  "latency avg no spaces",
			input: "latency:avg<200",
			want:  Threshold{Metric: "latency", Aggregate: "avg", Operator: "<", Value: 200},
		},
		{
			name:  "error rate percent",
			input: "error_rate:percent < 5",
			want:  Threshold{Metric: "error_rate", Aggregate: "percent", Operator: "<", Value: 5},
		},
		{
			name:  "error count",
			input: "errors:count <= 10",
			want:  Threshold{Metric: "errors", Aggregate: "count", Operator: "<=", Value: 10},
		},
		{
			name:  "request rate",
			input: "requests:rate > 100",
			want:  Threshold{Metric: "requests", Aggregate: "rate", Operator: ">", Value: 100},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "latency under 500 please", wantErr: true},
		{name: "unknown metric", input: "cpu:avg < 50", wantErr: true},
		{name: "bad aggregate for metric", input: "latency:rate < 5", wantErr: true},
		{name: "bad operator", input: "latency:p95 ! 500", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if got.Metric != tt.want.Metric || got.Aggregate != tt.want.Aggregate ||
				got.Operator != tt.want.Operator || got.Value != tt.want.Value {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultipleCollectsErrors(t *testing.T) {
	_, err := ParseMultiple([]string{"latency:p95 < 500", "nope", "also nope"})
	if err == nil {
		t.Fatal("expected combined parse error")
	}

	parsed, err := ParseMultiple([]string{"latency:p95 < 500", "error_rate:percent < 5"})
	if err != nil {
		t.Fatalf("ParseMultiple failed: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("expected 2 thresholds, got %d", len(parsed))
	}
}

func TestEvaluate(t *testing.T) {
	snap := metrics.Snapshot{
		Total:          1000,
		Failures:       80,
		Successes:      920,
		P95Latency:     600 * time.Millisecond,
		P95LatencyMs:   600,
		RequestsPerSec: 50,
	}

	mustParse := func(s string) Threshold {
		t.Helper()
		th, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		return th
	}

	tests := []struct {
		input string
		pass  bool
	}{
		{"latency:p95 < 500", false},
		{"latency:p95 < 700", true},
		{"error_rate:percent < 5", false}, // 8% observed
		{"error_rate:percent < 10", true},
		{"errors:count <= 80", true},
		{"requests:rate > 100", false},
		{"requests:count >= 1000", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			results := Evaluate([]Threshold{mustParse(tt.input)}, snap)
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			if results[0].Pass != tt.pass {
				t.Errorf("%q: pass = %v, want %v (actual %.2f)", tt.input, results[0].Pass, tt.pass, results[0].Actual)
			}
		})
	}
}

// stubSource hands out a scripted snapshot.
type stubSource struct {
	mu   sync.Mutex
	snap metrics.Snapshot
}

func (s *stubSource) Snapshot() metrics.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSource) set(snap metrics.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap
}

func TestMonitorFiresOnce(t *testing.T) {
	th, err := Parse("error_rate:percent < 5")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	source := &stubSource{}
	source.set(metrics.Snapshot{Total: 100, Failures: 50})

	fired := 0
	mon := NewMonitor(Config{
		Thresholds:   []Threshold{th},
		MinSamples:   10,
		StopOnBreach: true,
	}, source, func(Breach) { fired++ })

	// Repeated breaching evaluations must not re-fire.
	mon.Check()
	mon.Check()
	mon.Check()

	if fired != 1 {
		t.Errorf("expected exactly 1 breach signal, got %d", fired)
	}

	breach := mon.Breach()
	if breach == nil {
		t.Fatal("expected recorded breach")
	}
	if len(breach.Results) != 1 {
		t.Errorf("expected 1 failing result, got %d", len(breach.Results))
	}
	if breach.Snapshot.Total != 100 {
		t.Errorf("expected triggering snapshot retained, got total %d", breach.Snapshot.Total)
	}
}

func TestMonitorColdStartGuard(t *testing.T) {
	th, err := Parse("error_rate:percent < 5")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	source := &stubSource{}
	// 2 of 3 requests failed, but the sample is tiny.
	source.set(metrics.Snapshot{Total: 3, Failures: 2})

	fired := 0
	mon := NewMonitor(Config{
		Thresholds:   []Threshold{th},
		MinSamples:   10,
		StopOnBreach: true,
	}, source, func(Breach) { fired++ })

	mon.Check()
	if fired != 0 {
		t.Errorf("expected no breach during cold start, got %d", fired)
	}
	if mon.Breach() != nil {
		t.Error("expected no recorded breach during cold start")
	}

	// Once the sample count clears the guard, the breach fires.
	source.set(metrics.Snapshot{Total: 100, Failures: 50})
	mon.Check()
	if fired != 1 {
		t.Errorf("expected breach after cold start, got %d", fired)
	}
}

func TestMonitorRecordsWithoutStopping(t *testing.T) {
	th, err := Parse("latency:p95 < 100")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	source := &stubSource{}
	source.set(metrics.Snapshot{Total: 100, P95Latency: 300 * time.Millisecond})

	fired := 0
	mon := NewMonitor(Config{
		Thresholds:   []Threshold{th},
		StopOnBreach: false,
	}, source, func(Breach) { fired++ })

	mon.Check()
	if fired != 0 {
		t.Errorf("expected no cancellation when StopOnBreach is off, got %d", fired)
	}
	if mon.Breach() == nil {
		t.Error("expected breach to be recorded even without stopping")
	}
}
