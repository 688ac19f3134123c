package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stampede-load/stampede/internal/analyzer"
	"github.com/stampede-load/stampede/internal/engine"
	"github.com/stampede-load/stampede/internal/metrics"
	"github.com/stampede-load/stampede/internal/threshold"
)

func sampleSummary() engine.Summary {
	return engine.Summary{
		RunID:    "run-1",
		Reason:   engine.ReasonCompleted,
		Duration: 90 * time.Second,
		PeakVUs:  100,
		Stats: metrics.Snapshot{
			Total:          5000,
			Successes:      4900,
			Failures:       100,
			RequestsPerSec: 55.5,
			MinLatency:     3 * time.Millisecond,
			MaxLatency:     2 * time.Second,
			MeanLatency:    120 * time.Millisecond,
			P50Latency:     90 * time.Millisecond,
			P95Latency:     400 * time.Millisecond,
			P99Latency:     900 * time.Millisecond,
			StatusCodes:    map[int]int64{200: 4900, 500: 100},
			ErrorKinds:     map[string]int64{"Request timeout": 100},
			Scenarios: map[string]metrics.ScenarioStats{
				"browse":   {Total: 4000, Failures: 50},
				"checkout": {Total: 1000, Failures: 50},
			},
			Slowest: []metrics.SlowRequest{
				{Scenario: "checkout", Step: "pay", URL: "http://x/pay", Latency: 2 * time.Second, Status: 500},
			},
		},
		Analysis: analyzer.Report{
			Grade:        "B (Good)",
			Score:        75,
			Bottlenecks:  []string{"MODERATE_FAILURES: some requests failing under load"},
			LatencyTrend: analyzer.TrendStable,
			SuccessTrend: analyzer.TrendStable,
			Capacity: analyzer.Capacity{
				PeakVUs:      100,
				Assessment:   "handled 100 concurrent users well",
				EstimatedMax: "likely 200-300 users",
			},
		},
	}
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleSummary())
	out := buf.String()

	for _, want := range []string{
		"Total Requests:    5000",
		"Failed:            100 (2.00%)",
		"Peak VUs:          100",
		"200: 4900",
		"500: 100",
		"browse: total=4000 (80.0%)",
		"Request timeout: 100",
		"Slowest Requests:",
		"Performance Grade: B (Good)",
		"MODERATE_FAILURES",
		"Capacity Assessment:",
		"handled 100 concurrent users well",
		"likely 200-300 users",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintReportWithBreach(t *testing.T) {
	summary := sampleSummary()
	summary.Reason = engine.ReasonThreshold
	summary.Breach = &threshold.Breach{
		Results: []threshold.Result{{Message: "✗ latency:p95 < 200: 400.00 < 200.00"}},
	}

	var buf bytes.Buffer
	PrintReport(&buf, summary)
	out := buf.String()

	if !strings.Contains(out, "Threshold Breach:") {
		t.Errorf("expected breach section:\n%s", out)
	}
	if !strings.Contains(out, "latency:p95 < 200") {
		t.Errorf("expected breach detail:\n%s", out)
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleSummary()); err != nil {
		t.Fatalf("PrintJSONReport failed: %v", err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if doc["run_id"] != "run-1" {
		t.Errorf("expected run_id run-1, got %v", doc["run_id"])
	}
	if doc["reason"] != "completed" {
		t.Errorf("expected reason completed, got %v", doc["reason"])
	}
	stats, ok := doc["stats"].(map[string]interface{})
	if !ok {
		t.Fatal("expected stats object")
	}
	if stats["total"] != float64(5000) {
		t.Errorf("expected total 5000, got %v", stats["total"])
	}
}

func TestProgressReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(&buf)

	snaps := make(chan metrics.Snapshot, 2)
	snaps <- metrics.Snapshot{Total: 10, Successes: 9, Failures: 1, WindowRPS: 5, P95LatencyMs: 120}
	snaps <- metrics.Snapshot{Total: 20, Successes: 18, Failures: 2, WindowRPS: 10, P95LatencyMs: 150}
	close(snaps)

	go reporter.Run(snaps)
	reporter.Wait()

	out := buf.String()
	if !strings.Contains(out, "Requests: 20") {
		t.Errorf("expected final progress line, got %q", out)
	}
	if !strings.Contains(out, "P95: 150.0ms") {
		t.Errorf("expected p95 in progress line, got %q", out)
	}
}
