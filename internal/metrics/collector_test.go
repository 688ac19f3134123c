package metrics

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

func TestRecordCountsAndClassification(t *testing.T) {
	c := NewCollector()
	c.Record(Result{Scenario: "browse", Class: ClassSuccess, StatusCode: 200, Latency: 10 * time.Millisecond})
	c.Record(Result{Scenario: "browse", Class: ClassServerError, StatusCode: 503, Latency: 20 * time.Millisecond})
	c.Record(Result{Scenario: "checkout", Class: ClassTimeout, Latency: 30 * time.Millisecond, Err: errors.New("deadline")})

	snap := c.Snapshot()
	if snap.Total != 3 || snap.Successes != 1 || snap.Failures != 2 {
		t.Fatalf("counts = %d/%d/%d, want 3/1/2", snap.Total, snap.Successes, snap.Failures)
	}
	if snap.ByClass[ClassServerError] != 1 || snap.ByClass[ClassTimeout] != 1 {
		t.Fatalf("class counts wrong: %v", snap.ByClass)
	}
	if snap.StatusCodes[503] != 1 || snap.StatusCodes[200] != 1 {
		t.Fatalf("status distribution wrong: %v", snap.StatusCodes)
	}
	if snap.Scenarios["browse"].Total != 2 || snap.Scenarios["browse"].Failures != 1 {
		t.Fatalf("scenario tally wrong: %+v", snap.Scenarios["browse"])
	}
	if snap.MinLatency != 10*time.Millisecond || snap.MaxLatency != 30*time.Millisecond {
		t.Fatalf("min/max = %s/%s", snap.MinLatency, snap.MaxLatency)
	}
}

// TestPercentileAccuracy checks the reported p95 against a synthetic sample
// with a known exact value, within the histogram's documented error bound.
func TestPercentileAccuracy(t *testing.T) {
	c := NewCollector()
	// 1..1000 ms uniformly: exact p95 is 950ms.
	for i := 1; i <= 1000; i++ {
		c.Record(Result{Class: ClassSuccess, Latency: time.Duration(i) * time.Millisecond})
	}
	snap := c.Snapshot()
	got := snap.P95Latency.Seconds()
	want := 0.950
	if math.Abs(got-want)/want > 0.01 {
		t.Fatalf("p95 = %s, want 950ms ±1%%", snap.P95Latency)
	}
}

// TestBoundedMemory folds a large volume of synthetic results and checks the
// accumulator footprint does not scale with sample count.
func TestBoundedMemory(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 1_000_000; i++ {
		c.Record(Result{
			Scenario:   "bulk",
			Class:      ClassSuccess,
			StatusCode: 200,
			Latency:    time.Duration(i%5000) * time.Microsecond,
		})
	}
	c.mu.Lock()
	slowLen := len(c.slowest)
	kindLen := len(c.errorKinds)
	bucketLen := len(c.window.buckets)
	c.mu.Unlock()

	if slowLen > slowestKept {
		t.Fatalf("slowest list grew to %d, cap is %d", slowLen, slowestKept)
	}
	if kindLen != 0 {
		t.Fatalf("error kinds grew without errors: %d", kindLen)
	}
	if bucketLen != int(throughputWindow/time.Second) {
		t.Fatalf("window buckets = %d, want %d", bucketLen, int(throughputWindow/time.Second))
	}
	if got := c.Snapshot().Total; got != 1_000_000 {
		t.Fatalf("total = %d, want 1000000", got)
	}
}

func TestSlowestKeepsLargest(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 100; i++ {
		c.Record(Result{Class: ClassSuccess, Latency: time.Duration(i) * time.Millisecond, URL: fmt.Sprintf("/r/%d", i)})
	}
	snap := c.Snapshot()
	if len(snap.Slowest) != slowestKept {
		t.Fatalf("slowest length = %d, want %d", len(snap.Slowest), slowestKept)
	}
	if snap.Slowest[0].Latency != 100*time.Millisecond {
		t.Fatalf("slowest head = %s, want 100ms", snap.Slowest[0].Latency)
	}
	for i := 1; i < len(snap.Slowest); i++ {
		if snap.Slowest[i].Latency > snap.Slowest[i-1].Latency {
			t.Fatalf("slowest not sorted descending at %d", i)
		}
	}
}

// TestConcurrentRecordAndSnapshot exercises folds racing with snapshot reads.
func TestConcurrentRecordAndSnapshot(t *testing.T) {
	c := NewCollector()
	const producers = 8
	const perProducer = 2000

	var wg sync.WaitGroup
	wg.Add(producers + 1)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				c.Record(Result{Class: ClassSuccess, StatusCode: 200, Latency: time.Millisecond})
			}
		}()
	}
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := c.Snapshot()
			if snap.Failures > 0 {
				t.Errorf("unexpected failures in snapshot: %d", snap.Failures)
				return
			}
		}
	}()
	wg.Wait()

	if got := c.Snapshot().Total; got != producers*perProducer {
		t.Fatalf("total = %d, want %d", got, producers*perProducer)
	}
}

func TestErrorRate(t *testing.T) {
	c := NewCollector()
	for i := 0; i < 90; i++ {
		c.Record(Result{Class: ClassSuccess, Latency: time.Millisecond})
	}
	for i := 0; i < 10; i++ {
		c.Record(Result{Class: ClassConnectionError, Latency: time.Millisecond})
	}
	if rate := c.Snapshot().ErrorRate(); math.Abs(rate-10) > 1e-9 {
		t.Fatalf("error rate = %f, want 10", rate)
	}
}

func TestStatusDistributionSorted(t *testing.T) {
	rows := StatusDistribution(map[int]int64{503: 2, 200: 10, 404: 1})
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if rows[0].Code != 200 || rows[1].Code != 404 || rows[2].Code != 503 {
		t.Fatalf("rows not sorted by code: %+v", rows)
	}
}
