package metrics

import (
	"math"
	"testing"
	"time"
)

func TestSlidingWindowRate(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	t.Run("empty window reports zero", func(t *testing.T) {
		w := newSlidingWindow(30 * time.Second)
		if got := w.rate(base); got != 0 {
			t.Fatalf("rate = %v, want 0", got)
		}
	})

	t.Run("steady traffic", func(t *testing.T) {
		w := newSlidingWindow(30 * time.Second)
		for s := 0; s < 10; s++ {
			for i := 0; i < 5; i++ {
				w.add(base.Add(time.Duration(s) * time.Second))
			}
		}
		now := base.Add(9 * time.Second)
		if got := w.rate(now); math.Abs(got-5) > 0.01 {
			t.Fatalf("rate = %v, want 5", got)
		}
	})

	t.Run("sparse traffic divides by elapsed not by busy seconds", func(t *testing.T) {
		w := newSlidingWindow(30 * time.Second)
		// 10 events in second 0 and 10 in second 9: 20 events over 10
		// elapsed seconds is 2 rps, not 10.
		for i := 0; i < 10; i++ {
			w.add(base)
			w.add(base.Add(9 * time.Second))
		}
		now := base.Add(9 * time.Second)
		if got := w.rate(now); math.Abs(got-2) > 0.01 {
			t.Fatalf("rate = %v, want 2", got)
		}
	})

	t.Run("elapsed caps at window length", func(t *testing.T) {
		w := newSlidingWindow(10 * time.Second)
		w.add(base)
		// Long after the first event only recent buckets count, and the
		// divisor stays at the window length.
		for i := 0; i < 30; i++ {
			w.add(base.Add(100 * time.Second))
		}
		now := base.Add(100 * time.Second)
		if got := w.rate(now); math.Abs(got-3) > 0.01 {
			t.Fatalf("rate = %v, want 3", got)
		}
	})
}
