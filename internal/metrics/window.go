package metrics

import "time"

// slidingWindow counts events over a trailing window using fixed one-second
// buckets. Memory is bounded by the window length regardless of volume.
// Callers hold the collector lock; the window itself is not synchronized.
type slidingWindow struct {
	buckets []int64
	seconds []int64 // unix second each bucket currently represents
	first   int64   // unix second of the first recorded event, 0 until then
}

func newSlidingWindow(window time.Duration) *slidingWindow {
	n := int(window / time.Second)
	if n < 1 {
		n = 1
	}
	return &slidingWindow{
		buckets: make([]int64, n),
		seconds: make([]int64, n),
	}
}

func (w *slidingWindow) add(at time.Time) {
	sec := at.Unix()
	if w.first == 0 {
		w.first = sec
	}
	idx := int(sec % int64(len(w.buckets)))
	if w.seconds[idx] != sec {
		w.buckets[idx] = 0
		w.seconds[idx] = sec
	}
	w.buckets[idx]++
}

// rate returns events per second across the trailing window. The divisor
// is the elapsed wall time since the first event, capped at the window
// length, so sparse traffic does not overstate throughput.
func (w *slidingWindow) rate(now time.Time) float64 {
	if w.first == 0 {
		return 0
	}
	cutoff := now.Unix() - int64(len(w.buckets))
	var total int64
	for i, sec := range w.seconds {
		if sec > cutoff {
			total += w.buckets[i]
		}
	}
	elapsed := now.Unix() - w.first + 1
	if elapsed < 1 {
		elapsed = 1
	}
	if elapsed > int64(len(w.buckets)) {
		elapsed = int64(len(w.buckets))
	}
	return float64(total) / float64(elapsed)
}
