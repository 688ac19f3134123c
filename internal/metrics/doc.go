// Package metrics provides streaming metrics aggregation for load testing.
//
// The central [Collector] folds per-request [Result] values from all virtual
// users into bounded running state: an HDR histogram for latency percentiles,
// per-classification and per-scenario counters, a status-code tally, and a
// sliding-window throughput counter. Memory use is independent of request
// volume; raw results are discarded after folding.
//
// # Recording
//
//	collector := metrics.NewCollector()
//	collector.Start() // mark run start for accurate RPS calculation
//
//	collector.Record(metrics.Result{
//		Scenario: "checkout",
//		Step:     "create-order",
//		Class:    metrics.ClassSuccess,
//		Latency:  42 * time.Millisecond,
//	})
//
// # Snapshots
//
// [Collector.Snapshot] produces an immutable [Snapshot] usable concurrently
// with ongoing folds. The threshold monitor and the progress reporter both
// consume snapshots; neither can observe partially-folded state.
//
// Percentiles come from the histogram and carry a bounded relative error set
// by its resolution (3 significant figures); exactness is traded for a fixed
// memory footprint.
package metrics
