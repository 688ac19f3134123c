// Package analyzer turns final run metrics into a performance grade,
// bottleneck findings, and trend verdicts.
package analyzer

import (
	"fmt"

	"github.com/stampede-load/stampede/internal/metrics"
)

// Trend describes how a metric moved over a run.
type Trend string

const (
	TrendStable       Trend = "stable"
	TrendImproving    Trend = "improving"
	TrendDegrading    Trend = "degrading"
	TrendInsufficient Trend = "insufficient_data"
)

// Capacity estimates what population the target can sustain, judged by
// how it behaved at the run's peak concurrency.
type Capacity struct {
	PeakVUs       int      `json:"peak_vus"`
	Assessment    string   `json:"assessment"`
	EstimatedMax  string   `json:"estimated_max"`
	Scaling       []string `json:"scaling,omitempty"`
	Optimizations []string `json:"optimizations,omitempty"`
}

// Report is the full analysis of one run.
type Report struct {
	Grade        string   `json:"grade"`
	Score        int      `json:"score"`
	Bottlenecks  []string `json:"bottlenecks"`
	LatencyTrend Trend    `json:"latency_trend"`
	SuccessTrend Trend    `json:"success_rate_trend"`
	Capacity     Capacity `json:"capacity"`

	// Degraded flags a run whose latency more than doubled end to end.
	Degraded bool `json:"degraded"`
}

// Analyze builds the report from the final snapshot plus the periodic
// snapshots observed during the run (oldest first). peakVUs is the
// highest concurrent population the run reached.
func Analyze(final metrics.Snapshot, history []metrics.Snapshot, peakVUs int) Report {
	report := Report{
		Bottlenecks:  bottlenecks(final),
		LatencyTrend: TrendInsufficient,
		SuccessTrend: TrendInsufficient,
		Capacity:     capacity(final, peakVUs),
	}
	report.Score = score(final.MeanLatencyMs, successRate(final), final.RequestsPerSec)
	report.Grade = grade(report.Score)

	if len(history) >= 2 {
		first, last := history[0], history[len(history)-1]
		report.LatencyTrend = latencyTrend(first.MeanLatencyMs, last.MeanLatencyMs)
		report.SuccessTrend = successTrend(successRate(first), successRate(last))
		report.Degraded = first.MeanLatencyMs > 0 && last.MeanLatencyMs > first.MeanLatencyMs*2
	}
	return report
}

// capacity grades the peak population the way an operator would: a clean
// run suggests headroom, a degraded one marks the ceiling.
func capacity(snap metrics.Snapshot, peakVUs int) Capacity {
	if snap.Total == 0 || peakVUs == 0 {
		return Capacity{PeakVUs: peakVUs, Assessment: "no request data to assess capacity"}
	}

	c := Capacity{PeakVUs: peakVUs}
	rate := successRate(snap)

	switch {
	case rate >= 95 && snap.MeanLatencyMs < 1000:
		c.Assessment = fmt.Sprintf("handled %d concurrent users well", peakVUs)
		c.EstimatedMax = fmt.Sprintf("likely %d-%d users", peakVUs*2, peakVUs*3)
	case rate >= 90:
		c.Assessment = fmt.Sprintf("struggled with %d concurrent users", peakVUs)
		c.EstimatedMax = fmt.Sprintf("around %d users", peakVUs)
	default:
		c.Assessment = fmt.Sprintf("overloaded at %d concurrent users", peakVUs)
		c.EstimatedMax = fmt.Sprintf("below %d users", peakVUs)
	}

	if snap.MeanLatencyMs > 1000 {
		c.Scaling = append(c.Scaling,
			"consider horizontal scaling (more servers)",
			"implement load balancing")
	}
	if rate < 95 {
		c.Scaling = append(c.Scaling,
			"increase server resources (CPU/memory)",
			"optimize database connections")
	}

	if snap.MeanLatencyMs > 500 {
		c.Optimizations = append(c.Optimizations,
			"profile application code for slow paths",
			"add caching in front of hot endpoints",
			"optimize database queries")
	}
	if snap.RequestsPerSec < 20 {
		c.Optimizations = append(c.Optimizations,
			"consider asynchronous processing",
			"enable connection pooling")
	}
	return c
}

func successRate(snap metrics.Snapshot) float64 {
	return 100 - snap.ErrorRate()
}

// score weights latency 40%, success rate 40%, throughput 20%.
func score(meanLatencyMs, successRate, rps float64) int {
	total := 0

	switch {
	case meanLatencyMs < 200:
		total += 40
	case meanLatencyMs < 500:
		total += 35
	case meanLatencyMs < 1000:
		total += 25
	case meanLatencyMs < 2000:
		total += 15
	default:
		total += 5
	}

	switch {
	case successRate >= 99.5:
		total += 40
	case successRate >= 95:
		total += 35
	case successRate >= 90:
		total += 25
	case successRate >= 75:
		total += 15
	default:
		total += 5
	}

	switch {
	case rps >= 50:
		total += 20
	case rps >= 20:
		total += 18
	case rps >= 10:
		total += 15
	case rps >= 5:
		total += 10
	default:
		total += 5
	}

	return total
}

func grade(score int) string {
	switch {
	case score >= 90:
		return "A+ (Excellent)"
	case score >= 80:
		return "A (Very Good)"
	case score >= 70:
		return "B (Good)"
	case score >= 60:
		return "C (Fair)"
	case score >= 50:
		return "D (Poor)"
	default:
		return "F (Critical)"
	}
}

func latencyTrend(first, last float64) Trend {
	if first <= 0 {
		return TrendInsufficient
	}
	switch {
	case last > first*1.5:
		return TrendDegrading
	case last < first*0.8:
		return TrendImproving
	default:
		return TrendStable
	}
}

func successTrend(first, last float64) Trend {
	switch {
	case last < first-10:
		return TrendDegrading
	case last > first+10:
		return TrendImproving
	default:
		return TrendStable
	}
}

func bottlenecks(snap metrics.Snapshot) []string {
	if snap.Total == 0 {
		return []string{"No response data available"}
	}

	var found []string
	rate := successRate(snap)

	switch {
	case snap.MeanLatencyMs > 2000:
		found = append(found, "HIGH_RESPONSE_TIME: server is very slow (>2s average)")
	case snap.MeanLatencyMs > 1000:
		found = append(found, "MODERATE_RESPONSE_TIME: server response time is concerning (>1s average)")
	}

	switch {
	case rate < 90:
		found = append(found, "LOW_SUCCESS_RATE: high failure rate indicates server overload")
	case rate < 95:
		found = append(found, "MODERATE_FAILURES: some requests failing under load")
	}

	if snap.RequestsPerSec < 5 {
		found = append(found, "LOW_THROUGHPUT: server cannot handle concurrent requests efficiently")
	}

	// A p95 far above the median means response times swing wildly.
	if snap.P50LatencyMs > 0 && snap.P95LatencyMs > snap.P50LatencyMs*3 {
		found = append(found, "HIGH_VARIABILITY: response times are inconsistent")
	}

	if snap.ByClass[metrics.ClassConnectionError] > 0 {
		found = append(found, "CONNECTION_ISSUES: server rejecting connections")
	}
	if snap.ByClass[metrics.ClassTimeout] > 0 {
		found = append(found, "TIMEOUTS: requests exceeding the configured deadline")
	}

	if len(found) == 0 {
		found = append(found, "NO_MAJOR_BOTTLENECKS: system performing within acceptable limits")
	}
	return found
}
