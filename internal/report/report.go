// Package report renders run summaries and real-time progress.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/stampede-load/stampede/internal/analyzer"
	"github.com/stampede-load/stampede/internal/engine"
	"github.com/stampede-load/stampede/internal/metrics"
)

// PrintReport writes a human-readable summary of a finished run.
func PrintReport(w io.Writer, summary engine.Summary) {
	stats := summary.Stats

	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Run ID:            %s\n", summary.RunID)
	fmt.Fprintf(w, "Outcome:           %s\n", summary.Reason)
	fmt.Fprintf(w, "Duration:          %s\n", summary.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Peak VUs:          %d\n", summary.PeakVUs)
	fmt.Fprintf(w, "Total Requests:    %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d (%.2f%%)\n", stats.Failures, stats.ErrorRate())
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", stats.RequestsPerSec)
	fmt.Fprintf(w, "Bytes Received:    %d\n", stats.TotalBytes)

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(stats.StatusCodes) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		for _, row := range metrics.StatusDistribution(stats.StatusCodes) {
			fmt.Fprintf(w, "  %d: %d\n", row.Code, row.Count)
		}
	}

	if len(stats.Scenarios) > 0 {
		fmt.Fprintln(w, "\nScenario Breakdown:")
		names := make([]string, 0, len(stats.Scenarios))
		for name := range stats.Scenarios {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			return stats.Scenarios[names[i]].Total > stats.Scenarios[names[j]].Total
		})
		for _, name := range names {
			scn := stats.Scenarios[name]
			share := 0.0
			if stats.Total > 0 {
				share = float64(scn.Total) / float64(stats.Total) * 100
			}
			fmt.Fprintf(w, "  - %s: total=%d (%.1f%%), failures=%d\n", name, scn.Total, share, scn.Failures)
		}
	}

	if len(stats.ErrorKinds) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		kinds := make([]string, 0, len(stats.ErrorKinds))
		for kind := range stats.ErrorKinds {
			kinds = append(kinds, kind)
		}
		sort.Slice(kinds, func(i, j int) bool {
			return stats.ErrorKinds[kinds[i]] > stats.ErrorKinds[kinds[j]]
		})
		for _, kind := range kinds {
			fmt.Fprintf(w, "  %s: %d\n", kind, stats.ErrorKinds[kind])
		}
	}

	if len(stats.Slowest) > 0 {
		fmt.Fprintln(w, "\nSlowest Requests:")
		for i, slow := range stats.Slowest {
			fmt.Fprintf(w, "  %d. %s %s/%s (%d) %s\n", i+1, slow.Latency, slow.Scenario, slow.Step, slow.Status, slow.URL)
		}
	}

	if summary.Breach != nil {
		fmt.Fprintln(w, "\nThreshold Breach:")
		for _, res := range summary.Breach.Results {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}

	printAnalysis(w, summary.Analysis)
}

func printAnalysis(w io.Writer, a analyzer.Report) {
	fmt.Fprintf(w, "\nPerformance Grade: %s\n", a.Grade)

	if a.LatencyTrend != analyzer.TrendInsufficient {
		fmt.Fprintf(w, "Latency Trend:     %s\n", a.LatencyTrend)
		fmt.Fprintf(w, "Success Trend:     %s\n", a.SuccessTrend)
	}

	fmt.Fprintln(w, "\nBottleneck Analysis:")
	for _, b := range a.Bottlenecks {
		fmt.Fprintf(w, "  - %s\n", b)
	}

	if a.Capacity.Assessment != "" {
		fmt.Fprintln(w, "\nCapacity Assessment:")
		fmt.Fprintf(w, "  Current:         %s\n", a.Capacity.Assessment)
		if a.Capacity.EstimatedMax != "" {
			fmt.Fprintf(w, "  Estimated Max:   %s\n", a.Capacity.EstimatedMax)
		}
		for _, s := range a.Capacity.Scaling {
			fmt.Fprintf(w, "  - scaling: %s\n", s)
		}
		for _, o := range a.Capacity.Optimizations {
			fmt.Fprintf(w, "  - tuning: %s\n", o)
		}
	}
}

// jsonReport is the machine-readable shape of a summary.
type jsonReport struct {
	RunID    string              `json:"run_id"`
	Reason   engine.Reason       `json:"reason"`
	Duration float64             `json:"duration_seconds"`
	PeakVUs  int                 `json:"peak_vus"`
	Stats    metrics.Snapshot    `json:"stats"`
	Statuses []metrics.StatusRow `json:"status_distribution,omitempty"`
	Breach   []string            `json:"breach,omitempty"`
	Analysis analyzer.Report     `json:"analysis"`
}

// PrintJSONReport writes the summary as indented JSON.
func PrintJSONReport(w io.Writer, summary engine.Summary) error {
	doc := jsonReport{
		RunID:    summary.RunID,
		Reason:   summary.Reason,
		Duration: summary.Duration.Seconds(),
		PeakVUs:  summary.PeakVUs,
		Stats:    summary.Stats,
		Statuses: metrics.StatusDistribution(summary.Stats.StatusCodes),
		Analysis: summary.Analysis,
	}
	if summary.Breach != nil {
		for _, res := range summary.Breach.Results {
			doc.Breach = append(doc.Breach, res.Message)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
