package report

import (
	"fmt"
	"io"

	"github.com/stampede-load/stampede/internal/metrics"
)

// ProgressReporter prints a single updating line per snapshot received
// from the engine's subscription channel.
type ProgressReporter struct {
	writer   io.Writer
	finished chan struct{}
}

func NewProgressReporter(writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		writer:   writer,
		finished: make(chan struct{}),
	}
}

// Run consumes snapshots until the channel is closed. Call Wait to block
// until the final line is flushed.
func (p *ProgressReporter) Run(snaps <-chan metrics.Snapshot) {
	defer close(p.finished)
	for snap := range snaps {
		line := fmt.Sprintf("\rRequests: %d | Successes: %d | Failures: %d | RPS: %.1f | P95: %.1fms",
			snap.Total, snap.Successes, snap.Failures, snap.WindowRPS, snap.P95LatencyMs)
		fmt.Fprint(p.writer, line)
	}
	fmt.Fprintln(p.writer)
}

// Wait blocks until Run has returned.
func (p *ProgressReporter) Wait() {
	<-p.finished
}
