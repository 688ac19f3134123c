package metrics

import "time"

// Classification buckets a request outcome for aggregation.
type Classification string

const (
	ClassSuccess         Classification = "success"
	ClassClientError     Classification = "client_error"
	ClassServerError     Classification = "server_error"
	ClassTimeout         Classification = "timeout"
	ClassConnectionError Classification = "connection_error"
)

// Failed reports whether the classification counts as a failed request.
func (c Classification) Failed() bool {
	return c != ClassSuccess
}

// Result is one request outcome produced by a scenario step. The collector
// folds it into aggregate state; nothing retains it afterwards.
type Result struct {
	Scenario   string
	Step       string
	Method     string
	URL        string
	Class      Classification
	StatusCode int
	Latency    time.Duration
	Bytes      int64
	Timestamp  time.Time
	Err        error
}
