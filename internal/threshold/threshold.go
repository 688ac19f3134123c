// Package threshold evaluates failure assertions against metrics
// snapshots and cancels a run when they are breached.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/stampede-load/stampede/internal/metrics"
)

// Threshold is one performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // "latency", "error_rate", "requests"
	Aggregate string  // "p50", "p95", "p99", "avg", "min", "max", "percent", "rate", "count"
	Operator  string  // "<", "<=", ">", ">=", "=="
	Value     float64
	Raw       string // original threshold string for display
}

// Result is the outcome of evaluating one threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string.
// Supported formats:
//   - "latency:p95 < 500"      (latency percentile in ms)
//   - "latency:avg < 200"      (average latency in ms)
//   - "latency:max < 1000"     (max latency in ms)
//   - "error_rate:percent < 5" (failure percentage)
//   - "errors:count < 10"      (failure count)
//   - "requests:rate > 100"    (requests per second)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'latency:p95 < 500')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]

	value, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[4], err)
	}

	if !validMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, error_rate, errors, requests)", metric)
	}
	if !validAggregate(metric, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for metric %q", aggregate, metric)
	}
	if !validOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses a list of threshold strings, collecting every error.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

func validMetric(metric string) bool {
	switch metric {
	case "latency", "error_rate", "errors", "requests":
		return true
	}
	return false
}

func validAggregate(metric, aggregate string) bool {
	switch metric {
	case "latency":
		switch aggregate {
		case "p50", "p95", "p99", "avg", "min", "max":
			return true
		}
	case "error_rate":
		switch aggregate {
		case "percent", "rate":
			return true
		}
	case "errors":
		return aggregate == "count"
	case "requests":
		switch aggregate {
		case "rate", "count":
			return true
		}
	}
	return false
}

func validOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==":
		return true
	}
	return false
}

// Evaluate checks every threshold against the snapshot.
func Evaluate(thresholds []Threshold, snap metrics.Snapshot) []Result {
	if len(thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, evaluateOne(t, snap))
	}
	return results
}

func evaluateOne(t Threshold, snap metrics.Snapshot) Result {
	actual, err := metricValue(t, snap)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compare(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

func metricValue(t Threshold, snap metrics.Snapshot) (float64, error) {
	switch t.Metric {
	case "latency":
		d, err := snap.LatencyAt(t.Aggregate)
		if err != nil {
			return 0, err
		}
		return float64(d) / float64(time.Millisecond), nil
	case "error_rate":
		if t.Aggregate == "rate" {
			return snap.ErrorRate() / 100, nil
		}
		return snap.ErrorRate(), nil
	case "errors":
		return float64(snap.Failures), nil
	case "requests":
		if t.Aggregate == "count" {
			return float64(snap.Total), nil
		}
		return snap.RequestsPerSec, nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func compare(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
