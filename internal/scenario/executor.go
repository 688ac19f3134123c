package scenario

import (
	"context"
	"errors"
	"time"

	"github.com/stampede-load/stampede/internal/extractor"
	"github.com/stampede-load/stampede/internal/metrics"
	"github.com/stampede-load/stampede/internal/transport"
	"github.com/stampede-load/stampede/internal/variables"
)

// Recorder receives one result per attempted step. *metrics.Collector
// satisfies it.
type Recorder interface {
	Record(res metrics.Result)
}

// SeedSource supplies initial template variables for each virtual-user
// run, e.g. a static map or a data feeder handing out records.
type SeedSource interface {
	Next() map[string]string
}

type staticSeed map[string]string

func (s staticSeed) Next() map[string]string { return s }

// StaticSeed wraps a fixed variable map as a SeedSource. A nil or empty
// map yields no seed values.
func StaticSeed(values map[string]string) SeedSource {
	return staticSeed(values)
}

// Executor runs virtual users through scenarios. One executor is shared by
// the whole run; per-run state lives in the variable store created for
// each execution.
type Executor struct {
	requester transport.Requester
	recorder  Recorder
	seed      SeedSource
}

// NewExecutor builds an executor. seed may be nil.
func NewExecutor(requester transport.Requester, recorder Recorder, seed SeedSource) *Executor {
	return &Executor{requester: requester, recorder: recorder, seed: seed}
}

// RunOnce executes every step of the scenario in order for one virtual
// user, capturing variables between steps and emitting one result per
// attempted step. Cancellation is honored only between steps and during
// think time, never by aborting an in-flight request. Steps skipped by
// cancellation or short-circuit emit nothing. The returned error is
// non-nil only when the run was cut short by ctx; step failures are
// absorbed into results.
func (e *Executor) RunOnce(ctx context.Context, scn *Scenario) error {
	var seed map[string]string
	if e.seed != nil {
		seed = e.seed.Next()
	}
	store := variables.NewStore(seed)
	failed := false

	for i := range scn.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if failed && scn.AbortOnFailure {
			return nil
		}

		step := &scn.Steps[i]
		if !e.runStep(ctx, scn, i, step, store) {
			failed = true
		}

		if step.ThinkTime > 0 && i < len(scn.Steps)-1 {
			if err := sleepCtx(ctx, step.ThinkTime); err != nil {
				return err
			}
		}
	}
	return nil
}

// runStep issues one step and reports its outcome. Returns false when the
// step failed.
func (e *Executor) runStep(ctx context.Context, scn *Scenario, idx int, step *Step, store *variables.Store) bool {
	name := stepName(scn, idx)

	url, err := render(step.URL, store)
	if err == nil {
		var body string
		if body, err = render(step.Body, store); err == nil {
			var headers map[string]string
			if headers, err = renderMap(step.Headers, store); err == nil {
				return e.issue(ctx, scn, name, step, url, body, headers, store)
			}
		}
	}

	// Template failure: the step was attempted, so it still produces a
	// result, classified as a client-side error.
	e.recorder.Record(metrics.Result{
		Scenario:  scn.Name,
		Step:      name,
		Method:    step.Method,
		URL:       step.URL,
		Class:     metrics.ClassClientError,
		Err:       err,
		Timestamp: time.Now(),
	})
	return false
}

func (e *Executor) issue(ctx context.Context, scn *Scenario, name string, step *Step, url, body string, headers map[string]string, store *variables.Store) bool {
	var payload []byte
	if body != "" {
		payload = []byte(body)
	}

	// The request runs detached from retirement and run cancellation: a
	// virtual user told to stop mid-step still finishes the step, and the
	// outcome is recorded. Cancellation is observed at the next step
	// boundary; per-request timeouts are owned by the transport.
	resp, err := e.requester.Do(context.WithoutCancel(ctx), transport.Request{
		Method:  step.Method,
		URL:     url,
		Headers: headers,
		Body:    payload,
	})

	class := transport.Classify(resp.StatusCode, err)

	e.recorder.Record(metrics.Result{
		Scenario:   scn.Name,
		Step:       name,
		Method:     step.Method,
		URL:        url,
		Class:      class,
		StatusCode: resp.StatusCode,
		Latency:    resp.Latency,
		Bytes:      resp.Bytes,
		Err:        err,
		Timestamp:  time.Now(),
	})

	if err == nil {
		// Captures run on any completed response; a 404 body can still
		// carry the value a later step needs.
		for _, rule := range step.Captures {
			if value, capErr := extractor.Extract(resp.Body, rule); capErr == nil {
				store.Set(rule.As, value)
			}
		}
	}

	return !class.Failed()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsMissingCapture reports whether a step failure came from an unresolved
// template variable.
func IsMissingCapture(err error) bool {
	return errors.Is(err, ErrMissingCapture)
}
