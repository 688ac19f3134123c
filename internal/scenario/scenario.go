// Package scenario defines weighted multi-step user journeys and the
// executor that runs one virtual user through them.
package scenario

import (
	"fmt"
	"time"

	"github.com/stampede-load/stampede/internal/extractor"
)

// Step is one request within a scenario. URL, Body, and Headers may
// reference variables captured by earlier steps as {{name}} placeholders.
type Step struct {
	Name     string
	Method   string
	URL      string
	Headers  map[string]string
	Body     string
	Captures []extractor.Rule

	// ThinkTime is an optional pause after this step completes.
	ThinkTime time.Duration
}

// Scenario is a named, weighted, ordered sequence of steps. Scenarios are
// immutable for the lifetime of a run.
type Scenario struct {
	Name   string
	Weight float64
	Steps  []Step

	// AbortOnFailure short-circuits the remaining steps after the first
	// failed one. Skipped steps produce no results.
	AbortOnFailure bool
}

// Validate checks the invariants the executor relies on.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Weight < 0 {
		return fmt.Errorf("scenario %q: weight must be non-negative, got %v", s.Name, s.Weight)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q: at least one step is required", s.Name)
	}
	for i, step := range s.Steps {
		if step.Method == "" {
			return fmt.Errorf("scenario %q step %d: method is required", s.Name, i)
		}
		if step.URL == "" {
			return fmt.Errorf("scenario %q step %d: url is required", s.Name, i)
		}
		for _, rule := range step.Captures {
			if rule.As == "" {
				return fmt.Errorf("scenario %q step %d: capture variable name is required", s.Name, i)
			}
			if rule.JSONPath == "" && rule.Regex == "" {
				return fmt.Errorf("scenario %q step %d: capture %q needs a json path or regex", s.Name, i, rule.As)
			}
		}
	}
	return nil
}

// stepName returns a stable label for result reporting.
func stepName(s *Scenario, i int) string {
	if s.Steps[i].Name != "" {
		return s.Steps[i].Name
	}
	return fmt.Sprintf("step-%d", i+1)
}
