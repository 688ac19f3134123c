package scenario

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Selector picks scenarios by weighted random choice. Weights need not sum
// to any particular total; selection is proportional.
type Selector struct {
	scenarios []*Scenario
	cum       []float64
	total     float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector builds a selector over the active scenario set. At least one
// scenario must carry positive weight.
func NewSelector(scenarios []*Scenario) (*Selector, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("at least one scenario is required")
	}

	cum := make([]float64, len(scenarios))
	total := 0.0
	for i, s := range scenarios {
		if s.Weight < 0 {
			return nil, fmt.Errorf("scenario %q: weight must be non-negative", s.Name)
		}
		total += s.Weight
		cum[i] = total
	}
	if total <= 0 {
		return nil, fmt.Errorf("total scenario weight must be positive")
	}

	return &Selector{
		scenarios: scenarios,
		cum:       cum,
		total:     total,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Pick draws one scenario via cumulative-weight search.
func (s *Selector) Pick() *Scenario {
	s.mu.Lock()
	r := s.rng.Float64() * s.total
	s.mu.Unlock()

	idx := sort.SearchFloat64s(s.cum, r)
	if idx >= len(s.scenarios) {
		idx = len(s.scenarios) - 1
	}
	// SearchFloat64s lands on the first cum >= r; zero-weight scenarios
	// share a cum value with their predecessor and must be skipped.
	for idx < len(s.scenarios)-1 && s.scenarios[idx].Weight == 0 {
		idx++
	}
	return s.scenarios[idx]
}
