// Package pattern maps elapsed run time to a target virtual-user population.
//
// A Pattern is immutable once constructed and evaluation is a pure function
// of elapsed time: the same elapsed value always yields the same target.
// Validation happens at construction, never at evaluation time.
package pattern

import (
	"fmt"
	"math"
	"time"
)

// ErrInvalidPattern is wrapped by all constructor validation failures.
var ErrInvalidPattern = fmt.Errorf("invalid load pattern")

// Type identifies the load pattern variant.
type Type string

const (
	TypeConstant    Type = "constant"
	TypeRamp        Type = "ramp"
	TypeSpike       Type = "spike"
	TypeStep        Type = "step"
	TypeExponential Type = "exponential"
)

// Pattern produces the target virtual-user population for a point in time.
type Pattern interface {
	// Type returns the pattern variant.
	Type() Type

	// TargetAt returns the target population at the given elapsed time.
	// ok is false once elapsed exceeds TotalDuration, signalling run
	// completion to the controller. Negative elapsed is clamped to 0;
	// negative inputs are rejected at construction, not here.
	TargetAt(elapsed time.Duration) (target int, ok bool)

	// TotalDuration returns the total run length of the pattern.
	TotalDuration() time.Duration

	// MaxPopulation returns the largest target the pattern can produce.
	MaxPopulation() int
}

// Constant holds a fixed population for the whole duration.
type Constant struct {
	population int
	duration   time.Duration
}

func NewConstant(population int, duration time.Duration) (*Constant, error) {
	if population < 0 {
		return nil, fmt.Errorf("%w: constant population must be >= 0, got %d", ErrInvalidPattern, population)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: constant duration must be > 0, got %s", ErrInvalidPattern, duration)
	}
	return &Constant{population: population, duration: duration}, nil
}

func (c *Constant) Type() Type                   { return TypeConstant }
func (c *Constant) TotalDuration() time.Duration { return c.duration }
func (c *Constant) MaxPopulation() int           { return c.population }

func (c *Constant) TargetAt(elapsed time.Duration) (int, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > c.duration {
		return 0, false
	}
	return c.population, true
}

// Ramp interpolates linearly from start to end population over the ramp
// window, then holds at end for the sustain window. Ramp-down is a ramp
// with reversed bounds.
type Ramp struct {
	start   int
	end     int
	rampUp  time.Duration
	sustain time.Duration
}

func NewRamp(start, end int, rampUp, sustain time.Duration) (*Ramp, error) {
	if start < 0 || end < 0 {
		return nil, fmt.Errorf("%w: ramp populations must be >= 0, got start=%d end=%d", ErrInvalidPattern, start, end)
	}
	if rampUp <= 0 {
		return nil, fmt.Errorf("%w: ramp duration must be > 0, got %s", ErrInvalidPattern, rampUp)
	}
	if sustain < 0 {
		return nil, fmt.Errorf("%w: sustain duration must be >= 0, got %s", ErrInvalidPattern, sustain)
	}
	return &Ramp{start: start, end: end, rampUp: rampUp, sustain: sustain}, nil
}

func (r *Ramp) Type() Type                   { return TypeRamp }
func (r *Ramp) TotalDuration() time.Duration { return r.rampUp + r.sustain }

func (r *Ramp) MaxPopulation() int {
	if r.start > r.end {
		return r.start
	}
	return r.end
}

func (r *Ramp) TargetAt(elapsed time.Duration) (int, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > r.TotalDuration() {
		return 0, false
	}
	if elapsed >= r.rampUp {
		return r.end, true
	}
	progress := float64(elapsed) / float64(r.rampUp)
	target := float64(r.start) + (float64(r.end)-float64(r.start))*progress
	return int(math.Round(target)), true
}

// Spike holds a base population, except inside the spike window where it
// jumps to the spike population.
type Spike struct {
	base       int
	spike      int
	spikeStart time.Duration
	spikeLen   time.Duration
	duration   time.Duration
}

func NewSpike(base, spike int, spikeStart, spikeLen, duration time.Duration) (*Spike, error) {
	if base < 0 || spike < 0 {
		return nil, fmt.Errorf("%w: spike populations must be >= 0, got base=%d spike=%d", ErrInvalidPattern, base, spike)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: spike total duration must be > 0, got %s", ErrInvalidPattern, duration)
	}
	if spikeStart < 0 || spikeLen < 0 {
		return nil, fmt.Errorf("%w: spike window must be >= 0, got start=%s length=%s", ErrInvalidPattern, spikeStart, spikeLen)
	}
	if spikeStart+spikeLen > duration {
		return nil, fmt.Errorf("%w: spike window %s+%s exceeds total duration %s", ErrInvalidPattern, spikeStart, spikeLen, duration)
	}
	return &Spike{base: base, spike: spike, spikeStart: spikeStart, spikeLen: spikeLen, duration: duration}, nil
}

func (s *Spike) Type() Type                   { return TypeSpike }
func (s *Spike) TotalDuration() time.Duration { return s.duration }

func (s *Spike) MaxPopulation() int {
	if s.spike > s.base {
		return s.spike
	}
	return s.base
}

func (s *Spike) TargetAt(elapsed time.Duration) (int, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.duration {
		return 0, false
	}
	if elapsed >= s.spikeStart && elapsed < s.spikeStart+s.spikeLen {
		return s.spike, true
	}
	return s.base, true
}

// Step raises the population by a fixed size every step interval, capped
// at max. Used for breaking-point searches.
type Step struct {
	initial  int
	stepSize int
	stepLen  time.Duration
	max      int
	duration time.Duration
}

func NewStep(initial, stepSize int, stepLen time.Duration, max int, duration time.Duration) (*Step, error) {
	if initial < 0 {
		return nil, fmt.Errorf("%w: step initial population must be >= 0, got %d", ErrInvalidPattern, initial)
	}
	if stepSize <= 0 {
		return nil, fmt.Errorf("%w: step size must be > 0, got %d", ErrInvalidPattern, stepSize)
	}
	if stepLen <= 0 {
		return nil, fmt.Errorf("%w: step interval must be > 0, got %s", ErrInvalidPattern, stepLen)
	}
	if max < initial {
		return nil, fmt.Errorf("%w: step max %d is below initial population %d", ErrInvalidPattern, max, initial)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: step total duration must be > 0, got %s", ErrInvalidPattern, duration)
	}
	return &Step{initial: initial, stepSize: stepSize, stepLen: stepLen, max: max, duration: duration}, nil
}

func (s *Step) Type() Type                   { return TypeStep }
func (s *Step) TotalDuration() time.Duration { return s.duration }
func (s *Step) MaxPopulation() int           { return s.max }

func (s *Step) TargetAt(elapsed time.Duration) (int, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > s.duration {
		return 0, false
	}
	steps := int(elapsed / s.stepLen)
	target := s.initial + steps*s.stepSize
	if target > s.max {
		target = s.max
	}
	return target, true
}

// Exponential grows the population as start × rate^(t/unit), capped at max.
// The growth rate must be greater than 1.
type Exponential struct {
	start    int
	rate     float64
	unit     time.Duration
	max      int
	duration time.Duration
}

func NewExponential(start int, rate float64, unit time.Duration, max int, duration time.Duration) (*Exponential, error) {
	if start < 1 {
		return nil, fmt.Errorf("%w: exponential start population must be >= 1, got %d", ErrInvalidPattern, start)
	}
	if rate <= 1 {
		return nil, fmt.Errorf("%w: exponential growth rate must be > 1, got %g", ErrInvalidPattern, rate)
	}
	if unit <= 0 {
		return nil, fmt.Errorf("%w: exponential unit time must be > 0, got %s", ErrInvalidPattern, unit)
	}
	if max < start {
		return nil, fmt.Errorf("%w: exponential max %d is below start population %d", ErrInvalidPattern, max, start)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: exponential total duration must be > 0, got %s", ErrInvalidPattern, duration)
	}
	return &Exponential{start: start, rate: rate, unit: unit, max: max, duration: duration}, nil
}

func (e *Exponential) Type() Type                   { return TypeExponential }
func (e *Exponential) TotalDuration() time.Duration { return e.duration }
func (e *Exponential) MaxPopulation() int           { return e.max }

func (e *Exponential) TargetAt(elapsed time.Duration) (int, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > e.duration {
		return 0, false
	}
	exponent := float64(elapsed) / float64(e.unit)
	target := float64(e.start) * math.Pow(e.rate, exponent)
	if target >= float64(e.max) || math.IsInf(target, 1) {
		return e.max, true
	}
	return int(math.Floor(target)), true
}
