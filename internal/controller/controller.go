// Package controller reconciles the live virtual-user population against
// the load pattern's time-varying target.
package controller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stampede-load/stampede/internal/pattern"
	"github.com/stampede-load/stampede/internal/scenario"
)

// reconcileInterval is how often the control loop compares the live
// population with the pattern target.
const reconcileInterval = 100 * time.Millisecond

// vu is one live virtual user: a goroutine looping over scenario
// executions until its context is cancelled.
type vu struct {
	id     string
	cancel context.CancelFunc
}

// Runner executes one full scenario pass for one virtual user.
// *scenario.Executor satisfies it.
type Runner interface {
	RunOnce(ctx context.Context, scn *scenario.Scenario) error
}

// Controller spawns and retires virtual users so the live population
/// tracks the pattern. Retirement is cooperative: a retired virtual user
// finishes its current step before exiting.
type Controller struct {
	pattern  pattern.Pattern
	selector *scenario.Selector
	executor Runner
	interval time.Duration

	mu   sync.Mutex
	vus  []*vu
	wg   sync.WaitGroup
	live atomic.Int64
	peak atomic.Int64
}

// Config wires a controller. Interval defaults to 100ms when zero.
type Config struct {
	Pattern  pattern.Pattern
	Selector *scenario.Selector
	Executor Runner
	Interval time.Duration
}

func New(cfg Config) (*Controller, error) {
	if cfg.Pattern == nil {
		return nil, fmt.Errorf("a load pattern is required")
	}
	if cfg.Selector == nil {
		return nil, fmt.Errorf("a scenario selector is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("a scenario executor is required")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = reconcileInterval
	}
	return &Controller{
		pattern:  cfg.Pattern,
		selector: cfg.Selector,
		executor: cfg.Executor,
		interval: interval,
	}, nil
}

// Live returns the number of currently running virtual users.
func (c *Controller) Live() int {
	return int(c.live.Load())
}

// Peak returns the highest live population observed during the run.
func (c *Controller) Peak() int {
	return int(c.peak.Load())
}

// Run drives the reconciliation loop until the pattern's total duration
// elapses or ctx is cancelled, then drains in-flight virtual users. The
// returned error is ctx.Err() when cancelled, nil on natural completion.
func (c *Controller) Run(ctx context.Context) error {
	start := time.Now()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Reconcile immediately so t=0 traffic starts without waiting a tick.
	c.reconcile(ctx, 0)

	for {
		select {
		case <-ctx.Done():
			c.retireAll()
			c.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			target, ok := c.pattern.TargetAt(time.Since(start))
			if !ok {
				c.retireAll()
				c.wg.Wait()
				return nil
			}
			c.resize(ctx, target)
		}
	}
}

func (c *Controller) reconcile(ctx context.Context, elapsed time.Duration) {
	if target, ok := c.pattern.TargetAt(elapsed); ok {
		c.resize(ctx, target)
	}
}

// resize adjusts the population toward target. Spawns take effect
// immediately; retirements land at the retired user's next step boundary.
func (c *Controller) resize(ctx context.Context, target int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.vus) < target {
		c.spawnLocked(ctx)
	}
	for len(c.vus) > target {
		last := c.vus[len(c.vus)-1]
		c.vus = c.vus[:len(c.vus)-1]
		last.cancel()
	}
}

func (c *Controller) spawnLocked(ctx context.Context) {
	vuCtx, cancel := context.WithCancel(ctx)
	u := &vu{id: uuid.NewString(), cancel: cancel}
	c.vus = append(c.vus, u)

	c.wg.Add(1)
	live := c.live.Add(1)
	for {
		peak := c.peak.Load()
		if live <= peak || c.peak.CompareAndSwap(peak, live) {
			break
		}
	}

	go c.runVU(vuCtx)
}

// runVU executes scenarios back to back until cancelled. Each iteration is
// a fresh virtual-user run with its own capture namespace.
func (c *Controller) runVU(ctx context.Context) {
	defer c.wg.Done()
	defer c.live.Add(-1)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		scn := c.selector.Pick()
		if err := c.executor.RunOnce(ctx, scn); err != nil {
			// Cancelled mid-scenario; the current step already finished.
			return
		}
	}
}

func (c *Controller) retireAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range c.vus {
		u.cancel()
	}
	c.vus = nil
}
