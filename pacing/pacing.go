// Package pacing provides per-session request pacing and human-like timing
// noise: a token bucket bounding fetch frequency, uniformly random delays,
// and a pointer-humanizing helper used before data extraction.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Sleeper abstracts context-aware sleeping so tests can run without wall time.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper sleeps on a timer, aborting when the context is cancelled.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Controller is a per-session pacer. One token becomes available per
// interval; Acquire blocks until the next token. State is never shared
// across sessions.
type Controller struct {
	interval time.Duration
	sleeper  Sleeper

	mu     sync.Mutex
	nextAt time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewController builds a pacer issuing one token per interval.
func NewController(interval time.Duration) *Controller {
	return &Controller{
		interval: interval,
		sleeper:  realSleeper{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSleeper overrides the sleeper; used by tests.
func (c *Controller) WithSleeper(s Sleeper) *Controller {
	c.sleeper = s
	return c
}

// Acquire blocks until the next token is available or the context ends.
func (c *Controller) Acquire(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	wait := c.nextAt.Sub(now)
	if wait < 0 {
		wait = 0
		c.nextAt = now
	}
	c.nextAt = c.nextAt.Add(c.interval)
	if c.nextAt.Before(now) {
		c.nextAt = now.Add(c.interval)
	}
	c.mu.Unlock()

	return c.sleeper.Sleep(ctx, wait)
}

// RandomDelay sleeps a uniformly random duration in [min, max].
func (c *Controller) RandomDelay(ctx context.Context, min, max time.Duration) error {
	return c.sleeper.Sleep(ctx, c.randomBetween(min, max))
}

func (c *Controller) randomBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return min + time.Duration(c.rng.Int63n(int64(max-min)+1))
}

// PointerMover is the minimal pointer surface a scraping session exposes.
// A browser-backed session moves a real cursor; the HTTP session records
// the gesture for pacing purposes only.
type PointerMover interface {
	Viewport() (width, height int)
	MoveTo(ctx context.Context, x, y int) error
}

// Humanize performs 2-3 randomized pointer movements with short pauses
// between them, reducing the regularity automation detectors key on.
func (c *Controller) Humanize(ctx context.Context, pm PointerMover) error {
	width, height := pm.Viewport()
	if width <= 0 || height <= 0 {
		return nil
	}

	c.rngMu.Lock()
	moves := 2 + c.rng.Intn(2)
	c.rngMu.Unlock()

	for i := 0; i < moves; i++ {
		c.rngMu.Lock()
		x := c.rng.Intn(width)
		y := c.rng.Intn(height)
		c.rngMu.Unlock()

		if err := pm.MoveTo(ctx, x, y); err != nil {
			return err
		}
		if err := c.RandomDelay(ctx, 50*time.Millisecond, 150*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}
