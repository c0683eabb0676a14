package core

import (
	"context"
	"sync"
	"time"
)

// SimClock is a virtual tick counter that only moves when Advance or Set is
// called. Sleepers and callbacks wait in the same sorted timer queue the
// firmware scheduler uses, so tests and the host simulator get exact,
// repeatable tick arithmetic.
type SimClock struct {
	mu       sync.Mutex
	now      Ticks
	tick     time.Duration
	queue    timerQueue
	sleepers int
	changed  chan struct{}
	pending  []func(Ticks)
}

// NewSimClock creates a virtual clock at tick 0.
// A non-positive tick selects DefaultTickDuration.
func NewSimClock(tick time.Duration) *SimClock {
	if tick <= 0 {
		tick = DefaultTickDuration
	}
	return &SimClock{tick: tick, changed: make(chan struct{})}
}

// Now returns the current virtual tick.
func (c *SimClock) Now() Ticks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// TickDuration returns the nominal tick length.
func (c *SimClock) TickDuration() time.Duration {
	return c.tick
}

// Sleep blocks until d ticks have been advanced.
func (c *SimClock) Sleep(ctx context.Context, d Ticks) error {
	c.mu.Lock()
	deadline := c.now + d
	c.mu.Unlock()
	return c.SleepUntil(ctx, deadline)
}

// SleepUntil blocks until the clock reaches deadline.
func (c *SimClock) SleepUntil(ctx context.Context, deadline Ticks) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if Due(c.now, deadline) {
		c.mu.Unlock()
		return nil
	}
	wake := make(chan struct{})
	t := &Timer{
		WakeTime: deadline,
		Handler: func(*Timer) uint8 {
			c.sleepers--
			close(wake)
			return SF_DONE
		},
	}
	c.queue.insert(t)
	c.sleepers++
	c.broadcastLocked()
	c.mu.Unlock()

	select {
	case <-wake:
		return nil
	case <-ctx.Done():
		c.mu.Lock()
		if c.queue.remove(t) {
			c.sleepers--
			c.broadcastLocked()
		}
		c.mu.Unlock()
		return ctx.Err()
	}
}

// AfterFunc runs fn once the clock reaches at. Callbacks run on the
// goroutine advancing the clock, after the tick's sleepers are released.
// A callback for a tick that is already due runs on the next tick.
// The returned function cancels the callback and reports whether it was
// still pending.
func (c *SimClock) AfterFunc(at Ticks, fn func(now Ticks)) (cancel func() bool) {
	t := &Timer{
		WakeTime: at,
		Handler: func(*Timer) uint8 {
			c.pending = append(c.pending, fn)
			return SF_DONE
		},
	}
	c.mu.Lock()
	c.queue.insert(t)
	c.mu.Unlock()

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.queue.remove(t)
	}
}

// Every runs fn each period ticks, starting one period from now, until the
// returned cancel function is called. It is the simulator's tick hook.
func (c *SimClock) Every(period Ticks, fn func(now Ticks)) (cancel func() bool) {
	if period == 0 {
		period = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &Timer{WakeTime: c.now + period}
	t.Handler = func(t *Timer) uint8 {
		c.pending = append(c.pending, fn)
		t.WakeTime += period
		return SF_RESCHEDULE
	}
	c.queue.insert(t)

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.queue.remove(t)
	}
}

// Advance moves the clock forward n ticks, one tick at a time, releasing
// sleepers and running callbacks as each tick is reached.
func (c *SimClock) Advance(n Ticks) {
	for i := Ticks(0); i < n; i++ {
		c.mu.Lock()
		c.now++
		c.fireLocked()
	}
}

// Set jumps the clock to tick t, releasing everything due at t in one step.
func (c *SimClock) Set(t Ticks) {
	c.mu.Lock()
	c.now = t
	c.fireLocked()
}

// fireLocked dispatches due timers and runs the collected callbacks after
// releasing the lock, so callbacks may use the clock themselves.
func (c *SimClock) fireLocked() {
	now := c.now
	if c.queue.dispatch(now) > 0 {
		c.broadcastLocked()
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn(now)
	}
}

// Sleepers returns the number of goroutines blocked in Sleep or SleepUntil.
func (c *SimClock) Sleepers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleepers
}

// Pending returns the number of queued sleepers and callbacks.
func (c *SimClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.len()
}

// BlockUntil waits until at least n goroutines are sleeping on the clock.
func (c *SimClock) BlockUntil(ctx context.Context, n int) error {
	for {
		c.mu.Lock()
		if c.sleepers >= n {
			c.mu.Unlock()
			return nil
		}
		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *SimClock) broadcastLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

var _ Clock = (*SimClock)(nil)
