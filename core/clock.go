package core

import (
	"context"
	"time"
)

// Clock is the scheduler collaborator the tasks run against: a tick counter
// plus relative and absolute delays.
type Clock interface {
	// Now returns the current tick count.
	Now() Ticks

	// Sleep blocks for d ticks (delay-for-duration).
	Sleep(ctx context.Context, d Ticks) error

	// SleepUntil blocks until the tick count reaches deadline
	// (delay-until-absolute). It returns at once if deadline is due.
	SleepUntil(ctx context.Context, deadline Ticks) error

	// TickDuration returns the wall-clock length of one tick.
	TickDuration() time.Duration
}

// SystemClock counts ticks of wall-clock time since it was created.
type SystemClock struct {
	start time.Time
	tick  time.Duration
}

// NewSystemClock creates a clock with the given tick length.
// A non-positive tick selects DefaultTickDuration.
func NewSystemClock(tick time.Duration) *SystemClock {
	if tick <= 0 {
		tick = DefaultTickDuration
	}
	return &SystemClock{start: time.Now(), tick: tick}
}

// Now returns the ticks elapsed since the clock was created.
func (c *SystemClock) Now() Ticks {
	return Ticks(time.Since(c.start) / c.tick)
}

// TickDuration returns the tick length.
func (c *SystemClock) TickDuration() time.Duration {
	return c.tick
}

// Sleep blocks for d ticks or until ctx is done.
func (c *SystemClock) Sleep(ctx context.Context, d Ticks) error {
	return c.SleepUntil(ctx, c.Now()+d)
}

// SleepUntil blocks until the start of tick deadline or until ctx is done.
func (c *SystemClock) SleepUntil(ctx context.Context, deadline Ticks) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	elapsed := time.Since(c.start)
	now := Ticks(elapsed / c.tick)
	if Due(now, deadline) {
		return nil
	}

	// Aim at the instant the deadline tick begins, not now+n ticks, so a
	// wake-up partway into a tick does not shift later deadlines.
	wait := time.Duration(int32(deadline-now))*c.tick - elapsed%c.tick
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Clock = (*SystemClock)(nil)
