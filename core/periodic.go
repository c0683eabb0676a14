package core

import (
	"context"
	"errors"
)

// ErrInvalidPeriod is returned for a zero task period.
var ErrInvalidPeriod = errors.New("task period must be at least one tick")

// DelayUntil blocks until lastWake+period and advances lastWake to it, so a
// task calling it once per iteration wakes on the grid t0, t0+P, t0+2P, ...
// however long its body ran.
//
// If the body overran and the next wake is already due, DelayUntil returns
// at once and moves lastWake to the latest grid point at or before now: the
// late iteration runs immediately and the task is back on the grid after
// it, without a burst of catch-up iterations.
func DelayUntil(ctx context.Context, clk Clock, lastWake *Ticks, period Ticks) error {
	if period == 0 {
		return ErrInvalidPeriod
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	next := *lastWake + period
	now := clk.Now()
	if Due(now, next) {
		missed := (now - next) / period
		*lastWake = next + missed*period
		return nil
	}

	*lastWake = next
	return clk.SleepUntil(ctx, next)
}

// PeriodicBody is one iteration of a periodic task. wake is the grid tick
// the iteration was scheduled for.
type PeriodicBody func(ctx context.Context, wake Ticks) error

// RunPeriodic runs body at t0, t0+period, t0+2*period, ... where t0 is the
// clock at entry. It returns when ctx is done or body fails.
func RunPeriodic(ctx context.Context, clk Clock, period Ticks, body PeriodicBody) error {
	if period == 0 {
		return ErrInvalidPeriod
	}
	lastWake := clk.Now()
	for {
		if err := body(ctx, lastWake); err != nil {
			return err
		}
		if err := DelayUntil(ctx, clk, &lastWake, period); err != nil {
			return err
		}
	}
}

// SelfPacedBody is one iteration of a task that chooses its own delay
// before the next iteration.
type SelfPacedBody func(ctx context.Context) (Ticks, error)

// RunSelfPaced runs body, sleeps for the delay it returned, and repeats
// until ctx is done or body fails.
func RunSelfPaced(ctx context.Context, clk Clock, body SelfPacedBody) error {
	for {
		delay, err := body(ctx)
		if err != nil {
			return err
		}
		if err := clk.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}
