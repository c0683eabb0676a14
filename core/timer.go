package core

import "time"

// Ticks is the scheduler's time unit. Every period and duration in the
// controller is expressed in ticks.
type Ticks uint32

// TickMS is the default tick length in milliseconds.
const TickMS = 1

// DefaultTickDuration is the default length of one tick.
const DefaultTickDuration = TickMS * time.Millisecond

// Due reports whether deadline has been reached at now.
// The comparison is wraparound safe.
func Due(now, deadline Ticks) bool {
	return int32(now-deadline) >= 0
}

// TicksFromDuration converts d to ticks of the given length, rounding up so
// that a non-zero duration never becomes a zero delay.
func TicksFromDuration(d, tick time.Duration) Ticks {
	if d <= 0 || tick <= 0 {
		return 0
	}
	return Ticks((d + tick - 1) / tick)
}

// TicksToDuration converts n ticks of the given length to a duration.
func TicksToDuration(n Ticks, tick time.Duration) time.Duration {
	return time.Duration(n) * tick
}

// TicksFromMS converts milliseconds to ticks of tickMS milliseconds each.
func TicksFromMS(ms, tickMS uint32) Ticks {
	if tickMS == 0 {
		return Ticks(ms)
	}
	return Ticks((ms + tickMS - 1) / tickMS)
}

// TickLengthMS returns the length of one tick in whole milliseconds,
// never less than one.
func TickLengthMS(tick time.Duration) uint32 {
	ms := uint32(tick / time.Millisecond)
	if ms == 0 {
		return 1
	}
	return ms
}
