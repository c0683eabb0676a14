//go:build rp2040 || rp2350

package main

import (
	"context"
	"runtime/volatile"
	"time"
	"unsafe"

	"sonarbot/core"
)

// RP2040/RP2350 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x08 // Raw timer high word
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// GetHardwareUptime reads the full 64-bit microsecond timer
func GetHardwareUptime() uint64 {
	// Must read high first, then low, then high again to detect rollover
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

// HardwareClock counts scheduler ticks from the 1 MHz hardware timer.
type HardwareClock struct {
	tickUS uint64
	tick   time.Duration
}

// NewHardwareClock creates a clock with the given tick length.
func NewHardwareClock(tick time.Duration) *HardwareClock {
	if tick < time.Microsecond {
		tick = core.DefaultTickDuration
	}
	return &HardwareClock{tickUS: uint64(tick / time.Microsecond), tick: tick}
}

// Now returns the tick count.
func (c *HardwareClock) Now() core.Ticks {
	return core.Ticks(GetHardwareUptime() / c.tickUS)
}

// TickDuration returns the tick length.
func (c *HardwareClock) TickDuration() time.Duration {
	return c.tick
}

// Sleep blocks for d ticks.
func (c *HardwareClock) Sleep(ctx context.Context, d core.Ticks) error {
	return c.SleepUntil(ctx, c.Now()+d)
}

// SleepUntil blocks until the start of tick deadline, handing the CPU to
// other goroutines while it waits.
func (c *HardwareClock) SleepUntil(ctx context.Context, deadline core.Ticks) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		now := GetHardwareUptime()
		ticks := core.Ticks(now / c.tickUS)
		if core.Due(ticks, deadline) {
			return nil
		}
		left := uint64(int32(deadline-ticks))*c.tickUS - now%c.tickUS
		time.Sleep(time.Duration(left) * time.Microsecond)
	}
}

var _ core.Clock = (*HardwareClock)(nil)
