//go:build (rp2040 || rp2350) && hcsr04driver

package main

import (
	"context"
	"machine"
	"time"

	"tinygo.org/x/drivers/hcsr04"

	"sonarbot/core"
	"sonarbot/robot"
)

const sourceName = "hcsr04"

// hcsr04Source adapts the tinygo HC-SR04 driver, which measures the echo
// in microseconds and reports 0 when nothing answered.
type hcsr04Source struct {
	dev    hcsr04.Device
	tickUS int32
}

func pulseSource(cfg robot.Config, clock core.Clock) (core.PulseSource, error) {
	s := &hcsr04Source{
		dev:    hcsr04.New(machine.Pin(cfg.Pins.Trigger), machine.Pin(cfg.Pins.Echo)),
		tickUS: int32(clock.TickDuration() / time.Microsecond),
	}
	if s.tickUS == 0 {
		s.tickUS = 1
	}
	s.dev.Configure()
	return s, nil
}

func (s *hcsr04Source) Measure(ctx context.Context) (core.Ticks, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	us := s.dev.ReadPulse()
	if us <= 0 {
		return 0, core.ErrEchoTimeout
	}
	return core.Ticks((us + s.tickUS/2) / s.tickUS), nil
}
