//go:build (rp2040 || rp2350) && piocapture

package main

import (
	"sonarbot/core"
	"sonarbot/robot"
	"sonarbot/targets/pio"
)

const sourceName = "pio"

// pulseSource counts the echo in a PIO state machine.
func pulseSource(cfg robot.Config, clock core.Clock) (core.PulseSource, error) {
	ec, err := pio.NewEchoCapture(clock, cfg.Pins.Trigger, cfg.Pins.Echo)
	if err != nil {
		return nil, err
	}
	ec.Timeout = cfg.EchoTimeout
	if err := ec.Configure(); err != nil {
		return nil, err
	}
	return ec, nil
}
