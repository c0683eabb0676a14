//go:build (rp2040 || rp2350) && !piocapture && !hcsr04driver

package main

import (
	"sonarbot/core"
	"sonarbot/robot"
)

const sourceName = "gpio"

// pulseSource returns nil so the robot times the echo by polling GPIO.
func pulseSource(robot.Config, core.Clock) (core.PulseSource, error) {
	return nil, nil
}
