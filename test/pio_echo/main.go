//go:build rp2040 || rp2350

package main

// PIO Echo Capture Test - prints echo widths at several tick lengths
// Hold a target in front of the ranger and compare the distances.

import (
	"context"
	"machine"
	"time"

	"sonarbot/core"
	"sonarbot/robot"
	"sonarbot/targets/pio"
)

const (
	triggerPin = core.GPIOPin(9)
	echoPin    = core.GPIOPin(11)
)

// Tick lengths to cycle through
var tickTests = []time.Duration{
	10 * time.Microsecond,
	100 * time.Microsecond,
	time.Millisecond,
}

func main() {
	time.Sleep(3 * time.Second)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	// Flash LED to indicate start
	for i := 0; i < 3; i++ {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}

	println("=== PIO Echo Capture Test ===")
	println("Trigger: GP9, Echo: GP11")

	clock := core.NewSystemClock(tickTests[0])
	capture, err := pio.NewEchoCapture(clock, triggerPin, echoPin)
	if err == nil {
		err = capture.Configure()
	}
	if err != nil {
		println("Init error:", err.Error())
		for {
			led.High()
			time.Sleep(100 * time.Millisecond)
			led.Low()
			time.Sleep(100 * time.Millisecond)
		}
	}
	println("Init OK!")

	ctx := context.Background()
	for cycle := 1; ; cycle++ {
		println("\n=== Cycle", cycle, "===")
		for _, tick := range tickTests {
			*clock = *core.NewSystemClock(tick)
			capture.Timeout = core.TicksFromDuration(40*time.Millisecond, tick)
			println("Tick:", tick.String())

			for i := 0; i < 5; i++ {
				led.High()
				width, err := capture.Measure(ctx)
				led.Low()
				if err != nil {
					println("  error:", err.Error())
				} else {
					us := core.TicksToDuration(width, tick).Microseconds()
					println("  ticks:", uint32(width), "us:", us, "cm:", us/58,
						"blink ms:", robot.BlinkDelayMS(uint32(us/58)))
				}
				time.Sleep(200 * time.Millisecond)
			}
		}
		time.Sleep(time.Second)
	}
}
