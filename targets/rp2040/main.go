//go:build rp2040 || rp2350

package main

import (
	"context"
	"machine"
	"time"

	"sonarbot/core"
	"sonarbot/robot"
)

// ledBlink blinks the onboard LED a number of times for diagnostics
func ledBlink(count int) {
	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for i := 0; i < count; i++ {
		led.High()
		time.Sleep(150 * time.Millisecond)
		led.Low()
		time.Sleep(150 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)
}

func main() {
	// Disable watchdog on boot to clear any previous state
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitUSB()
	port := &usbPort{}
	core.SetDebugWriter(func(s string) { _, _ = port.Write([]byte(s + "\r\n")) })

	cfg := robot.DefaultConfig()
	clock := NewHardwareClock(cfg.Tick)
	gpio := NewRPGPIODriver()

	source, err := pulseSource(cfg, clock)
	if err != nil {
		fail(err, 2)
	}

	p := cfg.Pins
	hw := robot.Hardware{
		GPIO:   gpio,
		Clock:  clock,
		Source: source,
		Left:   newMotor(p.LeftEnable, p.LeftPositive, p.LeftNegative),
		Right:  newMotor(p.RightEnable, p.RightPositive, p.RightNegative),
	}
	bot, err := robot.New(cfg, hw, robot.WithLink(port, port), robot.WithTracer(&core.Tracer{}))
	if err != nil {
		fail(err, 3)
	}

	// 1 blink = configured, tasks starting
	ledBlink(1)
	core.DebugPrintln("sonarbot running, pulse source " + sourceName)

	if err := bot.Run(context.Background()); err != nil {
		fail(err, 4)
	}
}

// fail reports err on the debug writer and blinks code forever.
func fail(err error, code int) {
	core.SetDebugEnabled(true)
	for {
		core.DebugPrintln("fatal: " + err.Error())
		ledBlink(code)
	}
}
