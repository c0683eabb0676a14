package robot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"sonarbot/core"
)

// DefaultIndicatorPulseMS is how long the LED stays lit per blink.
const DefaultIndicatorPulseMS = 25

// soundFactor converts round-trip milliseconds to centimetres: sound covers
// 34.3 cm per millisecond and the echo travels the distance twice.
const soundFactor = 17

// blinkFactor scales a distance in centimetres to a blink delay in
// milliseconds.
const blinkFactor = 10

// DistanceCM converts an echo width in ticks to centimetres.
func DistanceCM(t core.Ticks, tickMS uint32) uint32 {
	return uint32(t) * tickMS * soundFactor
}

// BlinkDelayMS returns the pause after a blink for a distance in
// centimetres. Nearer obstacles blink faster.
func BlinkDelayMS(distanceCM uint32) uint32 {
	return distanceCM * blinkFactor
}

// Indicator blinks an LED at a rate that follows the measured distance.
// It has no fixed period: each iteration picks its own delay.
type Indicator struct {
	Cell   *core.MeasurementCell
	Clock  core.Clock
	GPIO   core.GPIODriver
	LED    core.GPIOPin
	TickMS uint32

	// Pulse is how long the LED is lit, in ticks. Zero means one tick.
	Pulse core.Ticks

	// Optional collaborators.
	TracePin core.GPIOPin
	Tracer   *core.Tracer
	Reporter Reporter
	Logger   *slog.Logger

	blinks atomic.Uint32
}

// Blinks returns how many times the LED was pulsed.
func (ind *Indicator) Blinks() uint32 {
	return ind.blinks.Load()
}

// Run blinks until ctx is done.
func (ind *Indicator) Run(ctx context.Context) error {
	return core.RunSelfPaced(ctx, ind.Clock, ind.Step)
}

// Step reads the distance, pulses the LED once and returns the delay, in
// ticks, before the next iteration.
func (ind *Indicator) Step(ctx context.Context) (core.Ticks, error) {
	ind.trace(true)
	defer ind.trace(false)

	t, err := ind.Cell.Load(ctx)
	if err != nil {
		return 0, err
	}
	if t == 0 {
		t = 1
	}
	tickMS := ind.TickMS
	if tickMS == 0 {
		tickMS = core.TickMS
	}
	delayMS := BlinkDelayMS(DistanceCM(t, tickMS))

	if err := ind.GPIO.SetPin(ind.LED, true); err != nil {
		ind.logger().Error("led write failed", "error", err)
	}
	pulse := ind.Pulse
	if pulse == 0 {
		pulse = 1
	}
	sleepErr := ind.Clock.Sleep(ctx, pulse)
	if err := ind.GPIO.SetPin(ind.LED, false); err != nil {
		ind.logger().Error("led write failed", "error", err)
	}
	if sleepErr != nil {
		return 0, sleepErr
	}
	ind.blinks.Add(1)

	at := ind.Clock.Now()
	ind.Tracer.Record(core.EvtBlink, core.TaskIndicator, at, delayMS, uint32(t))
	ind.reporter().Blink(Blink{Tick: at, DelayMS: delayMS})
	return core.TicksFromMS(delayMS, tickMS), nil
}

// Configure sets the LED line as a low output.
func (ind *Indicator) Configure() error {
	if err := ind.GPIO.ConfigureOutput(ind.LED); err != nil {
		return fmt.Errorf("configure led pin %d: %w", ind.LED, err)
	}
	return ind.GPIO.SetPin(ind.LED, false)
}

func (ind *Indicator) trace(level bool) {
	if ind.GPIO == nil {
		return
	}
	if err := core.SetOptionalPin(ind.GPIO, ind.TracePin, level); err != nil {
		ind.logger().Debug("trace pin write failed", "pin", ind.TracePin, "error", err)
	}
}

func (ind *Indicator) logger() *slog.Logger {
	if ind.Logger == nil {
		return discardLogger
	}
	return ind.Logger
}

func (ind *Indicator) reporter() Reporter {
	if ind.Reporter == nil {
		return NopReporter{}
	}
	return ind.Reporter
}
