package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrEchoTimeout is returned when the echo line does not change within the
// configured timeout.
var ErrEchoTimeout = errors.New("echo line did not change before timeout")

// PulsePhase identifies a step of one pulse measurement.
type PulsePhase uint8

const (
	PhaseTriggered PulsePhase = iota + 1
	PhaseWaitRising
	PhaseWaitFalling
)

// String returns the phase name.
func (p PulsePhase) String() string {
	switch p {
	case PhaseTriggered:
		return "TRIGGERED"
	case PhaseWaitRising:
		return "WAITING_RISING_EDGE"
	case PhaseWaitFalling:
		return "WAITING_FALLING_EDGE"
	default:
		return "UNKNOWN"
	}
}

// PulseSource produces one echo pulse measurement in ticks per call.
type PulseSource interface {
	Measure(ctx context.Context) (Ticks, error)
}

// PulseTimer triggers an ultrasonic ranger and times the echo pulse.
//
// With a driver implementing EdgeWaiter the timer blocks on edges and uses
// the driver's edge timestamps. Otherwise it polls the echo line, which is a
// busy wait: Timeout bounds each wait, and a zero Timeout waits forever.
type PulseTimer struct {
	GPIO  GPIODriver
	Clock Clock

	Trigger GPIOPin
	Echo    GPIOPin

	// TriggerWidth is how long the trigger line is held high. Zero means one tick.
	TriggerWidth Ticks

	// Timeout bounds each edge wait in ticks. Zero disables the bound.
	Timeout Ticks

	// Poll forces busy polling even when the driver supports edge waits.
	Poll bool

	// Observer, if set, is told about each phase as it starts.
	Observer func(PulsePhase)
}

// Configure sets the trigger line as a low output and the echo line as a
// floating input.
func (p *PulseTimer) Configure() error {
	if err := p.GPIO.ConfigureOutput(p.Trigger); err != nil {
		return fmt.Errorf("configure trigger pin %d: %w", p.Trigger, err)
	}
	if err := p.GPIO.SetPin(p.Trigger, false); err != nil {
		return fmt.Errorf("reset trigger pin %d: %w", p.Trigger, err)
	}
	if err := p.GPIO.ConfigureInput(p.Echo, PullNone); err != nil {
		return fmt.Errorf("configure echo pin %d: %w", p.Echo, err)
	}
	return nil
}

// Measure fires one trigger pulse and returns the ticks between the echo
// line's rising and falling edges.
func (p *PulseTimer) Measure(ctx context.Context) (Ticks, error) {
	p.observe(PhaseTriggered)
	if err := p.GPIO.SetPin(p.Trigger, true); err != nil {
		return 0, fmt.Errorf("raise trigger: %w", err)
	}
	width := p.TriggerWidth
	if width == 0 {
		width = 1
	}
	if err := p.Clock.Sleep(ctx, width); err != nil {
		_ = p.GPIO.SetPin(p.Trigger, false)
		return 0, err
	}
	if err := p.GPIO.SetPin(p.Trigger, false); err != nil {
		return 0, fmt.Errorf("lower trigger: %w", err)
	}

	p.observe(PhaseWaitRising)
	rise, err := p.waitLevel(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("waiting for rising edge: %w", err)
	}

	p.observe(PhaseWaitFalling)
	fall, err := p.waitLevel(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("waiting for falling edge: %w", err)
	}

	return fall - rise, nil
}

func (p *PulseTimer) waitLevel(ctx context.Context, level bool) (Ticks, error) {
	if w, ok := p.GPIO.(EdgeWaiter); ok && !p.Poll {
		return w.WaitForLevel(ctx, p.Echo, level, p.Timeout)
	}

	start := p.Clock.Now()
	for polls := uint32(0); p.GPIO.ReadPin(p.Echo) != level; polls++ {
		if p.Timeout != 0 && Due(p.Clock.Now(), start+p.Timeout) {
			return 0, ErrEchoTimeout
		}
		if polls&0xFF == 0xFF {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		spinPause()
	}
	return p.Clock.Now(), nil
}

func (p *PulseTimer) observe(phase PulsePhase) {
	if p.Observer != nil {
		p.Observer(phase)
	}
}

var _ PulseSource = (*PulseTimer)(nil)
