package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepClock moves only when slept on or when the echo line is read, which
// makes busy-poll timing exact.
type stepClock struct {
	now Ticks
}

func (c *stepClock) Now() Ticks { return c.now }

func (c *stepClock) Sleep(ctx context.Context, d Ticks) error {
	c.now += d
	return ctx.Err()
}

func (c *stepClock) SleepUntil(ctx context.Context, deadline Ticks) error {
	if !Due(c.now, deadline) {
		c.now = deadline
	}
	return ctx.Err()
}

func (c *stepClock) TickDuration() time.Duration { return time.Millisecond }

// scriptedRanger answers a trigger with an echo pulse. Each echo read takes
// one tick.
type scriptedRanger struct {
	clk     *stepClock
	trigger GPIOPin
	echo    GPIOPin
	latency Ticks
	width   Ticks

	armed   bool
	rise    Ticks
	levels  map[GPIOPin]bool
	history []bool
}

func newScriptedRanger(clk *stepClock, latency, width Ticks) *scriptedRanger {
	return &scriptedRanger{clk: clk, trigger: 9, echo: 11, latency: latency, width: width, levels: map[GPIOPin]bool{}}
}

func (s *scriptedRanger) ConfigureOutput(pin GPIOPin) error { return nil }

func (s *scriptedRanger) ConfigureInput(pin GPIOPin, pull PullMode) error { return nil }

func (s *scriptedRanger) SetPin(pin GPIOPin, value bool) error {
	if pin == s.trigger {
		s.history = append(s.history, value)
		if s.levels[pin] && !value {
			s.armed = true
			s.rise = s.clk.now + s.latency
		}
	}
	s.levels[pin] = value
	return nil
}

func (s *scriptedRanger) GetPin(pin GPIOPin) (bool, error) { return s.ReadPin(pin), nil }

func (s *scriptedRanger) ReadPin(pin GPIOPin) bool {
	if pin != s.echo {
		return s.levels[pin]
	}
	now := s.clk.now
	s.clk.now++
	return s.armed && s.width > 0 && now >= s.rise && now < s.rise+s.width
}

func TestPulseTimerMeasuresEchoWidth(t *testing.T) {
	clk := &stepClock{}
	ranger := newScriptedRanger(clk, 3, 7)
	var phases []PulsePhase

	p := &PulseTimer{
		GPIO:     ranger,
		Clock:    clk,
		Trigger:  9,
		Echo:     11,
		Timeout:  100,
		Observer: func(ph PulsePhase) { phases = append(phases, ph) },
	}
	require.NoError(t, p.Configure())

	d, err := p.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ticks(7), d)
	assert.Equal(t, []bool{false, true, false}, ranger.history, "trigger reset, pulsed high, then low")
	assert.Equal(t, []PulsePhase{PhaseTriggered, PhaseWaitRising, PhaseWaitFalling}, phases)
}

func TestPulseTimerTriggerWidth(t *testing.T) {
	clk := &stepClock{}
	ranger := newScriptedRanger(clk, 1, 2)
	p := &PulseTimer{GPIO: ranger, Clock: clk, Trigger: 9, Echo: 11, TriggerWidth: 4}

	_, err := p.Measure(context.Background())
	require.NoError(t, err)
	// Trigger fell at tick 4, echo rose one tick later.
	assert.Equal(t, Ticks(5), ranger.rise)
}

func TestPulseTimerTimeout(t *testing.T) {
	clk := &stepClock{}
	ranger := newScriptedRanger(clk, 1, 0) // never answers
	p := &PulseTimer{GPIO: ranger, Clock: clk, Trigger: 9, Echo: 11, Timeout: 20}

	_, err := p.Measure(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEchoTimeout))
	assert.GreaterOrEqual(t, clk.now, Ticks(21))
}

func TestPulseTimerCancelledWhileTriggering(t *testing.T) {
	clk := &stepClock{}
	ranger := newScriptedRanger(clk, 1, 2)
	p := &PulseTimer{GPIO: ranger, Clock: clk, Trigger: 9, Echo: 11}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Measure(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ranger.levels[9], "trigger left low")
}

// edgeDriver reports fixed edge timestamps through EdgeWaiter.
type edgeDriver struct {
	scriptedRanger
	rise, fall Ticks
	waits      int
}

func (e *edgeDriver) WaitForLevel(ctx context.Context, pin GPIOPin, level bool, timeout Ticks) (Ticks, error) {
	e.waits++
	if level {
		return e.rise, nil
	}
	return e.fall, nil
}

func TestPulseTimerUsesEdgeWaiter(t *testing.T) {
	clk := &stepClock{}
	drv := &edgeDriver{scriptedRanger: *newScriptedRanger(clk, 1, 3), rise: 40, fall: 47}
	p := &PulseTimer{GPIO: drv, Clock: clk, Trigger: 9, Echo: 11}

	d, err := p.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ticks(7), d)
	assert.Equal(t, 2, drv.waits)

	// Poll bypasses the edge waiter and times the scripted pulse instead.
	p.Poll = true
	d, err = p.Measure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Ticks(3), d)
	assert.Equal(t, 2, drv.waits)
}
