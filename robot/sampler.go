package robot

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"sonarbot/core"
)

// SamplerState is the distance sampler's position in its measurement cycle.
type SamplerState uint32

const (
	StateIdle SamplerState = iota
	StateTriggered
	StateWaitingRisingEdge
	StateWaitingFallingEdge
	StatePublishing
)

// String returns the state name.
func (s SamplerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateTriggered:
		return "TRIGGERED"
	case StateWaitingRisingEdge:
		return "WAITING_RISING_EDGE"
	case StateWaitingFallingEdge:
		return "WAITING_FALLING_EDGE"
	case StatePublishing:
		return "PUBLISHING"
	default:
		return "UNKNOWN"
	}
}

func stateForPhase(p core.PulsePhase) SamplerState {
	switch p {
	case core.PhaseTriggered:
		return StateTriggered
	case core.PhaseWaitRising:
		return StateWaitingRisingEdge
	case core.PhaseWaitFalling:
		return StateWaitingFallingEdge
	default:
		return StateIdle
	}
}

// Sampler measures the echo pulse once per period and publishes it to the
// measurement cell.
type Sampler struct {
	Source core.PulseSource
	Cell   *core.MeasurementCell
	Clock  core.Clock
	Period core.Ticks

	// Optional collaborators.
	GPIO     core.GPIODriver
	TracePin core.GPIOPin
	Tracer   *core.Tracer
	Reporter Reporter
	Logger   *slog.Logger

	state    atomic.Uint32
	failures atomic.Uint32
	samples  atomic.Uint32
}

// State returns the sampler's current state.
func (s *Sampler) State() SamplerState {
	return SamplerState(s.state.Load())
}

// Failures returns how many periods ended without an echo.
func (s *Sampler) Failures() uint32 {
	return s.failures.Load()
}

// Samples returns how many measurements were published.
func (s *Sampler) Samples() uint32 {
	return s.samples.Load()
}

// ObservePhase tracks pulse timer phases as sampler states. It is meant to
// be installed as the PulseTimer's Observer.
func (s *Sampler) ObservePhase(p core.PulsePhase) {
	s.state.Store(uint32(stateForPhase(p)))
}

// Run samples until ctx is done.
func (s *Sampler) Run(ctx context.Context) error {
	if s.Period == 0 {
		return core.ErrInvalidPeriod
	}
	return core.RunPeriodic(ctx, s.Clock, s.Period, s.Step)
}

// Step runs one sampling period scheduled for wake.
func (s *Sampler) Step(ctx context.Context, wake core.Ticks) error {
	now := s.Clock.Now()
	s.Tracer.Record(core.EvtTaskWake, core.TaskSampler, now, uint32(wake), 0)
	if late := int32(now - wake); late > 0 {
		s.Tracer.Record(core.EvtOverrun, core.TaskSampler, now, uint32(late), 0)
	}

	s.trace(true)
	defer s.trace(false)
	defer s.state.Store(uint32(StateIdle))

	s.state.Store(uint32(StateTriggered))
	width, err := s.Source.Measure(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := s.failures.Add(1)
		s.Tracer.Record(core.EvtEchoTimeout, core.TaskSampler, s.Clock.Now(), n, 0)
		if errors.Is(err, core.ErrEchoTimeout) {
			s.logger().Warn("no echo this period", "failures", n)
		} else {
			s.logger().Error("distance measurement failed", "error", err, "failures", n)
		}
		return nil
	}

	s.state.Store(uint32(StatePublishing))
	if err := s.Cell.Store(ctx, width); err != nil {
		return err
	}
	s.samples.Add(1)

	at := s.Clock.Now()
	s.Tracer.Record(core.EvtCellWrite, core.TaskSampler, at, uint32(width), 0)
	s.reporter().Sample(Sample{Tick: at, Distance: width, Failures: s.failures.Load()})
	return nil
}

func (s *Sampler) trace(level bool) {
	if s.GPIO == nil {
		return
	}
	if err := core.SetOptionalPin(s.GPIO, s.TracePin, level); err != nil {
		s.logger().Debug("trace pin write failed", "pin", s.TracePin, "error", err)
	}
}

func (s *Sampler) logger() *slog.Logger {
	if s.Logger == nil {
		return discardLogger
	}
	return s.Logger
}

func (s *Sampler) reporter() Reporter {
	if s.Reporter == nil {
		return NopReporter{}
	}
	return s.Reporter
}
