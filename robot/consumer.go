package robot

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"sonarbot/core"
)

// DefaultStopThreshold is the distance, in ticks, at or below which the
// robot stops.
const DefaultStopThreshold core.Ticks = 5

// Mode selects where the consumer's motion command comes from.
type Mode uint32

const (
	// ModeAuto drives forward unless an obstacle is close.
	ModeAuto Mode = iota
	// ModeManual follows the last remote command, still stopping for
	// close obstacles.
	ModeManual
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Decide returns Stop if v is at or below threshold and Forward otherwise.
func Decide(v, threshold core.Ticks) Command {
	if v <= threshold {
		return Stop
	}
	return Forward
}

// DecideManual returns the requested command, replaced by Stop when it
// would move the robot toward an obstacle at or below threshold. Back and
// Stop always pass.
func DecideManual(v, threshold core.Ticks, requested Command) Command {
	switch requested {
	case Back, Stop:
		return requested
	case Forward, Left, Right:
		if v <= threshold {
			return Stop
		}
		return requested
	default:
		return Stop
	}
}

// Mover applies motion commands.
type Mover interface {
	Move(Command) error
}

// Consumer reads the measurement cell once per period and drives the
// motors from it.
type Consumer struct {
	Cell      *core.MeasurementCell
	Clock     core.Clock
	Period    core.Ticks
	Threshold core.Ticks
	Drive     Mover

	// Optional collaborators.
	GPIO     core.GPIODriver
	TracePin core.GPIOPin
	Tracer   *core.Tracer
	Reporter Reporter
	Logger   *slog.Logger

	mode      atomic.Uint32
	requested atomic.Uint32
	decisions atomic.Uint32
}

// SetMode switches between automatic and manual driving.
func (c *Consumer) SetMode(m Mode) error {
	if m != ModeAuto && m != ModeManual {
		return fmt.Errorf("invalid mode %d", m)
	}
	c.mode.Store(uint32(m))
	return nil
}

// Mode returns the current driving mode.
func (c *Consumer) Mode() Mode {
	return Mode(c.mode.Load())
}

// Request records the command to follow in manual mode.
func (c *Consumer) Request(cmd Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	c.requested.Store(uint32(cmd))
	return nil
}

// Requested returns the last manual command, Stop if none was sent.
func (c *Consumer) Requested() Command {
	if cmd := Command(c.requested.Load()); cmd != 0 {
		return cmd
	}
	return Stop
}

// Decisions returns how many periods issued a motion command.
func (c *Consumer) Decisions() uint32 {
	return c.decisions.Load()
}

// Decide picks the motion command for distance v in the current mode.
func (c *Consumer) Decide(v core.Ticks) Command {
	if c.Mode() == ModeManual {
		return DecideManual(v, c.Threshold, c.Requested())
	}
	return Decide(v, c.Threshold)
}

// Run drives until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Period == 0 {
		return core.ErrInvalidPeriod
	}
	return core.RunPeriodic(ctx, c.Clock, c.Period, c.Step)
}

// Step runs one consumer period scheduled for wake.
func (c *Consumer) Step(ctx context.Context, wake core.Ticks) error {
	now := c.Clock.Now()
	c.Tracer.Record(core.EvtTaskWake, core.TaskConsumer, now, uint32(wake), 0)

	c.trace(true)
	defer c.trace(false)

	v, err := c.Cell.Load(ctx)
	if err != nil {
		return err
	}
	c.Tracer.Record(core.EvtCellRead, core.TaskConsumer, c.Clock.Now(), uint32(v), 0)

	cmd := c.Decide(v)
	if err := c.Drive.Move(cmd); err != nil {
		c.logger().Error("motor update failed", "command", cmd.String(), "error", err)
	}
	c.decisions.Add(1)

	at := c.Clock.Now()
	c.Tracer.Record(core.EvtDecision, core.TaskConsumer, at, uint32(cmd), uint32(v))
	c.reporter().Decision(Decision{Tick: at, Distance: v, Command: cmd})
	return nil
}

func (c *Consumer) trace(level bool) {
	if c.GPIO == nil {
		return
	}
	if err := core.SetOptionalPin(c.GPIO, c.TracePin, level); err != nil {
		c.logger().Debug("trace pin write failed", "pin", c.TracePin, "error", err)
	}
}

func (c *Consumer) logger() *slog.Logger {
	if c.Logger == nil {
		return discardLogger
	}
	return c.Logger
}

func (c *Consumer) reporter() Reporter {
	if c.Reporter == nil {
		return NopReporter{}
	}
	return c.Reporter
}
