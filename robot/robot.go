// Package robot wires the controller's three tasks together: a distance
// sampler publishing to a guarded measurement cell, a consumer steering the
// motors from it, and an LED indicator blinking at a distance dependent
// rate.
package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"sonarbot/core"
)

var (
	ErrPinConflict   = errors.New("pin assigned more than once")
	ErrInvalidConfig = errors.New("invalid robot configuration")
)

// Pins is the robot's GPIO wiring.
type Pins struct {
	Trigger core.GPIOPin
	Echo    core.GPIOPin
	LED     core.GPIOPin

	// Trace pins are raised while a task body runs. NoPin disables one.
	SamplerTrace   core.GPIOPin
	ConsumerTrace  core.GPIOPin
	IndicatorTrace core.GPIOPin

	LeftEnable    core.GPIOPin
	LeftPositive  core.GPIOPin
	LeftNegative  core.GPIOPin
	RightEnable   core.GPIOPin
	RightPositive core.GPIOPin
	RightNegative core.GPIOPin
}

// DefaultPins returns the lab wiring on a Raspberry Pi 4 (BCM numbers).
func DefaultPins() Pins {
	return Pins{
		Trigger:        9,
		Echo:           11,
		LED:            2,
		SamplerTrace:   16,
		ConsumerTrace:  5,
		IndicatorTrace: 0,
		LeftEnable:     20,
		LeftPositive:   6,
		LeftNegative:   13,
		RightEnable:    21,
		RightPositive:  19,
		RightNegative:  26,
	}
}

type namedPin struct {
	name string
	pin  core.GPIOPin
}

func (p Pins) named() []namedPin {
	return []namedPin{
		{"trigger", p.Trigger},
		{"echo", p.Echo},
		{"led", p.LED},
		{"sampler_trace", p.SamplerTrace},
		{"consumer_trace", p.ConsumerTrace},
		{"indicator_trace", p.IndicatorTrace},
		{"left_enable", p.LeftEnable},
		{"left_positive", p.LeftPositive},
		{"left_negative", p.LeftNegative},
		{"right_enable", p.RightEnable},
		{"right_positive", p.RightPositive},
		{"right_negative", p.RightNegative},
	}
}

// Validate checks that no line is assigned twice and that the required
// lines are present. Optional trace pins may be NoPin.
func (p Pins) Validate() error {
	seen := make(map[core.GPIOPin]string)
	for _, np := range p.named() {
		if np.pin == core.NoPin {
			switch np.name {
			case "sampler_trace", "consumer_trace", "indicator_trace":
				continue
			}
			return fmt.Errorf("%w: %s pin is required", ErrInvalidConfig, np.name)
		}
		if other, ok := seen[np.pin]; ok {
			return fmt.Errorf("%w: pin %d used for %s and %s", ErrPinConflict, np.pin, other, np.name)
		}
		seen[np.pin] = np.name
	}
	return nil
}

// TaskSpec describes one task. Priority is the relative priority the
// tasks were designed with (higher runs first); goroutines are not
// prioritised, so it is informational.
type TaskSpec struct {
	Name     string
	ID       uint8
	Priority int
	Period   core.Ticks // zero for self-paced tasks
	Enabled  bool
}

// Config holds the controller's settings, with periods and durations in
// ticks of Tick length.
type Config struct {
	Pins Pins
	Tick time.Duration

	SamplerPeriod  core.Ticks
	ConsumerPeriod core.Ticks
	StopThreshold  core.Ticks
	TriggerWidth   core.Ticks
	EchoTimeout    core.Ticks // zero waits forever
	IndicatorPulse core.Ticks

	// PollEcho forces busy polling of the echo line.
	PollEcho bool
	// SwapMotors exchanges the left and right motor channels.
	SwapMotors bool

	EnableSampler   bool
	EnableConsumer  bool
	EnableIndicator bool
}

// DefaultConfig returns the lab settings: 1 ms ticks, sampling every
// 50 ms, steering every 100 ms, stopping at 5 ticks of echo.
func DefaultConfig() Config {
	return Config{
		Pins:            DefaultPins(),
		Tick:            core.DefaultTickDuration,
		SamplerPeriod:   50,
		ConsumerPeriod:  100,
		StopThreshold:   DefaultStopThreshold,
		TriggerWidth:    1,
		EchoTimeout:     60,
		IndicatorPulse:  DefaultIndicatorPulseMS,
		EnableSampler:   true,
		EnableConsumer:  true,
		EnableIndicator: true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("%w: tick must be positive", ErrInvalidConfig)
	}
	if c.EnableSampler && c.SamplerPeriod == 0 {
		return fmt.Errorf("sampler: %w", core.ErrInvalidPeriod)
	}
	if c.EnableConsumer && c.ConsumerPeriod == 0 {
		return fmt.Errorf("consumer: %w", core.ErrInvalidPeriod)
	}
	if c.EnableSampler && c.EnableConsumer && c.SamplerPeriod == c.ConsumerPeriod {
		return fmt.Errorf("%w: sampler and consumer periods must differ", ErrInvalidConfig)
	}
	return c.Pins.Validate()
}

// TickMS returns the tick length in whole milliseconds.
func (c Config) TickMS() uint32 {
	return core.TickLengthMS(c.Tick)
}

// Tasks returns the task table.
func (c Config) Tasks() []TaskSpec {
	return []TaskSpec{
		{Name: "sampler", ID: core.TaskSampler, Priority: 3, Period: c.SamplerPeriod, Enabled: c.EnableSampler},
		{Name: "consumer", ID: core.TaskConsumer, Priority: 2, Period: c.ConsumerPeriod, Enabled: c.EnableConsumer},
		{Name: "indicator", ID: core.TaskIndicator, Priority: 1, Enabled: c.EnableIndicator},
	}
}

// Hardware is what the robot runs on. Source, Left and Right are optional;
// by default the echo is timed on GPIO and the motors are H-bridge channels
// on GPIO.
type Hardware struct {
	GPIO  core.GPIODriver
	Clock core.Clock

	Source core.PulseSource
	Left   Motor
	Right  Motor
}

// Option configures a Robot.
type Option func(*Robot)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Robot) { r.logger = l }
}

// WithReporter adds a telemetry reporter.
func WithReporter(rep Reporter) Option {
	return func(r *Robot) { r.reporters = append(r.reporters, rep) }
}

// WithLink streams telemetry to w and reads commands from cmds, if not nil.
func WithLink(w io.Writer, cmds io.Reader) Option {
	return func(r *Robot) {
		r.linkOut = w
		r.linkIn = cmds
	}
}

// WithTracer records timing events into t.
func WithTracer(t *core.Tracer) Option {
	return func(r *Robot) { r.tracer = t }
}

// Robot is an assembled controller.
type Robot struct {
	cfg    Config
	hw     Hardware
	logger *slog.Logger
	tracer *core.Tracer

	reporters []Reporter
	linkOut   io.Writer
	linkIn    io.Reader
	link      *Link

	Cell      *core.MeasurementCell
	Drive     *Drive
	Sampler   *Sampler
	Consumer  *Consumer
	Indicator *Indicator
	Commands  *core.CommandRegistry
}

// New validates cfg, configures the hardware lines and builds the tasks.
func New(cfg Config, hw Hardware, opts ...Option) (*Robot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hw.GPIO == nil || hw.Clock == nil {
		return nil, fmt.Errorf("%w: gpio driver and clock are required", ErrInvalidConfig)
	}

	r := &Robot{cfg: cfg, hw: hw, logger: discardLogger}
	for _, opt := range opts {
		opt(r)
	}
	if r.linkOut != nil {
		r.link = NewLink(r.linkOut, r.logger)
		r.reporters = append(r.reporters, r.link)
	}
	var reporter Reporter = NopReporter{}
	switch len(r.reporters) {
	case 0:
	case 1:
		reporter = r.reporters[0]
	default:
		reporter = MultiReporter(r.reporters)
	}

	if err := r.configureTracePins(); err != nil {
		return nil, err
	}

	pins := cfg.Pins
	r.Cell = core.NewMeasurementCell()

	r.Sampler = &Sampler{
		Cell:     r.Cell,
		Clock:    hw.Clock,
		Period:   cfg.SamplerPeriod,
		GPIO:     hw.GPIO,
		TracePin: pins.SamplerTrace,
		Tracer:   r.tracer,
		Reporter: reporter,
		Logger:   r.logger.With("task", "sampler"),
	}
	if hw.Source != nil {
		r.Sampler.Source = hw.Source
	} else {
		pt := &core.PulseTimer{
			GPIO:         hw.GPIO,
			Clock:        hw.Clock,
			Trigger:      pins.Trigger,
			Echo:         pins.Echo,
			TriggerWidth: cfg.TriggerWidth,
			Timeout:      cfg.EchoTimeout,
			Poll:         cfg.PollEcho,
			Observer:     r.Sampler.ObservePhase,
		}
		if err := pt.Configure(); err != nil {
			return nil, err
		}
		r.Sampler.Source = pt
	}

	left, right := hw.Left, hw.Right
	if left == nil {
		hb := &HBridge{GPIO: hw.GPIO, Enable: pins.LeftEnable, Positive: pins.LeftPositive, Negative: pins.LeftNegative}
		if err := hb.Configure(); err != nil {
			return nil, err
		}
		left = hb
	}
	if right == nil {
		hb := &HBridge{GPIO: hw.GPIO, Enable: pins.RightEnable, Positive: pins.RightPositive, Negative: pins.RightNegative}
		if err := hb.Configure(); err != nil {
			return nil, err
		}
		right = hb
	}
	r.Drive = NewDrive(left, right, cfg.SwapMotors)

	r.Consumer = &Consumer{
		Cell:      r.Cell,
		Clock:     hw.Clock,
		Period:    cfg.ConsumerPeriod,
		Threshold: cfg.StopThreshold,
		Drive:     r.Drive,
		GPIO:      hw.GPIO,
		TracePin:  pins.ConsumerTrace,
		Tracer:    r.tracer,
		Reporter:  reporter,
		Logger:    r.logger.With("task", "consumer"),
	}

	r.Indicator = &Indicator{
		Cell:     r.Cell,
		Clock:    hw.Clock,
		GPIO:     hw.GPIO,
		LED:      pins.LED,
		TickMS:   cfg.TickMS(),
		Pulse:    cfg.IndicatorPulse,
		TracePin: pins.IndicatorTrace,
		Tracer:   r.tracer,
		Reporter: reporter,
		Logger:   r.logger.With("task", "indicator"),
	}
	if err := r.Indicator.Configure(); err != nil {
		return nil, err
	}

	r.Commands = core.NewCommandRegistry()
	if err := RegisterCommands(r.Commands, r.Consumer); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Robot) configureTracePins() error {
	pins := r.cfg.Pins
	for _, pin := range []core.GPIOPin{pins.SamplerTrace, pins.ConsumerTrace, pins.IndicatorTrace} {
		if pin == core.NoPin {
			continue
		}
		if err := r.hw.GPIO.ConfigureOutput(pin); err != nil {
			return fmt.Errorf("configure trace pin %d: %w", pin, err)
		}
		if err := r.hw.GPIO.SetPin(pin, false); err != nil {
			return fmt.Errorf("reset trace pin %d: %w", pin, err)
		}
	}
	return nil
}

// Config returns the robot's configuration.
func (r *Robot) Config() Config {
	return r.cfg
}

// Link returns the telemetry link, or nil without WithLink.
func (r *Robot) Link() *Link {
	return r.link
}

// Run starts the enabled tasks and blocks until ctx is cancelled or a task
// fails. The motors are stopped on the way out. Cancellation or expiry of
// ctx is a clean stop and returns nil.
func (r *Robot) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, spec := range r.cfg.Tasks() {
		if !spec.Enabled {
			r.logger.Info("task disabled", "task", spec.Name)
			continue
		}
		run := r.taskFunc(spec.ID)
		r.logger.Info("starting task", "task", spec.Name, "priority", spec.Priority, "period_ticks", spec.Period)
		g.Go(func() error {
			if err := run(gctx); err != nil {
				return fmt.Errorf("%s: %w", spec.Name, err)
			}
			return nil
		})
	}
	if r.link != nil {
		g.Go(func() error { return r.link.Run(gctx) })
	}
	if r.linkIn != nil {
		// The read blocks outside ctx, so it is not part of the group.
		go func() {
			if err := ServeCommands(gctx, r.linkIn, r.Commands, r.logger); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Warn("command link closed", "error", err)
			}
		}()
	}

	err := g.Wait()
	if stopErr := r.Drive.Move(Stop); stopErr != nil {
		r.logger.Error("stopping motors", "error", stopErr)
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (r *Robot) taskFunc(id uint8) func(context.Context) error {
	switch id {
	case core.TaskSampler:
		return r.Sampler.Run
	case core.TaskConsumer:
		return r.Consumer.Run
	default:
		return r.Indicator.Run
	}
}

// Stats is a snapshot of the task counters.
type Stats struct {
	Samples      uint32
	Failures     uint32
	Decisions    uint32
	Blinks       uint32
	SamplerState SamplerState
	Mode         Mode
	LastCommand  Command
}

// Stats returns the current task counters.
func (r *Robot) Stats() Stats {
	return Stats{
		Samples:      r.Sampler.Samples(),
		Failures:     r.Sampler.Failures(),
		Decisions:    r.Consumer.Decisions(),
		Blinks:       r.Indicator.Blinks(),
		SamplerState: r.Sampler.State(),
		Mode:         r.Consumer.Mode(),
		LastCommand:  r.Drive.Last(),
	}
}
