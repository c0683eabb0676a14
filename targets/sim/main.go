// Command sonarbot-sim runs the controller against simulated hardware: a
// ranger whose echo width follows a distance script, with the motors and
// LED recorded on simulated GPIO lines.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sonarbot/config"
	"sonarbot/core"
	"sonarbot/robot"
	"sonarbot/sim"
)

var (
	configPath = flag.String("config", "", "Configuration file (YAML or JSON)")
	script     = flag.String("distances", "40,30,20,12,8,5,3,3,8,20", "Echo widths in ticks, one per step")
	step       = flag.Duration("step", time.Second, "How long each scripted distance is held")
	duration   = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	telemetry  = flag.String("telemetry", "", "Write telemetry frames to this file")
	trace      = flag.Bool("trace", false, "Dump the timing ring on exit")
	logLevel   = flag.String("log-level", "", "Override the configured log level")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fileCfg := config.Default()
	if *configPath != "" {
		var err error
		if fileCfg, err = config.LoadFile(*configPath); err != nil {
			return err
		}
	}
	if *logLevel != "" {
		fileCfg.LogLevel = *logLevel
	}
	level, err := fileCfg.Level()
	if err != nil {
		return err
	}
	cfg, err := fileCfg.Robot()
	if err != nil {
		return err
	}
	widths, err := parseScript(*script)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	core.SetDebugWriter(func(s string) { logger.Debug(s) })
	core.SetDebugEnabled(level <= slog.LevelDebug)
	core.InitAsyncDebug()

	clock := core.NewSimClock(cfg.Tick)
	gpio := sim.NewGPIO(clock)
	echo := sim.NewEcho(gpio, clock, cfg.Pins.Trigger, cfg.Pins.Echo)

	opts := []robot.Option{
		robot.WithLogger(logger),
		robot.WithReporter(robot.LogReporter{Logger: logger}),
	}
	tracer := &core.Tracer{}
	if *trace {
		opts = append(opts, robot.WithTracer(tracer))
	}
	if *telemetry != "" {
		f, err := os.Create(*telemetry)
		if err != nil {
			return fmt.Errorf("open telemetry file: %w", err)
		}
		defer f.Close()
		opts = append(opts, robot.WithLink(f, nil))
	}

	bot, err := robot.New(cfg, robot.Hardware{GPIO: gpio, Clock: clock}, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	go drive(ctx, clock, cfg.Tick)
	go playScript(ctx, echo, widths, *step, logger)

	logger.Info("simulation started", "tick", cfg.Tick, "sampler_period", cfg.SamplerPeriod,
		"consumer_period", cfg.ConsumerPeriod, "distances", len(widths))
	if err := bot.Run(ctx); err != nil {
		return err
	}

	st := bot.Stats()
	logger.Info("simulation finished", "samples", st.Samples, "failures", st.Failures,
		"decisions", st.Decisions, "blinks", st.Blinks, "last_command", st.LastCommand,
		"echo_pulses", echo.Pulses())
	if *trace {
		tracer.Dump(func(s string) { fmt.Fprintln(os.Stderr, s) })
	}
	return nil
}

// drive advances the simulated clock in step with wall time.
func drive(ctx context.Context, clock *core.SimClock, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clock.Advance(1)
		}
	}
}

// playScript sets the echo width from widths in turn, repeating the list.
func playScript(ctx context.Context, echo *sim.Echo, widths []core.Ticks, step time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(step)
	defer ticker.Stop()
	for i := 0; ; i = (i + 1) % len(widths) {
		echo.SetWidth(widths[i])
		logger.Debug("obstacle moved", "echo_ticks", widths[i])
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// parseScript reads a comma separated list of echo widths.
func parseScript(s string) ([]core.Ticks, error) {
	var widths []core.Ticks
	for _, f := range strings.Split(s, ",") {
		w, err := strconv.ParseUint(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad distance %q: %w", f, err)
		}
		widths = append(widths, core.Ticks(w))
	}
	return widths, nil
}
