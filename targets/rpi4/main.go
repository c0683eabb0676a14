//go:build linux

// Command sonarbot runs the controller on a Raspberry Pi.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"sonarbot/config"
	"sonarbot/core"
	"sonarbot/host/serial"
	"sonarbot/robot"
)

var (
	configPath = flag.String("config", "/etc/sonarbot.yaml", "Configuration file (YAML or JSON)")
	backend    = flag.String("gpio", "", "Override the GPIO backend (periph or rpio)")
	dumpConfig = flag.Bool("print-config", false, "Print the effective configuration and exit")
)

// gpioDriver is a GPIO backend that holds hardware until closed.
type gpioDriver interface {
	core.GPIODriver
	io.Closer
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.RobotConfig, error) {
	cfg, err := config.LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func openGPIO(name string, clock core.Clock) (gpioDriver, error) {
	switch name {
	case "", "periph":
		return NewPeriphGPIODriver(clock)
	case "rpio":
		return NewRPIOGPIODriver()
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", name)
	}
}

func run() error {
	fileCfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *backend != "" {
		fileCfg.GPIOBackend = *backend
	}
	if *dumpConfig {
		out, err := fileCfg.Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	level, err := fileCfg.Level()
	if err != nil {
		return err
	}
	cfg, err := fileCfg.Robot()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	core.SetDebugWriter(func(s string) { logger.Debug(s) })
	core.SetDebugEnabled(level <= slog.LevelDebug)
	core.InitAsyncDebug()

	clock := core.NewSystemClock(cfg.Tick)
	gpio, err := openGPIO(fileCfg.GPIOBackend, clock)
	if err != nil {
		return err
	}
	defer gpio.Close()
	if _, ok := gpio.(core.EdgeWaiter); !ok {
		cfg.PollEcho = true
	}

	opts := []robot.Option{robot.WithLogger(logger)}
	tracer := &core.Tracer{}
	opts = append(opts, robot.WithTracer(tracer))
	if fileCfg.Telemetry.Port != "" {
		scfg := serial.DefaultConfig(fileCfg.Telemetry.Port)
		scfg.Baud = fileCfg.Telemetry.Baud
		port, err := serial.Open(scfg)
		if err != nil {
			return fmt.Errorf("telemetry port: %w", err)
		}
		defer port.Close()
		opts = append(opts, robot.WithLink(port, port))
		logger.Info("telemetry enabled", "port", scfg.Device, "baud", scfg.Baud)
	} else {
		opts = append(opts, robot.WithReporter(robot.LogReporter{Logger: logger}))
	}

	bot, err := robot.New(cfg, robot.Hardware{GPIO: gpio, Clock: clock}, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("controller started", "gpio", fileCfg.GPIOBackend, "tick", cfg.Tick,
		"sampler_period", cfg.SamplerPeriod, "consumer_period", cfg.ConsumerPeriod)
	err = bot.Run(ctx)

	st := bot.Stats()
	logger.Info("controller stopped", "samples", st.Samples, "failures", st.Failures,
		"decisions", st.Decisions, "blinks", st.Blinks)
	if st.Failures > 0 {
		tracer.Dump(func(s string) { logger.Debug(s) })
	}
	return err
}
