// Package config loads the controller's settings from JSON or YAML files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sonarbot/core"
	"sonarbot/robot"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidPin    = errors.New("invalid pin name")
)

// Task names accepted in DisabledTasks.
const (
	TaskSampler   = "sampler"
	TaskConsumer  = "consumer"
	TaskIndicator = "indicator"
)

// PinConfig names the GPIO lines, as "gpioN" or "N". An empty name selects
// the default line; "none" disables an optional trace pin.
type PinConfig struct {
	Trigger string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Echo    string `json:"echo,omitempty" yaml:"echo,omitempty"`
	LED     string `json:"led,omitempty" yaml:"led,omitempty"`

	SamplerTrace   string `json:"sampler_trace,omitempty" yaml:"sampler_trace,omitempty"`
	ConsumerTrace  string `json:"consumer_trace,omitempty" yaml:"consumer_trace,omitempty"`
	IndicatorTrace string `json:"indicator_trace,omitempty" yaml:"indicator_trace,omitempty"`

	LeftEnable    string `json:"left_enable,omitempty" yaml:"left_enable,omitempty"`
	LeftPositive  string `json:"left_positive,omitempty" yaml:"left_positive,omitempty"`
	LeftNegative  string `json:"left_negative,omitempty" yaml:"left_negative,omitempty"`
	RightEnable   string `json:"right_enable,omitempty" yaml:"right_enable,omitempty"`
	RightPositive string `json:"right_positive,omitempty" yaml:"right_positive,omitempty"`
	RightNegative string `json:"right_negative,omitempty" yaml:"right_negative,omitempty"`
}

// TelemetryConfig selects the serial port telemetry is written to.
type TelemetryConfig struct {
	Port string `json:"port,omitempty" yaml:"port,omitempty"`
	Baud int    `json:"baud,omitempty" yaml:"baud,omitempty"`
}

// RobotConfig is the file representation of the controller settings.
// Periods are in milliseconds and distances in ticks, as on the bench.
type RobotConfig struct {
	GPIOBackend string `json:"gpio_backend,omitempty" yaml:"gpio_backend,omitempty"` // "periph" or "rpio"
	LogLevel    string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	TickMS             uint32  `json:"tick_ms,omitempty" yaml:"tick_ms,omitempty"`
	SamplerPeriodMS    uint32  `json:"sampler_period_ms,omitempty" yaml:"sampler_period_ms,omitempty"`
	ConsumerPeriodMS   uint32  `json:"consumer_period_ms,omitempty" yaml:"consumer_period_ms,omitempty"`
	StopThresholdTicks *uint32 `json:"stop_threshold_ticks,omitempty" yaml:"stop_threshold_ticks,omitempty"`
	TriggerTicks       uint32  `json:"trigger_ticks,omitempty" yaml:"trigger_ticks,omitempty"`
	EchoTimeoutTicks   *uint32 `json:"echo_timeout_ticks,omitempty" yaml:"echo_timeout_ticks,omitempty"` // 0 waits forever
	IndicatorPulseMS   uint32  `json:"indicator_pulse_ms,omitempty" yaml:"indicator_pulse_ms,omitempty"`

	PollEcho      bool     `json:"poll_echo,omitempty" yaml:"poll_echo,omitempty"`
	SwapMotors    bool     `json:"swap_motors,omitempty" yaml:"swap_motors,omitempty"`
	DisabledTasks []string `json:"disabled_tasks,omitempty" yaml:"disabled_tasks,omitempty"`

	Pins      PinConfig       `json:"pins" yaml:"pins"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

// LoadConfig parses a JSON configuration and applies defaults.
func LoadConfig(jsonData []byte) (*RobotConfig, error) {
	var config RobotConfig
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, err
	}
	applyDefaults(&config)
	return &config, nil
}

// LoadYAML parses a YAML configuration and applies defaults.
func LoadYAML(data []byte) (*RobotConfig, error) {
	var config RobotConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	applyDefaults(&config)
	return &config, nil
}

// LoadFile reads a configuration file, YAML for .yaml/.yml and JSON
// otherwise, and validates it.
func LoadFile(path string) (*RobotConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config *RobotConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		config, err = LoadYAML(data)
	default:
		config, err = LoadConfig(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// applyDefaults fills in missing values with the lab settings
func applyDefaults(config *RobotConfig) {
	if config.GPIOBackend == "" {
		config.GPIOBackend = "periph"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.TickMS == 0 {
		config.TickMS = core.TickMS
	}
	if config.SamplerPeriodMS == 0 {
		config.SamplerPeriodMS = 50
	}
	if config.ConsumerPeriodMS == 0 {
		config.ConsumerPeriodMS = 100
	}
	if config.StopThresholdTicks == nil {
		threshold := uint32(robot.DefaultStopThreshold)
		config.StopThresholdTicks = &threshold
	}
	if config.TriggerTicks == 0 {
		config.TriggerTicks = 1
	}
	if config.EchoTimeoutTicks == nil {
		timeout := uint32(60)
		config.EchoTimeoutTicks = &timeout
	}
	if config.IndicatorPulseMS == 0 {
		config.IndicatorPulseMS = robot.DefaultIndicatorPulseMS
	}
	if config.Telemetry.Baud == 0 {
		config.Telemetry.Baud = 115200
	}

	def := Default().Pins
	fill := func(dst *string, val string) {
		if *dst == "" {
			*dst = val
		}
	}
	p := &config.Pins
	fill(&p.Trigger, def.Trigger)
	fill(&p.Echo, def.Echo)
	fill(&p.LED, def.LED)
	fill(&p.SamplerTrace, def.SamplerTrace)
	fill(&p.ConsumerTrace, def.ConsumerTrace)
	fill(&p.IndicatorTrace, def.IndicatorTrace)
	fill(&p.LeftEnable, def.LeftEnable)
	fill(&p.LeftPositive, def.LeftPositive)
	fill(&p.LeftNegative, def.LeftNegative)
	fill(&p.RightEnable, def.RightEnable)
	fill(&p.RightPositive, def.RightPositive)
	fill(&p.RightNegative, def.RightNegative)
}

// Default returns the lab wiring and timing.
func Default() *RobotConfig {
	timeout := uint32(60)
	threshold := uint32(robot.DefaultStopThreshold)
	return &RobotConfig{
		GPIOBackend:        "periph",
		LogLevel:           "info",
		TickMS:             core.TickMS,
		SamplerPeriodMS:    50,
		ConsumerPeriodMS:   100,
		StopThresholdTicks: &threshold,
		TriggerTicks:       1,
		EchoTimeoutTicks:   &timeout,
		IndicatorPulseMS:   robot.DefaultIndicatorPulseMS,
		Pins: PinConfig{
			Trigger:        "gpio9",
			Echo:           "gpio11",
			LED:            "gpio2",
			SamplerTrace:   "gpio16",
			ConsumerTrace:  "gpio5",
			IndicatorTrace: "gpio0",
			LeftEnable:     "gpio20",
			LeftPositive:   "gpio6",
			LeftNegative:   "gpio13",
			RightEnable:    "gpio21",
			RightPositive:  "gpio19",
			RightNegative:  "gpio26",
		},
		Telemetry: TelemetryConfig{Baud: 115200},
	}
}

// ParsePin parses "gpioN", "GPION" or "N". "none" returns core.NoPin.
func ParsePin(name string) (core.GPIOPin, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "none" {
		return core.NoPin, nil
	}
	s = strings.TrimPrefix(s, "gpio")
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPin, name)
	}
	return core.GPIOPin(n), nil
}

// FormatPin returns the configuration name of pin.
func FormatPin(pin core.GPIOPin) string {
	if pin == core.NoPin {
		return "none"
	}
	return "gpio" + strconv.FormatUint(uint64(pin), 10)
}

// Level returns the slog level named by LogLevel. Empty means info.
func (c *RobotConfig) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log_level: %w", ErrInvalidConfig, err)
	}
	return level, nil
}

// Validate checks the configuration by converting it.
func (c *RobotConfig) Validate() error {
	_, err := c.Robot()
	return err
}

// Robot converts the file settings into the controller's configuration.
func (c *RobotConfig) Robot() (robot.Config, error) {
	if c.TickMS == 0 {
		return robot.Config{}, fmt.Errorf("%w: tick_ms must be positive", ErrInvalidConfig)
	}
	switch c.GPIOBackend {
	case "", "periph", "rpio":
	default:
		return robot.Config{}, fmt.Errorf("%w: unknown gpio_backend %q", ErrInvalidConfig, c.GPIOBackend)
	}
	if _, err := c.Level(); err != nil {
		return robot.Config{}, err
	}
	for _, task := range c.DisabledTasks {
		if !slices.Contains([]string{TaskSampler, TaskConsumer, TaskIndicator}, task) {
			return robot.Config{}, fmt.Errorf("%w: unknown task %q", ErrInvalidConfig, task)
		}
	}

	pins, err := c.Pins.pins()
	if err != nil {
		return robot.Config{}, err
	}

	var timeout uint32
	if c.EchoTimeoutTicks != nil {
		timeout = *c.EchoTimeoutTicks
	}
	var threshold uint32
	if c.StopThresholdTicks != nil {
		threshold = *c.StopThresholdTicks
	}

	rc := robot.Config{
		Pins:            pins,
		Tick:            time.Duration(c.TickMS) * time.Millisecond,
		SamplerPeriod:   core.TicksFromMS(c.SamplerPeriodMS, c.TickMS),
		ConsumerPeriod:  core.TicksFromMS(c.ConsumerPeriodMS, c.TickMS),
		StopThreshold:   core.Ticks(threshold),
		TriggerWidth:    core.Ticks(c.TriggerTicks),
		EchoTimeout:     core.Ticks(timeout),
		IndicatorPulse:  core.TicksFromMS(c.IndicatorPulseMS, c.TickMS),
		PollEcho:        c.PollEcho,
		SwapMotors:      c.SwapMotors,
		EnableSampler:   !slices.Contains(c.DisabledTasks, TaskSampler),
		EnableConsumer:  !slices.Contains(c.DisabledTasks, TaskConsumer),
		EnableIndicator: !slices.Contains(c.DisabledTasks, TaskIndicator),
	}
	if err := rc.Validate(); err != nil {
		return robot.Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return rc, nil
}

func (p PinConfig) pins() (robot.Pins, error) {
	var out robot.Pins
	for _, f := range []struct {
		name string
		src  string
		dst  *core.GPIOPin
	}{
		{"trigger", p.Trigger, &out.Trigger},
		{"echo", p.Echo, &out.Echo},
		{"led", p.LED, &out.LED},
		{"sampler_trace", p.SamplerTrace, &out.SamplerTrace},
		{"consumer_trace", p.ConsumerTrace, &out.ConsumerTrace},
		{"indicator_trace", p.IndicatorTrace, &out.IndicatorTrace},
		{"left_enable", p.LeftEnable, &out.LeftEnable},
		{"left_positive", p.LeftPositive, &out.LeftPositive},
		{"left_negative", p.LeftNegative, &out.LeftNegative},
		{"right_enable", p.RightEnable, &out.RightEnable},
		{"right_positive", p.RightPositive, &out.RightPositive},
		{"right_negative", p.RightNegative, &out.RightNegative},
	} {
		pin, err := ParsePin(f.src)
		if err != nil {
			return robot.Pins{}, fmt.Errorf("pins.%s: %w", f.name, err)
		}
		*f.dst = pin
	}
	return out, nil
}

// Marshal encodes the configuration as YAML.
func (c *RobotConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
