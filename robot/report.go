package robot

import (
	"log/slog"

	"sonarbot/core"
)

var discardLogger = slog.New(slog.DiscardHandler)

// Sample is a published distance measurement.
type Sample struct {
	Tick     core.Ticks
	Distance core.Ticks
	Failures uint32
}

// Decision is one consumer period's motion command.
type Decision struct {
	Tick     core.Ticks
	Distance core.Ticks
	Command  Command
}

// Blink is one indicator pulse and the delay chosen after it.
type Blink struct {
	Tick    core.Ticks
	DelayMS uint32
}

// Reporter receives task events as they happen. Implementations must not
// block the calling task.
type Reporter interface {
	Sample(Sample)
	Decision(Decision)
	Blink(Blink)
}

// NopReporter discards every event.
type NopReporter struct{}

func (NopReporter) Sample(Sample)     {}
func (NopReporter) Decision(Decision) {}
func (NopReporter) Blink(Blink)       {}

// LogReporter writes events to a structured logger at debug level.
type LogReporter struct {
	Logger *slog.Logger
}

func (r LogReporter) Sample(s Sample) {
	r.Logger.Debug("sample", "tick", s.Tick, "distance_ticks", s.Distance, "failures", s.Failures)
}

func (r LogReporter) Decision(d Decision) {
	r.Logger.Debug("decision", "tick", d.Tick, "distance_ticks", d.Distance, "command", d.Command.String())
}

func (r LogReporter) Blink(b Blink) {
	r.Logger.Debug("blink", "tick", b.Tick, "delay_ms", b.DelayMS)
}

// MultiReporter fans events out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) Sample(s Sample) {
	for _, r := range m {
		r.Sample(s)
	}
}

func (m MultiReporter) Decision(d Decision) {
	for _, r := range m {
		r.Decision(d)
	}
}

func (m MultiReporter) Blink(b Blink) {
	for _, r := range m {
		r.Blink(b)
	}
}
