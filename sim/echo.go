package sim

import (
	"sync"

	"sonarbot/core"
)

// Echo models an HC-SR04 style ranger wired to a GPIO bank. When the
// trigger line falls it answers on the echo line: high after Latency ticks,
// low again Width ticks later. A zero width leaves the echo line low, as if
// nothing reflected the burst.
type Echo struct {
	gpio    *GPIO
	clock   *core.SimClock
	trigger core.GPIOPin
	echo    core.GPIOPin

	mu      sync.Mutex
	latency core.Ticks
	width   core.Ticks
	pulses  uint32
}

// NewEcho attaches a ranger model to trigger and echo.
func NewEcho(g *GPIO, clock *core.SimClock, trigger, echo core.GPIOPin) *Echo {
	e := &Echo{
		gpio:    g,
		clock:   clock,
		trigger: trigger,
		echo:    echo,
		latency: 1,
	}
	g.OnChange(trigger, e.onTrigger)
	return e
}

// SetWidth sets the echo pulse width returned for following triggers.
func (e *Echo) SetWidth(w core.Ticks) {
	e.mu.Lock()
	e.width = w
	e.mu.Unlock()
}

// Width returns the current echo pulse width.
func (e *Echo) Width() core.Ticks {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.width
}

// SetLatency sets the delay between the trigger falling and the echo rising.
// Latencies below one tick are raised to one.
func (e *Echo) SetLatency(l core.Ticks) {
	if l == 0 {
		l = 1
	}
	e.mu.Lock()
	e.latency = l
	e.mu.Unlock()
}

// Pulses returns how many echo pulses the model has scheduled.
func (e *Echo) Pulses() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pulses
}

func (e *Echo) onTrigger(level bool, at core.Ticks) {
	if level {
		return
	}
	e.mu.Lock()
	latency, width := e.latency, e.width
	if width != 0 {
		e.pulses++
	}
	e.mu.Unlock()
	if width == 0 {
		return
	}

	// The fall is scheduled from the rise callback, which runs on the
	// goroutine advancing the clock, so the pulse is exactly width ticks.
	e.clock.AfterFunc(at+latency, func(now core.Ticks) {
		_ = e.gpio.Drive(e.echo, true)
		e.clock.AfterFunc(now+width, func(core.Ticks) { _ = e.gpio.Drive(e.echo, false) })
	})
}
