// Package sim provides simulated hardware for running the controller on a
// host: an in-memory GPIO bank and an ultrasonic ranger model, both driven
// by a core.SimClock.
package sim

import (
	"context"
	"errors"
	"sync"

	"sonarbot/core"
)

var (
	ErrNotConfigured = errors.New("pin not configured")
	ErrNotOutput     = errors.New("pin is not an output")
	ErrNotInput      = errors.New("pin is not an input")
)

// Edge is one recorded level change.
type Edge struct {
	At    core.Ticks
	Level bool
}

type pinState struct {
	configured bool
	output     bool
	pull       core.PullMode
	level      bool
	lastEdge   core.Ticks
	history    []Edge
}

type levelWaiter struct {
	pin   core.GPIOPin
	level bool
	ch    chan core.Ticks
}

// GPIO is an in-memory GPIO bank. Every level change is stamped with the
// clock, which makes it a precise core.EdgeWaiter.
type GPIO struct {
	mu        sync.Mutex
	clock     *core.SimClock
	pins      map[core.GPIOPin]*pinState
	waiters   []*levelWaiter
	observers map[core.GPIOPin][]func(level bool, at core.Ticks)
}

// NewGPIO creates an empty GPIO bank stamped by clock.
func NewGPIO(clock *core.SimClock) *GPIO {
	return &GPIO{
		clock:     clock,
		pins:      make(map[core.GPIOPin]*pinState),
		observers: make(map[core.GPIOPin][]func(bool, core.Ticks)),
	}
}

func (g *GPIO) pin(pin core.GPIOPin) *pinState {
	st, ok := g.pins[pin]
	if !ok {
		st = &pinState{}
		g.pins[pin] = st
	}
	return st
}

// ConfigureOutput configures pin as an output driven low.
func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.pin(pin)
	st.configured = true
	st.output = true
	return nil
}

// ConfigureInput configures pin as an input. A pull-up input idles high.
func (g *GPIO) ConfigureInput(pin core.GPIOPin, pull core.PullMode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := g.pin(pin)
	st.configured = true
	st.output = false
	st.pull = pull
	st.level = pull == core.PullUp
	return nil
}

// SetPin drives an output pin.
func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	st, ok := g.pins[pin]
	if !ok || !st.configured {
		g.mu.Unlock()
		return ErrNotConfigured
	}
	if !st.output {
		g.mu.Unlock()
		return ErrNotOutput
	}
	g.mu.Unlock()

	g.change(pin, value)
	return nil
}

// Drive sets the level of an input pin, standing in for external hardware.
func (g *GPIO) Drive(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	st, ok := g.pins[pin]
	if ok && st.output {
		g.mu.Unlock()
		return ErrNotInput
	}
	g.mu.Unlock()

	g.change(pin, value)
	return nil
}

// change records a level change, releases matching waiters and then runs
// the pin's observers outside the lock.
func (g *GPIO) change(pin core.GPIOPin, value bool) {
	at := g.clock.Now()

	g.mu.Lock()
	st := g.pin(pin)
	if st.level == value {
		g.mu.Unlock()
		return
	}
	st.level = value
	st.lastEdge = at
	st.history = append(st.history, Edge{At: at, Level: value})

	kept := g.waiters[:0]
	for _, w := range g.waiters {
		if w.pin == pin && w.level == value {
			w.ch <- at
			continue
		}
		kept = append(kept, w)
	}
	g.waiters = kept
	observers := append([]func(bool, core.Ticks){}, g.observers[pin]...)
	g.mu.Unlock()

	for _, fn := range observers {
		fn(value, at)
	}
}

// GetPin reads the current pin state.
func (g *GPIO) GetPin(pin core.GPIOPin) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.pins[pin]
	if !ok || !st.configured {
		return false, ErrNotConfigured
	}
	return st.level, nil
}

// ReadPin reads the current pin state, low for unknown pins.
func (g *GPIO) ReadPin(pin core.GPIOPin) bool {
	v, _ := g.GetPin(pin)
	return v
}

// History returns every level change recorded on pin.
func (g *GPIO) History(pin core.GPIOPin) []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.pins[pin]
	if !ok {
		return nil
	}
	return append([]Edge(nil), st.history...)
}

// IsOutput reports whether pin is configured as an output.
func (g *GPIO) IsOutput(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.pins[pin]
	return ok && st.configured && st.output
}

// OnChange registers fn to run after every level change on pin.
func (g *GPIO) OnChange(pin core.GPIOPin, fn func(level bool, at core.Ticks)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers[pin] = append(g.observers[pin], fn)
}

// WaitForLevel blocks until pin reads level. It returns the tick of the
// transition, or of the last transition if the pin already reads level.
func (g *GPIO) WaitForLevel(ctx context.Context, pin core.GPIOPin, level bool, timeout core.Ticks) (core.Ticks, error) {
	g.mu.Lock()
	st := g.pin(pin)
	if st.level == level {
		at := st.lastEdge
		g.mu.Unlock()
		return at, nil
	}
	w := &levelWaiter{pin: pin, level: level, ch: make(chan core.Ticks, 1)}
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	var expired chan struct{}
	if timeout > 0 {
		expired = make(chan struct{})
		cancel := g.clock.AfterFunc(g.clock.Now()+timeout, func(core.Ticks) { close(expired) })
		defer cancel()
	}

	select {
	case at := <-w.ch:
		return at, nil
	case <-expired:
		if at, ok := g.dropWaiter(w); ok {
			return at, nil
		}
		return 0, core.ErrEchoTimeout
	case <-ctx.Done():
		g.dropWaiter(w)
		return 0, ctx.Err()
	}
}

// dropWaiter unregisters w. If w was released concurrently its timestamp
// is returned instead.
func (g *GPIO) dropWaiter(w *levelWaiter) (core.Ticks, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, other := range g.waiters {
		if other == w {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return 0, false
		}
	}
	select {
	case at := <-w.ch:
		return at, true
	default:
		return 0, false
	}
}

var (
	_ core.GPIODriver = (*GPIO)(nil)
	_ core.EdgeWaiter = (*GPIO)(nil)
)
