//go:build linux

package main

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	"sonarbot/core"
)

// edgeSlice bounds each blocking edge wait so cancellation is noticed.
const edgeSlice = 50 * time.Millisecond

// PeriphGPIODriver drives BCM GPIO lines through periph.io. Inputs are
// armed for both edges so echo waits block in the kernel.
type PeriphGPIODriver struct {
	mu    sync.Mutex
	clock core.Clock
	pins  map[core.GPIOPin]gpio.PinIO
	out   map[core.GPIOPin]bool
}

// NewPeriphGPIODriver initialises the periph host drivers.
func NewPeriphGPIODriver(clock core.Clock) (*PeriphGPIODriver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphGPIODriver{
		clock: clock,
		pins:  make(map[core.GPIOPin]gpio.PinIO),
		out:   make(map[core.GPIOPin]bool),
	}, nil
}

func (d *PeriphGPIODriver) lookup(pin core.GPIOPin) (gpio.PinIO, error) {
	if p, ok := d.pins[pin]; ok {
		return p, nil
	}
	p := gpioreg.ByName(strconv.Itoa(int(pin)))
	if p == nil {
		return nil, fmt.Errorf("no GPIO pin named %d", pin)
	}
	d.pins[pin] = p
	return p, nil
}

// ConfigureOutput configures a pin as a low output.
func (d *PeriphGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.Out(gpio.Low); err != nil {
		return err
	}
	d.out[pin] = true
	return nil
}

// ConfigureInput configures a pin as an input with edge detection.
func (d *PeriphGPIODriver) ConfigureInput(pin core.GPIOPin, pull core.PullMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.In(periphPull(pull), gpio.BothEdges); err != nil {
		return err
	}
	d.out[pin] = false
	return nil
}

func periphPull(pull core.PullMode) gpio.Pull {
	switch pull {
	case core.PullUp:
		return gpio.PullUp
	case core.PullDown:
		return gpio.PullDown
	default:
		return gpio.Float
	}
}

func (d *PeriphGPIODriver) configured(pin core.GPIOPin) (gpio.PinIO, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pins[pin]
	if !ok {
		return nil, false, fmt.Errorf("pin %d not configured", pin)
	}
	return p, d.out[pin], nil
}

// SetPin drives an output pin.
func (d *PeriphGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, out, err := d.configured(pin)
	if err != nil {
		return err
	}
	if !out {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	return p.Out(gpio.Level(value))
}

// GetPin reads the current pin state.
func (d *PeriphGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, _, err := d.configured(pin)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

// ReadPin reads the pin, reporting low for unconfigured pins.
func (d *PeriphGPIODriver) ReadPin(pin core.GPIOPin) bool {
	v, _ := d.GetPin(pin)
	return v
}

// WaitForLevel blocks on edge interrupts until pin reads level and returns
// the tick it was seen at.
func (d *PeriphGPIODriver) WaitForLevel(ctx context.Context, pin core.GPIOPin, level bool, timeout core.Ticks) (core.Ticks, error) {
	p, _, err := d.configured(pin)
	if err != nil {
		return 0, err
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(core.TicksToDuration(timeout, d.clock.TickDuration()))
	}
	want := gpio.Level(level)
	for {
		if p.Read() == want {
			return d.clock.Now(), nil
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		wait := edgeSlice
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, core.ErrEchoTimeout
			}
			wait = min(wait, remaining)
		}
		p.WaitForEdge(wait)
	}
}

// Close releases every configured line.
func (d *PeriphGPIODriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for pin, p := range d.pins {
		if d.out[pin] {
			_ = p.Out(gpio.Low)
		}
		_ = p.Halt()
	}
	return nil
}

var (
	_ core.GPIODriver = (*PeriphGPIODriver)(nil)
	_ core.EdgeWaiter = (*PeriphGPIODriver)(nil)
)
