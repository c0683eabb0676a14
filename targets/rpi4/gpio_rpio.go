//go:build linux

package main

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"

	"sonarbot/core"
)

// RPIOGPIODriver drives BCM GPIO lines through /dev/gpiomem. It has no
// edge waits, so the echo is polled.
type RPIOGPIODriver struct {
	mu  sync.Mutex
	out map[core.GPIOPin]bool
}

// NewRPIOGPIODriver maps the GPIO registers.
func NewRPIOGPIODriver() (*RPIOGPIODriver, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("rpio open: %w", err)
	}
	return &RPIOGPIODriver{out: make(map[core.GPIOPin]bool)}, nil
}

// ConfigureOutput configures a pin as a low output.
func (d *RPIOGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := rpio.Pin(pin)
	p.Output()
	p.Low()
	d.out[pin] = true
	return nil
}

// ConfigureInput configures a pin as an input with the given bias.
func (d *RPIOGPIODriver) ConfigureInput(pin core.GPIOPin, pull core.PullMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := rpio.Pin(pin)
	p.Input()
	switch pull {
	case core.PullUp:
		p.PullUp()
	case core.PullDown:
		p.PullDown()
	default:
		p.PullOff()
	}
	d.out[pin] = false
	return nil
}

// SetPin drives an output pin.
func (d *RPIOGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	d.mu.Lock()
	out, ok := d.out[pin]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("pin %d not configured", pin)
	}
	if !out {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	if value {
		rpio.Pin(pin).High()
	} else {
		rpio.Pin(pin).Low()
	}
	return nil
}

// GetPin reads the current pin state.
func (d *RPIOGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	d.mu.Lock()
	_, ok := d.out[pin]
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("pin %d not configured", pin)
	}
	return rpio.Pin(pin).Read() == rpio.High, nil
}

// ReadPin reads the pin without the configuration check; it is on the
// echo polling path.
func (d *RPIOGPIODriver) ReadPin(pin core.GPIOPin) bool {
	return rpio.Pin(pin).Read() == rpio.High
}

// Close drives the outputs low and unmaps the registers.
func (d *RPIOGPIODriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for pin, out := range d.out {
		if out {
			rpio.Pin(pin).Low()
		}
	}
	return rpio.Close()
}

var _ core.GPIODriver = (*RPIOGPIODriver)(nil)
