package core

import "context"

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// NoPin marks an unused optional line, such as a disabled trace pin.
const NoPin GPIOPin = 0xFFFFFFFF

// PullMode selects the input bias resistor.
type PullMode uint8

const (
	PullNone PullMode = iota
	PullUp
	PullDown
)

// String returns the pull mode name.
func (p PullMode) String() string {
	switch p {
	case PullNone:
		return "none"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "unknown"
	}
}

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a digital input with the given bias
	ConfigureInput(pin GPIOPin, pull PullMode) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin state (alias for GetPin for convenience)
	ReadPin(pin GPIOPin) bool
}

// EdgeWaiter is implemented by drivers that can block until an input
// reaches a level instead of being polled.
type EdgeWaiter interface {
	// WaitForLevel blocks until pin reads level and returns the tick at
	// which the transition happened. A timeout of 0 waits forever; an
	// expired timeout returns ErrEchoTimeout.
	WaitForLevel(ctx context.Context, pin GPIOPin, level bool, timeout Ticks) (Ticks, error)
}

// SetOptionalPin drives pin unless it is NoPin.
func SetOptionalPin(d GPIODriver, pin GPIOPin, value bool) error {
	if pin == NoPin {
		return nil
	}
	return d.SetPin(pin, value)
}
