package robot

import (
	"fmt"
	"sync"

	"sonarbot/core"
)

// Motor is one drive motor.
type Motor interface {
	Forward() error
	Backward() error
	Stop() error
}

// Apply runs a single motor command on m.
func Apply(m Motor, cmd MotorCommand) error {
	switch cmd {
	case MotorForward:
		return m.Forward()
	case MotorReverse:
		return m.Backward()
	case MotorStop:
		return m.Stop()
	default:
		return fmt.Errorf("invalid motor command %d", cmd)
	}
}

// Drive turns motion commands into commands for a left and a right motor.
type Drive struct {
	mu    sync.Mutex
	left  Motor
	right Motor
	last  Command
}

// NewDrive creates a drive. With swap set the two motors trade sides, for
// robots whose motors are wired the other way round.
func NewDrive(left, right Motor, swap bool) *Drive {
	if swap {
		left, right = right, left
	}
	return &Drive{left: left, right: right}
}

// Move actuates both motors for cmd. Unknown commands return
// ErrUnknownCommand and leave the motors untouched.
func (d *Drive) Move(cmd Command) error {
	a, ok := Actuate(cmd)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := Apply(d.left, a.Left); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if err := Apply(d.right, a.Right); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	d.last = cmd
	return nil
}

// Last returns the last command applied, or 0 before the first Move.
func (d *Drive) Last() Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// HBridge drives one motor through an H-bridge channel: an enable line and
// the two direction inputs.
type HBridge struct {
	GPIO     core.GPIODriver
	Enable   core.GPIOPin
	Positive core.GPIOPin
	Negative core.GPIOPin
}

// Configure sets all three lines as outputs.
func (h *HBridge) Configure() error {
	for _, pin := range []core.GPIOPin{h.Enable, h.Positive, h.Negative} {
		if err := h.GPIO.ConfigureOutput(pin); err != nil {
			return fmt.Errorf("configure motor pin %d: %w", pin, err)
		}
	}
	return nil
}

// Forward enables the channel and drives positive high.
func (h *HBridge) Forward() error {
	return h.set(true, true, false)
}

// Backward enables the channel and drives negative high.
func (h *HBridge) Backward() error {
	return h.set(true, false, true)
}

// Stop lowers both direction inputs and leaves the enable line alone.
func (h *HBridge) Stop() error {
	if err := h.GPIO.SetPin(h.Positive, false); err != nil {
		return err
	}
	return h.GPIO.SetPin(h.Negative, false)
}

func (h *HBridge) set(enable, pos, neg bool) error {
	if err := h.GPIO.SetPin(h.Enable, enable); err != nil {
		return err
	}
	if err := h.GPIO.SetPin(h.Positive, pos); err != nil {
		return err
	}
	return h.GPIO.SetPin(h.Negative, neg)
}

var _ Motor = (*HBridge)(nil)
