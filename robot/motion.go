package robot

import (
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned for a command byte outside F, L, B, R, S.
var ErrUnknownCommand = errors.New("unknown motion command")

// Command is a motion command byte as sent by the remote control.
type Command byte

const (
	Forward Command = 'F'
	Left    Command = 'L'
	Back    Command = 'B'
	Right   Command = 'R'
	Stop    Command = 'S'
)

// Commands lists every valid motion command.
var Commands = []Command{Forward, Left, Back, Right, Stop}

// String returns the command's name.
func (c Command) String() string {
	switch c {
	case Forward:
		return "forward"
	case Left:
		return "left"
	case Back:
		return "back"
	case Right:
		return "right"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("command(%#02x)", byte(c))
	}
}

// Valid reports whether c is one of the five motion commands.
func (c Command) Valid() bool {
	_, ok := Actuate(c)
	return ok
}

// ParseCommand accepts a command letter in either case or a command name.
func ParseCommand(s string) (Command, error) {
	if len(s) == 1 {
		c := Command(s[0] &^ 0x20) // upper case
		if c.Valid() {
			return c, nil
		}
	}
	for _, c := range Commands {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// MotorCommand is what one motor is told to do.
type MotorCommand uint8

const (
	MotorStop MotorCommand = iota
	MotorForward
	MotorReverse
)

// String returns the motor command's name.
func (m MotorCommand) String() string {
	switch m {
	case MotorStop:
		return "stop"
	case MotorForward:
		return "forward"
	case MotorReverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// Actuation is the pair of motor commands for one motion command.
type Actuation struct {
	Left  MotorCommand
	Right MotorCommand
}

var actuations = map[Command]Actuation{
	Forward: {Left: MotorForward, Right: MotorForward},
	Left:    {Left: MotorStop, Right: MotorForward},
	Back:    {Left: MotorReverse, Right: MotorReverse},
	Right:   {Left: MotorForward, Right: MotorStop},
	Stop:    {Left: MotorStop, Right: MotorStop},
}

// Actuate maps a motion command to its motor commands. It reports false
// for unknown commands.
func Actuate(c Command) (Actuation, bool) {
	a, ok := actuations[c]
	return a, ok
}
