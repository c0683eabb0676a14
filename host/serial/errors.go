package serial

import "errors"

var (
	ErrNoConfig       = errors.New("serial config cannot be nil")
	ErrNoDevice       = errors.New("serial device path is empty")
	ErrInvalidBaud    = errors.New("baud rate must be positive")
	ErrInvalidTimeout = errors.New("read timeout cannot be negative")
)
