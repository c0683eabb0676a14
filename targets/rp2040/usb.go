//go:build rp2040 || rp2350

package main

import (
	"machine"
	"time"
)

// InitUSB initializes USB serial communication
// On RP2040, machine.Serial is USB CDC, not UART
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// usbPort carries telemetry over USB CDC.
type usbPort struct {
	writeFailures uint32
}

// Read blocks until at least one byte has arrived.
func (p *usbPort) Read(b []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		// Yield to avoid a busy loop
		time.Sleep(100 * time.Microsecond)
	}
	n := 0
	for n < len(b) && machine.Serial.Buffered() > 0 {
		c, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		b[n] = c
		n++
	}
	return n, nil
}

// Write writes data, dropping it when the host is not reading.
func (p *usbPort) Write(data []byte) (int, error) {
	written := 0
	for written < len(data) {
		n, err := machine.Serial.Write(data[written:])
		if err != nil || n == 0 {
			// Likely disconnected; report the frame as sent so the link
			// keeps running until the host comes back.
			p.writeFailures++
			return len(data), nil
		}
		written += n
	}
	p.writeFailures = 0
	return written, nil
}
