//go:build rp2040 || rp2350

// Package pio times ultrasonic echo pulses with a PIO state machine, so the
// pulse width is counted in hardware and the CPU only arms and collects it.
package pio

import (
	"context"
	"errors"
	"fmt"
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"sonarbot/core"
)

// ErrNoStateMachine is returned when every PIO state machine is taken.
var ErrNoStateMachine = errors.New("no free PIO state machine")

// Echo capture program.
//
// The CPU pushes the longest pulse to count, in counts, before firing the
// trigger. The program waits for the echo pin (the JMP pin) to go high,
// then decrements X every two cycles while it stays high and pushes what
// is left of X when it falls or the count runs out.
//
//	0: pull block
//	1: out x, 32
//	wait_high:
//	2: jmp pin, 4
//	3: jmp 2
//	count:
//	4: jmp pin, 6
//	5: jmp 7
//	6: jmp x--, 4
//	done:
//	7: in x, 32
//	8: push block
func buildEchoProgram(offset uint8) []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Pull(false, true).Encode(),                  // 0
		asm.Out(rp2pio.OutDestX, 32).Encode(),           // 1
		asm.Jmp(offset+4, rp2pio.JmpPinInput).Encode(),  // 2
		asm.Jmp(offset+2, rp2pio.JmpAlways).Encode(),    // 3
		asm.Jmp(offset+6, rp2pio.JmpPinInput).Encode(),  // 4
		asm.Jmp(offset+7, rp2pio.JmpAlways).Encode(),    // 5
		asm.Jmp(offset+4, rp2pio.JmpXNZeroDec).Encode(), // 6
		asm.In(rp2pio.InSrcX, 32).Encode(),              // 7
		asm.Push(false, true).Encode(),                  // 8
	}
}

const echoPIOOrigin = 0

// The state machine runs at 2 MHz from the 125 MHz system clock, so one
// count (two cycles) is one microsecond.
const (
	clkDivInt  = 62
	clkDivFrac = 128
	countUS    = 1
)

// maxCount bounds a single pulse when no timeout is configured: 100 ms,
// well past the ranger's 38 ms no-obstacle pulse.
const maxCount = 100_000

// EchoCapture is a core.PulseSource that triggers the ranger from the CPU
// and counts the echo pulse in a PIO state machine.
type EchoCapture struct {
	pio   *rp2pio.PIO
	sm    rp2pio.StateMachine
	clock core.Clock

	trigger machine.Pin
	echo    machine.Pin

	// TriggerWidth is how long the trigger is held high. Zero means 10 µs.
	TriggerWidth time.Duration

	// Timeout bounds the wait for a complete pulse in ticks. Zero waits for
	// up to maxCount microseconds.
	Timeout core.Ticks

	armed bool
}

var claimed [2][4]bool

// NewEchoCapture claims a free state machine on PIO0 or PIO1.
func NewEchoCapture(clock core.Clock, trigger, echo core.GPIOPin) (*EchoCapture, error) {
	for pioNum, hw := range []*rp2pio.PIO{rp2pio.PIO0, rp2pio.PIO1} {
		for smNum := uint8(0); smNum < 4; smNum++ {
			if claimed[pioNum][smNum] {
				continue
			}
			sm := hw.StateMachine(smNum)
			if !sm.TryClaim() {
				continue
			}
			claimed[pioNum][smNum] = true
			return &EchoCapture{
				pio:     hw,
				sm:      sm,
				clock:   clock,
				trigger: machine.Pin(trigger),
				echo:    machine.Pin(echo),
			}, nil
		}
	}
	return nil, ErrNoStateMachine
}

// Configure loads the program and sets up the trigger and echo pins.
func (e *EchoCapture) Configure() error {
	e.trigger.Configure(machine.PinConfig{Mode: machine.PinOutput})
	e.trigger.Low()

	program := buildEchoProgram(echoPIOOrigin)
	offset, err := e.pio.AddProgram(program, echoPIOOrigin)
	if err != nil {
		return fmt.Errorf("load echo program: %w", err)
	}
	if offset != echoPIOOrigin {
		return fmt.Errorf("echo program loaded at %d, want %d", offset, echoPIOOrigin)
	}

	e.echo.Configure(machine.PinConfig{Mode: e.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetJmpPin(e.echo)
	cfg.SetOutShift(true, false, 32)
	cfg.SetInShift(false, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(clkDivInt, clkDivFrac)

	e.sm.Init(offset, cfg)
	e.sm.SetPindirsConsecutive(e.echo, 1, false)
	e.sm.SetEnabled(true)
	return nil
}

// Measure fires the trigger and returns the echo width in ticks.
func (e *EchoCapture) Measure(ctx context.Context) (core.Ticks, error) {
	tickUS := uint32(e.clock.TickDuration() / time.Microsecond)
	if tickUS == 0 {
		tickUS = 1
	}
	limit := uint32(maxCount)
	if e.Timeout != 0 {
		limit = uint32(e.Timeout) * tickUS / countUS
	}

	if e.armed {
		e.reset()
	}
	for e.sm.IsTxFIFOFull() {
	}
	e.sm.TxPut(limit)
	e.armed = true

	width := e.TriggerWidth
	if width == 0 {
		width = 10 * time.Microsecond
	}
	e.trigger.High()
	time.Sleep(width)
	e.trigger.Low()

	start := e.clock.Now()
	deadline := start + core.Ticks((limit*countUS+tickUS-1)/tickUS) + 1
	for e.sm.IsRxFIFOEmpty() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if core.Due(e.clock.Now(), deadline) {
			return 0, core.ErrEchoTimeout
		}
		time.Sleep(100 * time.Microsecond)
	}
	e.armed = false

	left := e.sm.RxGet()
	if left > limit {
		// X wrapped: the count ran out with the echo still high.
		return 0, core.ErrEchoTimeout
	}
	us := (limit - left) * countUS
	return core.Ticks((us + tickUS/2) / tickUS), nil
}

// reset drops a measurement that never completed.
func (e *EchoCapture) reset() {
	e.sm.SetEnabled(false)
	e.sm.ClearFIFOs()
	e.sm.Restart()
	e.sm.Exec(rp2pio.AssemblerV0{}.Jmp(echoPIOOrigin, rp2pio.JmpAlways).Encode())
	e.sm.SetEnabled(true)
	e.armed = false
}

var _ core.PulseSource = (*EchoCapture)(nil)
