package main

import (
	"fmt"
	"io"
	"strings"

	"sonarbot/host/monitor"
	"sonarbot/protocol"
)

// controller is the part of a monitor the console drives.
type controller interface {
	Move(cmd byte) error
	SetManual(manual bool) error
	Stats() monitor.Stats
	Session() string
}

// console interprets one line of operator input.
type console struct {
	ctl controller
	out io.Writer
}

// execute runs line and reports whether the operator asked to quit.
func (c *console) execute(line string) bool {
	parts := strings.Fields(strings.TrimSpace(line))
	if len(parts) == 0 {
		return false
	}

	switch cmd := strings.ToLower(parts[0]); cmd {
	case "quit", "exit", "q":
		return true

	case "help", "?":
		printHelp(c.out)

	case "auto":
		c.report(c.ctl.SetManual(false), "automatic driving")

	case "manual":
		c.report(c.ctl.SetManual(true), "manual driving")

	case "f", "forward", "l", "left", "b", "back", "r", "right", "s", "stop":
		letter := strings.ToUpper(cmd[:1])[0]
		c.report(c.ctl.Move(letter), "requested "+string(letter))

	case "stats":
		c.printStats()

	case "session":
		fmt.Fprintln(c.out, c.ctl.Session())

	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for available commands)\n", cmd)
	}
	return false
}

func (c *console) report(err error, done string) {
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, done)
}

func (c *console) printStats() {
	s := c.ctl.Stats()
	fmt.Fprintf(c.out, "samples=%d decisions=%d blinks=%d failures=%d\n",
		s.Samples, s.Decisions, s.Blinks, s.Failures)
	last := "-"
	if s.LastCommand != 0 {
		last = string(rune(s.LastCommand))
	}
	fmt.Fprintf(c.out, "last tick=%d distance_ticks=%d cmd=%s delay_ms=%d\n",
		s.LastTick, s.LastDistance, last, s.LastDelayMS)
	fmt.Fprintf(c.out, "bad_messages=%d parser_errors=%d dropped_bytes=%d sent=%d\n",
		s.BadMessages, s.ParserErrors, s.DroppedBytes, s.CommandsSent)
}

// printEvent writes one telemetry line unless it is a blink and quiet is set.
func printEvent(w io.Writer, ev protocol.Event, verbose bool) {
	if !verbose && ev.ID == protocol.MsgBlink {
		return
	}
	fmt.Fprintln(w, ev.String())
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "\nAvailable commands:")
	fmt.Fprintln(w, "  help, ?          - Show this help")
	fmt.Fprintln(w, "  auto             - Drive from the distance sensor")
	fmt.Fprintln(w, "  manual           - Drive from console commands")
	fmt.Fprintln(w, "  f|l|b|r|s        - Forward, left, back, right, stop (manual mode)")
	fmt.Fprintln(w, "  stats            - Show telemetry statistics")
	fmt.Fprintln(w, "  session          - Show the recording session id")
	fmt.Fprintln(w, "  quit, exit, q    - Exit the program")
	fmt.Fprintln(w)
}
