package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"sonarbot/core"
	"sonarbot/protocol"
)

// LinkQueueSize is how many telemetry messages may wait for the link.
const LinkQueueSize = 32

type outgoing struct {
	id   uint16
	args [3]uint32
	n    int
}

// Link reports task events as telemetry frames. Events are queued so a
// slow serial port never stalls a task; when the queue is full the event
// is dropped and counted.
type Link struct {
	enc     *protocol.Encoder
	queue   chan outgoing
	dropped atomic.Uint32
	logger  *slog.Logger
}

// NewLink creates a link writing frames to w.
func NewLink(w io.Writer, logger *slog.Logger) *Link {
	if logger == nil {
		logger = discardLogger
	}
	return &Link{
		enc:    protocol.NewEncoder(w),
		queue:  make(chan outgoing, LinkQueueSize),
		logger: logger,
	}
}

func (l *Link) push(id uint16, args ...uint32) {
	msg := outgoing{id: id}
	msg.n = copy(msg.args[:], args)
	select {
	case l.queue <- msg:
	default:
		l.dropped.Add(1)
	}
}

func (l *Link) Sample(s Sample) {
	l.push(protocol.MsgSample, uint32(s.Tick), uint32(s.Distance), s.Failures)
}

func (l *Link) Decision(d Decision) {
	l.push(protocol.MsgDecision, uint32(d.Tick), uint32(d.Distance), uint32(d.Command))
}

func (l *Link) Blink(b Blink) {
	l.push(protocol.MsgBlink, uint32(b.Tick), b.DelayMS)
}

// Dropped returns how many events were lost to a full queue.
func (l *Link) Dropped() uint32 {
	return l.dropped.Load()
}

// Sent returns how many frames were written.
func (l *Link) Sent() uint32 {
	return l.enc.Sent()
}

// Run writes queued events until ctx is done.
func (l *Link) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-l.queue:
			if err := l.enc.Send(msg.id, msg.args[:msg.n]...); err != nil {
				l.logger.Warn("telemetry write failed", "id", msg.id, "error", err)
			}
		}
	}
}

// RegisterCommands installs the host commands that steer c.
func RegisterCommands(reg *core.CommandRegistry, c *Consumer) error {
	move := func(data *[]byte) error {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		if v > 0xFF {
			return fmt.Errorf("%w: %#x", ErrUnknownCommand, v)
		}
		return c.Request(Command(v))
	}
	setMode := func(data *[]byte) error {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		return c.SetMode(Mode(v))
	}

	for _, h := range []struct {
		id      uint16
		handler core.CommandHandler
	}{
		{protocol.MsgMove, move},
		{protocol.MsgSetMode, setMode},
	} {
		def, _ := protocol.Lookup(h.id)
		if err := reg.Register(def.ID, def.Name, def.Format, h.handler); err != nil {
			return fmt.Errorf("register %s: %w", def.Name, err)
		}
	}
	return nil
}

// ServeCommands reads command frames from r and dispatches them through
// reg until r fails or ctx is done. A frame may carry several commands.
func ServeCommands(ctx context.Context, r io.Reader, reg *core.CommandRegistry, logger *slog.Logger) error {
	if logger == nil {
		logger = discardLogger
	}
	dec := protocol.NewDecoder(r)
	for {
		m, err := dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		data := m.Payload
		for len(data) > 0 {
			id, err := protocol.DecodeVLQUint(&data)
			if err != nil {
				logger.Warn("malformed command frame", "seq", m.Sequence, "error", err)
				break
			}
			if err := reg.Dispatch(uint16(id), &data); err != nil {
				logger.Warn("command rejected", "id", id, "error", err)
				break
			}
		}
	}
}
