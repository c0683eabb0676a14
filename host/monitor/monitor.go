// Package monitor is the host end of the telemetry link: it decodes the
// robot's frames, keeps running statistics, records sessions and sends
// drive commands.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sonarbot/host/serial"
	"sonarbot/protocol"
)

var (
	ErrClosed         = errors.New("monitor closed")
	ErrInvalidCommand = errors.New("invalid drive command")
)

// Handler is called for every decoded message from the robot.
type Handler func(protocol.Event)

// Stats summarises the telemetry received so far.
type Stats struct {
	Samples       uint64
	Decisions     uint64
	Blinks        uint64
	BadMessages   uint64
	Failures      uint32 // robot's echo failure counter
	LastTick      uint32
	LastDistance  uint32 // ticks
	LastCommand   byte
	LastDelayMS   uint32
	ParserErrors  uint32
	DroppedBytes  uint32
	CommandsSent  uint32
	LastMessageAt time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithRecorder records every message in and out.
func WithRecorder(r *Recorder) Option {
	return func(m *Monitor) { m.recorder = r }
}

// WithSession overrides the generated session id.
func WithSession(id string) Option {
	return func(m *Monitor) { m.session = id }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor is a connection to a robot's telemetry link.
type Monitor struct {
	port     io.ReadWriteCloser
	enc      *protocol.Encoder
	dec      *protocol.Decoder
	session  string
	recorder *Recorder
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	stats Stats

	closeOnce sync.Once
}

// New creates a monitor on an open port. Every monitor has a session id,
// generated unless WithSession is given.
func New(port io.ReadWriteCloser, opts ...Option) *Monitor {
	m := &Monitor{
		port:    port,
		enc:     protocol.NewEncoder(port),
		dec:     protocol.NewDecoder(port),
		session: uuid.New().String(),
		logger:  slog.New(slog.DiscardHandler),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect opens the serial port described by cfg and wraps it.
func Connect(cfg *serial.Config, opts ...Option) (*Monitor, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port, opts...), nil
}

// Session returns the session id.
func (m *Monitor) Session() string {
	return m.session
}

// Run reads telemetry until the port fails, is closed or ctx is done,
// calling handler for every message. handler may be nil. Reaching the end
// of the stream returns nil.
func (m *Monitor) Run(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := m.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return fmt.Errorf("read telemetry: %w", err)
		}

		ev, err := protocol.DecodeEvent(msg)
		if err != nil {
			m.mu.Lock()
			m.stats.BadMessages++
			m.mu.Unlock()
			m.logger.Warn("undecodable telemetry", "seq", msg.Sequence, "error", err)
			continue
		}

		at := m.now()
		m.update(ev, at)
		if m.recorder != nil {
			if err := m.recorder.Record(at, DirectionIn, ev); err != nil {
				m.logger.Error("recording telemetry", "error", err)
			}
		}
		if handler != nil {
			handler(ev)
		}
	}
}

func (m *Monitor) update(ev protocol.Event, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &m.stats
	s.LastMessageAt = at
	switch ev.ID {
	case protocol.MsgSample:
		s.Samples++
		s.LastTick, s.LastDistance, s.Failures = ev.Args[0], ev.Args[1], ev.Args[2]
	case protocol.MsgDecision:
		s.Decisions++
		s.LastTick, s.LastDistance, s.LastCommand = ev.Args[0], ev.Args[1], byte(ev.Args[2])
	case protocol.MsgBlink:
		s.Blinks++
		s.LastTick, s.LastDelayMS = ev.Args[0], ev.Args[1]
	}
	ps := m.dec.Stats()
	s.ParserErrors, s.DroppedBytes = ps.Errors, ps.Dropped
}

// Stats returns a snapshot of the telemetry statistics.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Move asks the robot to drive with one of F, L, B, R, S. The robot only
// follows it in manual mode.
func (m *Monitor) Move(cmd byte) error {
	switch cmd {
	case 'F', 'L', 'B', 'R', 'S':
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCommand, cmd)
	}
	return m.send(protocol.MsgMove, uint32(cmd))
}

// SetManual switches the robot between manual and automatic driving.
func (m *Monitor) SetManual(manual bool) error {
	mode := uint32(protocol.ModeAuto)
	if manual {
		mode = protocol.ModeManual
	}
	return m.send(protocol.MsgSetMode, mode)
}

func (m *Monitor) send(id uint16, args ...uint32) error {
	if err := m.enc.Send(id, args...); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	m.mu.Lock()
	m.stats.CommandsSent++
	m.mu.Unlock()

	if m.recorder != nil {
		def, _ := protocol.Lookup(id)
		ev := protocol.Event{ID: id, Name: def.Name, Args: args}
		if err := m.recorder.Record(m.now(), DirectionOut, ev); err != nil {
			m.logger.Error("recording command", "error", err)
		}
	}
	return nil
}

// Close closes the port and the recorder.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		err = m.port.Close()
		if m.recorder != nil {
			err = errors.Join(err, m.recorder.Close())
		}
	})
	return err
}
