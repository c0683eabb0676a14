package monitor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"sonarbot/protocol"
)

// Direction is which way a recorded message travelled.
type Direction uint8

const (
	// DirectionIn is robot to host.
	DirectionIn Direction = 0
	// DirectionOut is host to robot.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Record is one telemetry message as stored in a session file.
// CBOR encoding uses integer keys for compactness.
type Record struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	SessionID string    `cbor:"2,keyasint"`
	Direction Direction `cbor:"3,keyasint"`
	Sequence  uint8     `cbor:"4,keyasint"`
	MessageID uint16    `cbor:"5,keyasint"`
	Name      string    `cbor:"6,keyasint"`
	Args      []uint32  `cbor:"7,keyasint,omitempty"`
}

// Event returns the record as a protocol event.
func (r Record) Event() protocol.Event {
	return protocol.Event{Sequence: r.Sequence, ID: r.MessageID, Name: r.Name, Args: r.Args}
}

var (
	recEncMode cbor.EncMode
	recDecMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	recEncMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	recDecMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create record CBOR decoder mode: %v", err))
	}
}

// Recorder appends records to a stream. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	w       io.Writer
	closer  io.Closer
	encoder *cbor.Encoder
	session string
	count   uint64
	closed  bool
}

// NewRecorder creates a recorder writing session records to w.
func NewRecorder(w io.Writer, session string) *Recorder {
	r := &Recorder{w: w, encoder: recEncMode.NewEncoder(w), session: session}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r
}

// CreateRecorder opens path for appending and records session into it.
func CreateRecorder(path, session string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return NewRecorder(f, session), nil
}

// Record stores ev as seen at the given time.
func (r *Recorder) Record(at time.Time, dir Direction, ev protocol.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	rec := Record{
		Timestamp: at,
		SessionID: r.session,
		Direction: dir,
		Sequence:  ev.Sequence,
		MessageID: ev.ID,
		Name:      ev.Name,
		Args:      ev.Args,
	}
	if err := r.encoder.Encode(rec); err != nil {
		return err
	}
	r.count++
	return nil
}

// Count returns the number of records written.
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the underlying writer if it is closable. It is safe to call
// Close more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// RecordReader iterates over the records of a session file.
type RecordReader struct {
	decoder *cbor.Decoder
	session string
}

// NewRecordReader reads records from r. A non-empty session keeps only
// records of that session.
func NewRecordReader(r io.Reader, session string) *RecordReader {
	return &RecordReader{decoder: recDecMode.NewDecoder(r), session: session}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (rr *RecordReader) Next() (Record, error) {
	for {
		var rec Record
		if err := rr.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if rr.session == "" || rec.SessionID == rr.session {
			return rec, nil
		}
	}
}

// ReadAll returns every remaining record.
func (rr *RecordReader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
