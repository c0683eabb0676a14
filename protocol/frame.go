package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

var (
	ErrMessageTooLong = errors.New("message exceeds frame size")
	ErrEmptyPayload   = errors.New("frame payload is empty")
)

// AppendFrame appends one frame carrying payload to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	msgLen := MessageHeaderSize + len(payload) + MessageTrailerSize
	if msgLen > MessageLengthMax {
		return dst, fmt.Errorf("%w: %d bytes (max %d)", ErrMessageTooLong, msgLen, MessageLengthMax)
	}

	start := len(dst)
	dst = append(dst, uint8(msgLen), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc&0xFF), MessageValueSync), nil
}

// Encoder writes framed messages to a stream. It is safe for concurrent
// use; each message goes out in a single Write.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	seq     uint8
	scratch ScratchOutput
	frame   []byte
	sent    uint32
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:     w,
		seq:   MessageDest,
		frame: make([]byte, 0, MessageLengthMax),
	}
}

// Send writes message id with its arguments in one frame.
func (e *Encoder) Send(id uint16, args ...uint32) error {
	return e.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(id))
		EncodeArgs(output, args...)
	})
}

// EncodeFrame builds a payload with fill and writes it as one frame.
func (e *Encoder) EncodeFrame(fill func(output OutputBuffer)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.scratch.Reset()
	fill(&e.scratch)
	payload := e.scratch.Result()
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	frame, err := AppendFrame(e.frame[:0], e.seq, payload)
	if err != nil {
		return err
	}
	n, err := e.w.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(frame))
	}

	e.seq = NextSequence(e.seq)
	e.sent++
	return nil
}

// Sent returns the number of frames written.
func (e *Encoder) Sent() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent
}

// ParserStats counts what the parser saw.
type ParserStats struct {
	Frames  uint32 // valid frames delivered
	Errors  uint32 // framing or CRC errors
	Dropped uint32 // bytes discarded while resynchronising
}

// Parser reassembles frames from a byte stream. After a framing or CRC
// error it discards input up to the next sync byte.
type Parser struct {
	fifo   *FifoBuffer
	synced bool
	stats  ParserStats
}

// NewParser creates a parser with room for several frames.
func NewParser() *Parser {
	return &Parser{
		fifo:   NewFifoBuffer(4 * MessageLengthMax),
		synced: true,
	}
}

// Feed pushes data through the parser and calls fn for every complete
// frame. The payload passed to fn is only valid during the call.
func (p *Parser) Feed(data []byte, fn func(Message)) {
	for len(data) > 0 {
		n := p.fifo.Write(data)
		data = data[n:]
		p.scan(fn)
	}
}

// Stats returns the parser's counters.
func (p *Parser) Stats() ParserStats {
	return p.stats
}

// Reset drops buffered input.
func (p *Parser) Reset() {
	p.fifo.Reset()
	p.synced = true
}

func (p *Parser) scan(fn func(Message)) {
	if p.fifo.IsEmpty() {
		return
	}
	data := p.fifo.Data()

	for len(data) > 0 {
		if !p.synced {
			syncPos := -1
			for i, b := range data {
				if b == MessageValueSync {
					syncPos = i
					break
				}
			}
			if syncPos >= 0 {
				p.stats.Dropped += uint32(syncPos + 1)
				data = data[syncPos+1:]
				p.synced = true
			} else {
				p.stats.Dropped += uint32(len(data))
				data = nil
			}
			continue
		}

		// Skip leading sync bytes
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}

		if len(data) < MessageLengthMin {
			break
		}

		msgLen := int(data[MessagePositionLen])
		if msgLen < MessageLengthMin || msgLen > MessageLengthMax {
			p.desync()
			continue
		}

		seq := data[MessagePositionSeq]
		if seq&^MessageSeqMask != MessageDest {
			p.desync()
			continue
		}

		if len(data) < msgLen {
			break
		}

		if data[msgLen-MessageTrailerSync] != MessageValueSync {
			p.desync()
			continue
		}

		frameCRC := uint16(data[msgLen-MessageTrailerCRC])<<8 |
			uint16(data[msgLen-MessageTrailerCRC+1])
		if frameCRC != CRC16(data[:msgLen-MessageTrailerSize]) {
			p.desync()
			continue
		}

		payload := data[MessageHeaderSize : msgLen-MessageTrailerSize]
		data = data[msgLen:]
		p.stats.Frames++
		fn(Message{Sequence: seq, Payload: payload})
	}

	consumed := p.fifo.Available() - len(data)
	if consumed > 0 {
		p.fifo.Pop(consumed)
	}
}

func (p *Parser) desync() {
	p.synced = false
	p.stats.Errors++
}

// Decoder reads frames from a stream.
type Decoder struct {
	r       io.Reader
	parser  *Parser
	buf     []byte
	pending []Message
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:      r,
		parser: NewParser(),
		buf:    make([]byte, 256),
	}
}

// Next returns the next valid frame. It returns the reader's error, such
// as io.EOF, once no complete frame is left.
func (d *Decoder) Next() (Message, error) {
	for len(d.pending) == 0 {
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.parser.Feed(d.buf[:n], func(m Message) {
				m.Payload = append([]byte(nil), m.Payload...)
				d.pending = append(d.pending, m)
			})
		}
		if err != nil && len(d.pending) == 0 {
			return Message{}, err
		}
	}
	m := d.pending[0]
	d.pending = d.pending[1:]
	return m, nil
}

// Stats returns the underlying parser's counters.
func (d *Decoder) Stats() ParserStats {
	return d.parser.Stats()
}
