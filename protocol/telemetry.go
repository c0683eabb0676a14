package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMessage = errors.New("unknown message id")
	ErrTrailingData   = errors.New("unexpected data after message arguments")
)

// Message ids.
const (
	MsgSample   uint16 = 1 // robot to host
	MsgDecision uint16 = 2 // robot to host
	MsgBlink    uint16 = 3 // robot to host
	MsgMove     uint16 = 4 // host to robot
	MsgSetMode  uint16 = 5 // host to robot
)

// Mode values carried by set_mode.
const (
	ModeAuto   = 0
	ModeManual = 1
)

// MessageDef describes one message type.
type MessageDef struct {
	ID     uint16
	Name   string
	Format string // dictionary format, one field per argument
}

// Fields returns the argument names from the format string.
func (d MessageDef) Fields() []string {
	if d.Format == "" {
		return nil
	}
	parts := strings.Fields(d.Format)
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i], _, _ = strings.Cut(p, "=")
	}
	return names
}

// Messages lists every message the link carries, by id.
var Messages = []MessageDef{
	{ID: MsgSample, Name: "sample", Format: "tick=%u distance_ticks=%u failures=%u"},
	{ID: MsgDecision, Name: "decision", Format: "tick=%u distance_ticks=%u cmd=%c"},
	{ID: MsgBlink, Name: "blink", Format: "tick=%u delay_ms=%u"},
	{ID: MsgMove, Name: "move", Format: "cmd=%c"},
	{ID: MsgSetMode, Name: "set_mode", Format: "mode=%u"},
}

// Lookup returns the definition of message id.
func Lookup(id uint16) (MessageDef, bool) {
	for _, d := range Messages {
		if d.ID == id {
			return d, true
		}
	}
	return MessageDef{}, false
}

// Event is a decoded message.
type Event struct {
	Sequence uint8
	ID       uint16
	Name     string
	Args     []uint32
}

// Arg returns the named argument.
func (e Event) Arg(name string) (uint32, bool) {
	def, ok := Lookup(e.ID)
	if !ok {
		return 0, false
	}
	for i, f := range def.Fields() {
		if f == name && i < len(e.Args) {
			return e.Args[i], true
		}
	}
	return 0, false
}

// String formats the event like a dictionary line with values filled in.
func (e Event) String() string {
	def, ok := Lookup(e.ID)
	if !ok {
		return fmt.Sprintf("msg%d %v", e.ID, e.Args)
	}
	var b strings.Builder
	b.WriteString(def.Name)
	for i, f := range strings.Fields(def.Format) {
		if i >= len(e.Args) {
			break
		}
		name, verb, _ := strings.Cut(f, "=")
		if verb == "%c" {
			fmt.Fprintf(&b, " %s=%c", name, rune(e.Args[i]))
		} else {
			fmt.Fprintf(&b, " %s=%d", name, e.Args[i])
		}
	}
	return b.String()
}

// DecodeEvent decodes the single message carried by m.
func DecodeEvent(m Message) (Event, error) {
	data := m.Payload
	id, err := DecodeVLQUint(&data)
	if err != nil {
		return Event{}, fmt.Errorf("message id: %w", err)
	}
	def, ok := Lookup(uint16(id))
	if !ok {
		return Event{}, fmt.Errorf("%w: %d", ErrUnknownMessage, id)
	}
	args, err := DecodeArgs(&data, len(def.Fields()))
	if err != nil {
		return Event{}, fmt.Errorf("%s arguments: %w", def.Name, err)
	}
	if len(data) != 0 {
		return Event{}, fmt.Errorf("%s: %w", def.Name, ErrTrailingData)
	}
	return Event{Sequence: m.Sequence, ID: def.ID, Name: def.Name, Args: args}, nil
}
