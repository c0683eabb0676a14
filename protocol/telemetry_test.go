package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, id uint16, args ...uint32) Event {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, NewEncoder(&buf).Send(id, args...))
	m, err := NewDecoder(&buf).Next()
	require.NoError(t, err)
	ev, err := DecodeEvent(m)
	require.NoError(t, err)
	return ev
}

func TestDecodeEvent(t *testing.T) {
	ev := roundTrip(t, MsgDecision, 4000000000, 5, 'S')
	assert.Equal(t, "decision", ev.Name)
	assert.Equal(t, []uint32{4000000000, 5, 'S'}, ev.Args)

	cmd, ok := ev.Arg("cmd")
	require.True(t, ok)
	assert.Equal(t, uint32('S'), cmd)
	_, ok = ev.Arg("missing")
	assert.False(t, ok)

	assert.Equal(t, "decision tick=4000000000 distance_ticks=5 cmd=S", ev.String())
}

func TestDecodeEventErrors(t *testing.T) {
	frame := func(payload ...byte) Message {
		return Message{Sequence: MessageDest, Payload: payload}
	}

	_, err := DecodeEvent(frame(42))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = DecodeEvent(frame(byte(MsgBlink), 1))
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	_, err = DecodeEvent(frame(byte(MsgMove), 'F', 0))
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestMessageFields(t *testing.T) {
	def, ok := Lookup(MsgSample)
	require.True(t, ok)
	assert.Equal(t, []string{"tick", "distance_ticks", "failures"}, def.Fields())

	_, ok = Lookup(0)
	assert.False(t, ok)
}
