package robot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActuateTable(t *testing.T) {
	want := map[Command]Actuation{
		Forward: {MotorForward, MotorForward},
		Left:    {MotorStop, MotorForward},
		Back:    {MotorReverse, MotorReverse},
		Right:   {MotorForward, MotorStop},
		Stop:    {MotorStop, MotorStop},
	}
	for _, cmd := range Commands {
		a, ok := Actuate(cmd)
		require.True(t, ok, cmd.String())
		assert.Equal(t, want[cmd], a, cmd.String())

		again, _ := Actuate(cmd)
		assert.Equal(t, a, again, "actuation must be deterministic")
	}
	assert.Len(t, Commands, len(want))
}

func TestActuateUnknown(t *testing.T) {
	for _, b := range []byte{0, 'f', 'X', ' ', 0xFF} {
		_, ok := Actuate(Command(b))
		assert.False(t, ok, "byte %#02x", b)
		assert.False(t, Command(b).Valid())
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{"F", Forward},
		{"f", Forward},
		{"l", Left},
		{"B", Back},
		{"r", Right},
		{"s", Stop},
		{"forward", Forward},
		{"back", Back},
	}
	for _, tt := range tests {
		got, err := ParseCommand(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "x", "FF", "up"} {
		_, err := ParseCommand(bad)
		assert.ErrorIs(t, err, ErrUnknownCommand, bad)
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "left", Left.String())
	assert.Equal(t, "command(0x58)", Command('X').String())
	assert.Equal(t, "reverse", MotorReverse.String())
}
