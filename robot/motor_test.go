package robot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarbot/core"
	"sonarbot/sim"
)

type recordingMotor struct {
	name string
	log  *[]string
	err  error
}

func (m recordingMotor) record(what string) error {
	*m.log = append(*m.log, m.name+":"+what)
	return m.err
}

func (m recordingMotor) Forward() error  { return m.record("forward") }
func (m recordingMotor) Backward() error { return m.record("backward") }
func (m recordingMotor) Stop() error     { return m.record("stop") }

func TestDriveMove(t *testing.T) {
	var log []string
	d := NewDrive(recordingMotor{"L", &log, nil}, recordingMotor{"R", &log, nil}, false)

	require.NoError(t, d.Move(Left))
	require.NoError(t, d.Move(Back))
	assert.Equal(t, []string{"L:stop", "R:forward", "L:backward", "R:backward"}, log)
	assert.Equal(t, Back, d.Last())
}

func TestDriveSwap(t *testing.T) {
	var log []string
	d := NewDrive(recordingMotor{"L", &log, nil}, recordingMotor{"R", &log, nil}, true)

	require.NoError(t, d.Move(Right))
	assert.Equal(t, []string{"R:forward", "L:stop"}, log)
}

func TestDriveUnknownCommandLeavesMotors(t *testing.T) {
	var log []string
	d := NewDrive(recordingMotor{"L", &log, nil}, recordingMotor{"R", &log, nil}, false)

	err := d.Move(Command('Q'))
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Empty(t, log)
	assert.Zero(t, d.Last())
}

func TestDriveMotorError(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	d := NewDrive(recordingMotor{"L", &log, boom}, recordingMotor{"R", &log, nil}, false)

	err := d.Move(Forward)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "left motor")
}

func TestHBridgeLevels(t *testing.T) {
	clk := core.NewSimClock(0)
	g := sim.NewGPIO(clk)
	hb := &HBridge{GPIO: g, Enable: 20, Positive: 6, Negative: 13}
	require.NoError(t, hb.Configure())

	levels := func() [3]bool {
		return [3]bool{g.ReadPin(20), g.ReadPin(6), g.ReadPin(13)}
	}

	require.NoError(t, hb.Forward())
	assert.Equal(t, [3]bool{true, true, false}, levels())

	require.NoError(t, hb.Backward())
	assert.Equal(t, [3]bool{true, false, true}, levels())

	require.NoError(t, hb.Stop())
	assert.Equal(t, [3]bool{true, false, false}, levels(), "stop leaves enable alone")
}

func TestHBridgeUnconfigured(t *testing.T) {
	g := sim.NewGPIO(core.NewSimClock(0))
	hb := &HBridge{GPIO: g, Enable: 20, Positive: 6, Negative: 13}
	assert.ErrorIs(t, hb.Forward(), sim.ErrNotConfigured)
}
