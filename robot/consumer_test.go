package robot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarbot/core"
	"sonarbot/protocol"
)

func TestDecideThreshold(t *testing.T) {
	tests := []struct {
		v    core.Ticks
		want Command
	}{
		{0, Stop},
		{1, Stop},
		{5, Stop},
		{6, Forward},
		{1000, Forward},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.v, DefaultStopThreshold), "v=%d", tt.v)
	}
}

func TestDecideManual(t *testing.T) {
	for _, cmd := range []Command{Forward, Left, Right} {
		assert.Equal(t, Stop, DecideManual(5, 5, cmd), cmd.String())
		assert.Equal(t, cmd, DecideManual(6, 5, cmd), cmd.String())
	}
	for _, cmd := range []Command{Back, Stop} {
		assert.Equal(t, cmd, DecideManual(0, 5, cmd), cmd.String())
		assert.Equal(t, cmd, DecideManual(100, 5, cmd), cmd.String())
	}
	assert.Equal(t, Stop, DecideManual(100, 5, Command('Q')))
}

func newTestConsumer(clk core.Clock, cell *core.MeasurementCell, moves *[]Command) *Consumer {
	return &Consumer{
		Cell:      cell,
		Clock:     clk,
		Period:    100,
		Threshold: DefaultStopThreshold,
		Drive: moverFunc(func(c Command) error {
			*moves = append(*moves, c)
			return nil
		}),
		TracePin: core.NoPin,
	}
}

func TestConsumerStep(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	cell := core.NewMeasurementCell()
	rep := &recordingReporter{}
	var moves []Command

	c := newTestConsumer(clk, cell, &moves)
	c.Reporter = rep
	c.Tracer = &core.Tracer{}

	for _, v := range []core.Ticks{0, 5, 6, 40, 3} {
		require.NoError(t, cell.Store(ctx, v))
		require.NoError(t, c.Step(ctx, clk.Now()))
	}

	assert.Equal(t, []Command{Stop, Stop, Forward, Forward, Stop}, moves)
	assert.Equal(t, uint32(5), c.Decisions())
	_, decisions, _ := rep.counts()
	assert.Equal(t, 5, decisions)
	assert.Equal(t, core.Ticks(40), rep.decisions[3].Distance)

	// The guard is released after the read.
	g, ok := cell.TryAcquire()
	require.True(t, ok)
	g.Release()
}

func TestConsumerManualMode(t *testing.T) {
	ctx := testContext(t)
	clk := core.NewSimClock(0)
	cell := core.NewMeasurementCell()
	var moves []Command
	c := newTestConsumer(clk, cell, &moves)

	assert.Equal(t, ModeAuto, c.Mode())
	assert.Equal(t, Stop, c.Requested())

	require.NoError(t, c.SetMode(ModeManual))
	require.NoError(t, c.Request(Left))
	require.NoError(t, cell.Store(ctx, 50))
	require.NoError(t, c.Step(ctx, 0))

	require.NoError(t, cell.Store(ctx, 2))
	require.NoError(t, c.Step(ctx, 0))

	require.NoError(t, c.Request(Back))
	require.NoError(t, c.Step(ctx, 0))

	assert.Equal(t, []Command{Left, Stop, Back}, moves)

	assert.ErrorIs(t, c.Request(Command('Z')), ErrUnknownCommand)
	assert.Error(t, c.SetMode(Mode(7)))
}

func TestConsumerCommandHandlers(t *testing.T) {
	var moves []Command
	c := newTestConsumer(core.NewSimClock(0), core.NewMeasurementCell(), &moves)
	reg := core.NewCommandRegistry()
	require.NoError(t, RegisterCommands(reg, c))

	assert.Equal(t, "4 move cmd=%c\n5 set_mode mode=%u\n", reg.GetDictionary())

	encode := func(args ...uint32) *[]byte {
		out := protocol.NewScratchOutput()
		protocol.EncodeArgs(out, args...)
		data := append([]byte(nil), out.Result()...)
		return &data
	}

	require.NoError(t, reg.Dispatch(protocol.MsgSetMode, encode(protocol.ModeManual)))
	require.NoError(t, reg.Dispatch(protocol.MsgMove, encode('R')))
	assert.Equal(t, ModeManual, c.Mode())
	assert.Equal(t, Right, c.Requested())

	assert.ErrorIs(t, reg.Dispatch(protocol.MsgMove, encode('x')), ErrUnknownCommand)
	// 0x146 must not wrap around to 'F'.
	assert.ErrorIs(t, reg.Dispatch(protocol.MsgMove, encode(0x146)), ErrUnknownCommand)
	assert.Equal(t, Right, c.Requested())
	assert.Error(t, reg.Dispatch(protocol.MsgMove, encode()))
	assert.ErrorIs(t, RegisterCommands(reg, c), core.ErrDuplicateCommand)
}

func TestConsumerRunRequiresPeriod(t *testing.T) {
	var moves []Command
	c := newTestConsumer(core.NewSimClock(0), core.NewMeasurementCell(), &moves)
	c.Period = 0
	assert.ErrorIs(t, c.Run(testContext(t)), core.ErrInvalidPeriod)
}
