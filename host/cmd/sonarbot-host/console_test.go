package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sonarbot/host/monitor"
	"sonarbot/protocol"
)

type fakeController struct {
	moves  []byte
	modes  []bool
	stats  monitor.Stats
	failed error
}

func (f *fakeController) Move(cmd byte) error {
	if f.failed != nil {
		return f.failed
	}
	f.moves = append(f.moves, cmd)
	return nil
}

func (f *fakeController) SetManual(manual bool) error {
	f.modes = append(f.modes, manual)
	return nil
}

func (f *fakeController) Stats() monitor.Stats { return f.stats }
func (f *fakeController) Session() string      { return "abc" }

func TestConsoleCommands(t *testing.T) {
	ctl := &fakeController{}
	var out bytes.Buffer
	c := &console{ctl: ctl, out: &out}

	for _, line := range []string{"manual", "f", "Left", "b", "R", "stop", "auto", "", "session"} {
		assert.False(t, c.execute(line), line)
	}
	assert.Equal(t, []byte("FLBRS"), ctl.moves)
	assert.Equal(t, []bool{true, false}, ctl.modes)
	assert.Contains(t, out.String(), "requested L")
	assert.Contains(t, out.String(), "abc\n")

	assert.True(t, c.execute("quit"))
	assert.True(t, c.execute("  Q "))
}

func TestConsoleUnknownAndErrors(t *testing.T) {
	ctl := &fakeController{failed: assert.AnError}
	var out bytes.Buffer
	c := &console{ctl: ctl, out: &out}

	c.execute("jump")
	c.execute("f")
	assert.Contains(t, out.String(), "Unknown command: jump")
	assert.Contains(t, out.String(), "Error: "+assert.AnError.Error())
}

func TestConsoleStats(t *testing.T) {
	ctl := &fakeController{stats: monitor.Stats{Samples: 4, Decisions: 2, LastDistance: 9, LastCommand: 'F'}}
	var out bytes.Buffer
	c := &console{ctl: ctl, out: &out}

	c.execute("stats")
	assert.Contains(t, out.String(), "samples=4 decisions=2 blinks=0 failures=0")
	assert.Contains(t, out.String(), "distance_ticks=9 cmd=F")
}

func TestPrintEventHidesBlinks(t *testing.T) {
	var out bytes.Buffer
	blink := protocol.Event{ID: protocol.MsgBlink, Name: "blink", Args: []uint32{1, 10}}
	sample := protocol.Event{ID: protocol.MsgSample, Name: "sample", Args: []uint32{1, 2, 0}}

	printEvent(&out, blink, false)
	printEvent(&out, sample, false)
	assert.Equal(t, "sample tick=1 distance_ticks=2 failures=0\n", out.String())

	out.Reset()
	printEvent(&out, blink, true)
	assert.Equal(t, "blink tick=1 delay_ms=10\n", out.String())
}

func TestReplayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.cbor")
	rec, err := monitor.CreateRecorder(path, "11111111-2222")
	require.NoError(t, err)
	at := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, rec.Record(at, monitor.DirectionOut, protocol.Event{ID: protocol.MsgMove, Name: "move", Args: []uint32{'F'}}))
	require.NoError(t, rec.Close())

	var out bytes.Buffer
	require.NoError(t, replayFile(&out, path, ""))
	assert.Equal(t, "07:08:09.000 11111111 OUT move cmd=F\n", out.String())

	_, err = os.Stat(path)
	require.NoError(t, err)
	assert.Error(t, replayFile(&out, filepath.Join(t.TempDir(), "missing"), ""))
}
