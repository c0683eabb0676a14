package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracerKeepsNewestEvents(t *testing.T) {
	var tr Tracer
	for i := 0; i < TimingRingSize+5; i++ {
		tr.Record(EvtTaskWake, TaskSampler, Ticks(i), uint32(i), 0)
	}

	events := tr.Events()
	require.Len(t, events, TimingRingSize)
	assert.Equal(t, Ticks(5), events[0].Clock, "oldest surviving event")
	assert.Equal(t, Ticks(TimingRingSize+4), events[len(events)-1].Clock)
	assert.Equal(t, uint32(TimingRingSize+5), tr.Total())

	tr.Clear()
	assert.Empty(t, tr.Events())
}

func TestTracerNilIsNoop(t *testing.T) {
	var tr *Tracer
	assert.NotPanics(t, func() { tr.Record(EvtBlink, TaskIndicator, 1, 2, 3) })
}

func TestTracerDump(t *testing.T) {
	var tr Tracer
	tr.Record(EvtCellWrite, TaskSampler, 50, 12, 0)
	tr.Record(EvtEchoTimeout, TaskSampler, 100, 1, 0)

	var lines []string
	tr.Dump(func(s string) { lines = append(lines, s) })

	require.Len(t, lines, 5)
	assert.Equal(t, "[TIMING] CELL_WRITE task=1 clock=50 v1=12 v2=0", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "[TIMING] ECHO_TIMEOUT!"))
}

func TestDebugPrintlnRespectsEnable(t *testing.T) {
	var got []string
	SetDebugWriter(func(s string) { got = append(got, s) })
	t.Cleanup(func() {
		SetDebugWriter(func(string) {})
		SetDebugEnabled(false)
	})

	DebugPrintln("hidden")
	SetDebugEnabled(true)
	DebugPrintln("shown")
	DebugAsync("direct")

	assert.Equal(t, []string{"shown", "direct"}, got)
	assert.True(t, IsDebugEnabled())
}

func TestKV(t *testing.T) {
	assert.Equal(t, "ticks=0", KV("ticks", 0))
	assert.Equal(t, "ticks=4294967295", KV("ticks", 4294967295))
}
