package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/loopsched/internal/ir"
	"github.com/roach88/loopsched/internal/testutil"
)

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	r.Start()
	r.Stop()
	r.Done()
	r.logSuccess()
	r.logDeadEnd(nil)
	r.tracef("x")
	r.pause()
	r.SetDebugLength(1)

	assert.Zero(t, r.Successes())
	assert.Zero(t, r.DeadEnds())
	assert.Nil(t, r.LongestDeadEnd())
	assert.False(t, r.Interactive())
	assert.False(t, r.debugging(10))
	assert.Zero(t, r.Elapsed())
}

func TestRecorder_TracksLongestDeadEnd(t *testing.T) {
	r := NewRecorder()
	r.logDeadEnd(run("a"))
	r.logDeadEnd(run("a", "b", "c"))
	r.logDeadEnd(run("x", "y"))

	assert.Equal(t, 3, r.DeadEnds())
	assert.Equal(t, "a b c", ir.DumpSchedule(r.LongestDeadEnd()))
}

func TestRecorder_ProgressLine(t *testing.T) {
	var out bytes.Buffer
	clock := testutil.NewFakeClock(time.Second)
	r := NewRecorder(WithProgress(&out), WithNow(clock.Now))

	for range 3 {
		r.logSuccess()
	}
	r.logDeadEnd(run("a", "b"))
	for range 45 {
		r.logDeadEnd(run("a"))
	}
	assert.Empty(t, out.String(), "49 outcomes is not a progress boundary")

	clock.Advance(5 * time.Second)
	r.logDeadEnd(run("a"))
	assert.Equal(t, "\rscheduling... 3 successes, 47 dead ends (longest 2)", out.String())

	out.Reset()
	r.Stop()
	assert.Contains(t, out.String(), "\n", "stopping clears the status line")

	out.Reset()
	r.Done()
	assert.Contains(t, out.String(), "scheduler finished")
}

func TestRecorder_NoProgressWhenFast(t *testing.T) {
	var out bytes.Buffer
	clock := testutil.NewFakeClock(0)
	r := NewRecorder(WithProgress(&out), WithNow(clock.Now))

	for range 50 {
		r.logSuccess()
	}
	r.Done()
	assert.Empty(t, out.String())
}

func TestRecorder_ElapsedExcludesStoppedTime(t *testing.T) {
	clock := testutil.NewFakeClock(0)
	r := NewRecorder(WithNow(clock.Now))

	clock.Advance(2 * time.Second)
	r.Stop()
	clock.Advance(time.Hour)
	r.Start()
	clock.Advance(time.Second)

	assert.Equal(t, 3*time.Second, r.Elapsed())
}

func TestRecorder_DebugTraceAndPause(t *testing.T) {
	var trace bytes.Buffer
	pauses := 0
	r := NewRecorder(WithTrace(&trace), WithDebugLength(0), WithInteractive(func() { pauses++ }))

	k := testutil.NewKernel("traced").
		Iname("i").
		Insn("a", "x", testutil.Within("i")).
		Build()
	for range Search(context.Background(), k, nil, false, r) {
	}

	assert.True(t, r.Interactive())
	assert.Contains(t, trace.String(), "CURRENT SCHEDULE: <i> a")
	assert.Contains(t, trace.String(), `scheduling "a"`)
	assert.Contains(t, trace.String(), `instruction "a" needs inames i`)
	assert.Positive(t, pauses)
}

func TestRecorder_DebugLengthGatesTrace(t *testing.T) {
	var trace bytes.Buffer
	r := NewRecorder(WithTrace(&trace))
	assert.False(t, r.debugging(100))

	r.SetDebugLength(3)
	assert.False(t, r.debugging(2))
	assert.True(t, r.debugging(3))
	assert.Empty(t, trace.String())
}
