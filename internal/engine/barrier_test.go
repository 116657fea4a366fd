package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopsched/internal/ir"
	"github.com/roach88/loopsched/internal/testutil"
)

func run(ids ...string) ir.Schedule {
	out := make(ir.Schedule, len(ids))
	for i, id := range ids {
		out[i] = ir.RunInstruction{InsnID: id}
	}
	return out
}

func TestInsertBarriers_WriteWriteWithDependency(t *testing.T) {
	k := testutil.NewKernel("ww").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("lid")).
		Insn("b", "s", testutil.Within("lid"), testutil.After("a")).
		Build()

	out, owed := InsertBarriers(k, run("a", "b"))

	assert.Equal(t, "a | b", ir.DumpSchedule(out))
	assert.Equal(t, 1, out.BarrierCount())
	assert.Equal(t, ir.Barrier{Comment: "dependency: write-after-write on s (b after a)"}, out[1])
	// a is protected by the barrier; b, the final writer, never is.
	assert.Equal(t, []string{"b"}, owed)
	assert.Empty(t, CheckBarriers(k, out))
}

func TestInsertBarriers_UnreadWriteStaysOwed(t *testing.T) {
	k := testutil.NewKernel("unread").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("lid")).
		Build()

	out, owed := InsertBarriers(k, run("a"))

	assert.Equal(t, "a", ir.DumpSchedule(out))
	assert.Equal(t, []string{"a"}, owed)
}

func TestInsertBarriers_PrivateStorageNeedsNothing(t *testing.T) {
	k := testutil.NewKernel("private").
		Private("p").
		Insn("a", "p").
		Insn("b", "q", testutil.After("a"), testutil.Reading("p")).
		Build()

	out, owed := InsertBarriers(k, run("a", "b"))

	assert.Equal(t, "a b", ir.DumpSchedule(out))
	assert.Empty(t, owed)
}

func TestInsertBarriers_PreBarrierInsideLoop(t *testing.T) {
	k := testutil.NewKernel("raw").
		Iname("i").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("i", "lid"), testutil.Reading("in")).
		Insn("b", "out", testutil.Within("i", "lid"), testutil.After("a"), testutil.Reading("s")).
		Build()

	sched := ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.RunInstruction{InsnID: "b"}, ir.LeaveLoop{Iname: "i"}}
	out, owed := InsertBarriers(k, sched)

	assert.Equal(t, "<i> | a | b </i>", ir.DumpSchedule(out))
	assert.Equal(t, ir.Barrier{Comment: "pre-barrier: read-after-write on s (b after a)"}, out[1])
	assert.Equal(t, ir.Barrier{Comment: "dependency: read-after-write on s (b after a)"}, out[3])
	assert.Empty(t, owed)
	assert.Empty(t, CheckBarriers(k, out))
}

func TestInsertBarriers_NoPreBarrierAtTopLevel(t *testing.T) {
	k := testutil.NewKernel("raw").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("lid")).
		Insn("b", "out", testutil.Within("lid"), testutil.After("a"), testutil.Reading("s")).
		Build()

	out, owed := InsertBarriers(k, run("a", "b"))

	assert.Equal(t, "a | b", ir.DumpSchedule(out))
	assert.Empty(t, owed)
}

func TestInsertBarriers_WriteAfterRead(t *testing.T) {
	k := testutil.NewKernel("war").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "out", testutil.Within("lid"), testutil.Reading("s")).
		Insn("b", "s", testutil.Within("lid"), testutil.After("a")).
		Build()

	out, owed := InsertBarriers(k, run("a", "b"))

	assert.Equal(t, "a | b", ir.DumpSchedule(out))
	assert.Equal(t, ir.Barrier{Comment: "dependency: write-after-read on s (b after a)"}, out[1])
	assert.Equal(t, []string{"b"}, owed)
	assert.Empty(t, CheckBarriers(k, out))
}

func TestInsertBarriers_BarrierBeforeDependentLoop(t *testing.T) {
	k := testutil.NewKernel("nested").
		Iname("j").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("lid")).
		Insn("b", "out", testutil.Within("j", "lid"), testutil.After("a"), testutil.Reading("s")).
		Build()

	sched := ir.Schedule{ir.RunInstruction{InsnID: "a"}, ir.EnterLoop{Iname: "j"}, ir.RunInstruction{InsnID: "b"}, ir.LeaveLoop{Iname: "j"}}
	out, owed := InsertBarriers(k, sched)

	assert.Equal(t, "a | <j> b </j>", ir.DumpSchedule(out))
	assert.Empty(t, owed)
	assert.Empty(t, CheckBarriers(k, out))
}

func TestInsertBarriers_OwedWriterInsideLoopPropagates(t *testing.T) {
	k := testutil.NewKernel("propagate").
		Iname("i").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("i", "lid")).
		Insn("b", "out", testutil.Within("lid"), testutil.After("a"), testutil.Reading("s")).
		Build()

	sched := ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}}
	out, owed := InsertBarriers(k, sched)

	assert.Equal(t, "<i> a </i> | b", ir.DumpSchedule(out))
	assert.Empty(t, owed)
	assert.Empty(t, CheckBarriers(k, out))
}

func TestInsertBarriers_ExistingBarrierProtects(t *testing.T) {
	k := testutil.NewKernel("existing").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("lid")).
		Insn("b", "out", testutil.Within("lid"), testutil.After("a"), testutil.Reading("s")).
		Build()

	sched := ir.Schedule{ir.RunInstruction{InsnID: "a"}, ir.Barrier{Comment: "manual"}, ir.RunInstruction{InsnID: "b"}}
	out, owed := InsertBarriers(k, sched)

	assert.Equal(t, sched, out)
	assert.Empty(t, owed)
}

func TestInsertBarriers_SelfAccessIsNotAHazard(t *testing.T) {
	k := testutil.NewKernel("self").
		Iname("i").
		Parallel("lid", "l.0").
		Local("s").
		Insn("a", "s", testutil.Within("i", "lid"), testutil.Reading("s")).
		Build()

	sched := ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}}
	out, owed := InsertBarriers(k, sched)

	assert.Equal(t, "<i> a </i>", ir.DumpSchedule(out))
	assert.Equal(t, []string{"a"}, owed)
}

func TestInsertBarriers_UnbalancedLeavePanics(t *testing.T) {
	k := testutil.NewKernel("bad").Insn("a", "x").Build()
	assert.Panics(t, func() {
		InsertBarriers(k, ir.Schedule{ir.LeaveLoop{Iname: "i"}})
	})
}

func TestBarrierNeedingDependency(t *testing.T) {
	k := testutil.NewKernel("h").
		Local("s", "t").
		Insn("w", "s").
		Insn("r", "x", testutil.Reading("s")).
		Insn("rd", "y", testutil.Reading("s"), testutil.After("w")).
		Insn("ww", "s", testutil.After("w")).
		Insn("other", "t", testutil.After("w")).
		Build()
	v := newKernelView(k)
	insn := func(id string) ir.Instruction {
		i, ok := v.insn(id)
		require.True(t, ok)
		return i
	}

	h := barrierNeedingDependency(v, insn("rd"), insn("w"), false)
	require.NotNil(t, h)
	assert.Equal(t, HazardRAW, h.Kind)
	assert.Equal(t, "s", h.Var)

	assert.Nil(t, barrierNeedingDependency(v, insn("r"), insn("w"), false), "no declared dependency")
	require.NotNil(t, barrierNeedingDependency(v, insn("r"), insn("w"), true), "unordered ignores dependencies")

	h = barrierNeedingDependency(v, insn("ww"), insn("w"), false)
	require.NotNil(t, h)
	assert.Equal(t, HazardWAW, h.Kind)

	assert.Nil(t, barrierNeedingDependency(v, insn("other"), insn("w"), false), "different variables")
	assert.Nil(t, barrierNeedingDependency(v, insn("w"), insn("w"), true), "never against itself")
}

func TestDependentInSchedule_StopsAtBarrier(t *testing.T) {
	k := testutil.NewKernel("scan").
		Local("s").
		Insn("w", "s").
		Insn("r", "x", testutil.Reading("s"), testutil.After("w")).
		Build()
	v := newKernelView(k)

	assert.NotNil(t, dependentInSchedule(v, "w", run("r"), false))
	assert.Nil(t, dependentInSchedule(v, "w", ir.Schedule{ir.Barrier{}, ir.RunInstruction{InsnID: "r"}}, false))
	assert.NotNil(t, dependentInSchedule(v, "w", ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "r"}}, false))
}

func TestPendingBarrierState_IssueRules(t *testing.T) {
	st := newPendingBarrierState(0)
	st.owedWrites.add("a")

	st.issueBarrier(true, nil)
	assert.Empty(t, st.result, "pre-barriers are never issued at the top level")
	assert.True(t, st.owedWrites.has("a"))

	st.issueBarrier(false, nil)
	assert.Len(t, st.result, 1)
	assert.Empty(t, st.owedWrites)
	assert.True(t, st.loopHadBarrier)

	st.owedWrites.add("b")
	st.issueBarrier(false, nil)
	assert.Len(t, st.result, 1, "no barrier right after a barrier")

	inner := newPendingBarrierState(1)
	inner.result = append(inner.result, ir.RunInstruction{InsnID: "x"})
	inner.issueBarrier(true, nil)
	assert.Len(t, inner.result, 2)
	inner.result = append(inner.result, ir.RunInstruction{InsnID: "y"})
	inner.issueBarrier(true, nil)
	assert.Len(t, inner.result, 3, "one pre-barrier per loop")
}
