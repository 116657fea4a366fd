package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/loopsched/internal/ir"
	"github.com/roach88/loopsched/internal/testutil"
)

func rules(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Rule
	}
	return out
}

func checkKernel() *ir.Kernel {
	return testutil.NewKernel("check").
		Iname("i").
		Parallel("lid", "l.0").
		Insn("a", "x", testutil.Within("i", "lid")).
		Insn("b", "y", testutil.After("a"), testutil.Boostable("i")).
		Build()
}

func TestCheckSchedule_Valid(t *testing.T) {
	k := checkKernel()

	valid := ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}}
	assert.Empty(t, CheckSchedule(k, valid))

	boosted := ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.RunInstruction{InsnID: "b"}, ir.LeaveLoop{Iname: "i"}}
	assert.Empty(t, CheckSchedule(k, boosted), "b may run under its boostable iname")
}

func TestCheckSchedule_Violations(t *testing.T) {
	k := checkKernel()

	tests := []struct {
		name  string
		sched ir.Schedule
		rule  string
	}{
		{
			name:  "missing instruction",
			sched: ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}},
			rule:  RuleCoverage,
		},
		{
			name:  "duplicate run",
			sched: ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}},
			rule:  RuleCoverage,
		},
		{
			name:  "dependency after dependent",
			sched: ir.Schedule{ir.RunInstruction{InsnID: "b"}, ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}},
			rule:  RuleDependencyOrder,
		},
		{
			name:  "wrong loop",
			sched: ir.Schedule{ir.RunInstruction{InsnID: "a"}, ir.RunInstruction{InsnID: "b"}},
			rule:  RuleInameExactness,
		},
		{
			name:  "mismatched leave",
			sched: ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "j"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}},
			rule:  RuleNesting,
		},
		{
			name:  "unclosed loop",
			sched: ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.RunInstruction{InsnID: "b"}},
			rule:  RuleNesting,
		},
		{
			name:  "parallel entered",
			sched: ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.EnterLoop{Iname: "lid"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "lid"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}},
			rule:  RuleNesting,
		},
		{
			name:  "empty loop",
			sched: ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}, ir.EnterLoop{Iname: "i"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}},
			rule:  RuleEmptyLoop,
		},
		{
			name:  "unknown instruction",
			sched: ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}, ir.RunInstruction{InsnID: "zz"}},
			rule:  RuleCoverage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckSchedule(k, tt.sched)
			require.NotEmpty(t, got)
			assert.Contains(t, rules(got), tt.rule)
		})
	}
}

func TestCheckSchedule_NestedRunsCountForOuterLoop(t *testing.T) {
	k := testutil.NewKernel("nest").
		Iname("i").
		Iname("j").
		Insn("a", "x", testutil.Within("i", "j")).
		Build()

	sched := ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.EnterLoop{Iname: "j"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "j"}, ir.LeaveLoop{Iname: "i"}}
	assert.Empty(t, CheckSchedule(k, sched))
}

func TestCheckBarriers(t *testing.T) {
	k := testutil.NewKernel("barriers").
		Local("s").
		Insn("a", "s").
		Insn("b", "x", testutil.After("a"), testutil.Reading("s")).
		Build()

	missing := CheckBarriers(k, run("a", "b"))
	require.Len(t, missing, 1)
	assert.Equal(t, RuleBarrierSoundness, missing[0].Rule)
	assert.Contains(t, missing[0].Message, "read-after-write on s")

	assert.Empty(t, CheckBarriers(k, ir.Schedule{ir.RunInstruction{InsnID: "a"}, ir.Barrier{}, ir.RunInstruction{InsnID: "b"}}))

	doubled := CheckBarriers(k, ir.Schedule{ir.RunInstruction{InsnID: "a"}, ir.Barrier{}, ir.Barrier{}, ir.RunInstruction{InsnID: "b"}})
	assert.Equal(t, []string{RuleAdjacentBarriers}, rules(doubled))
}

func TestVerifySchedule(t *testing.T) {
	k := checkKernel()

	err := VerifySchedule(k, ir.Schedule{ir.RunInstruction{InsnID: "a"}})
	require.Error(t, err)
	assert.True(t, IsInvalidScheduleError(err))

	valid := ir.Schedule{ir.EnterLoop{Iname: "i"}, ir.RunInstruction{InsnID: "a"}, ir.LeaveLoop{Iname: "i"}, ir.RunInstruction{InsnID: "b"}}
	assert.NoError(t, VerifySchedule(k, valid))
}
