package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Schedules = []ScheduleOutcome{
		{Dump: "a | b", Owed: []string{"b"}, Barriers: 1},
		{Dump: "<i> a </i> b", Barriers: 0, Violations: []string{"coverage: b missing"}},
	}
	return r
}

func TestEvaluateAssertions_Passing(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertScheduleCount, Count: 2},
		{Type: AssertFirstSchedule, Schedule: "a | b"},
		{Type: AssertAnySchedule, Schedule: "<i> a </i> b"},
		{Type: AssertBarrierCount, Count: 1},
		{Type: AssertBarrierCount, Index: 1, Count: 0},
		{Type: AssertOwedContains, Insn: "b"},
		{Type: AssertOwedEmpty, Index: 1},
	})
	assert.Empty(t, errs)
}

func TestEvaluateAssertions_Failing(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertScheduleCount, Count: 1},
		{Type: AssertAnySchedule, Schedule: "b a"},
		{Type: AssertNoSchedule},
		{Type: AssertValid},
		{Type: "bogus"},
	})
	require.Len(t, errs, 5)
	assert.Contains(t, errs[0], "Expected: 1 schedules")
	assert.Contains(t, errs[1], "not among produced schedules")
	assert.Contains(t, errs[2], "search exhausted")
	assert.Contains(t, errs[3], "schedule 1: coverage: b missing")
	assert.Contains(t, errs[4], `unknown assertion type "bogus"`)
}

func TestAssertNoSchedule_LongestDeadEnd(t *testing.T) {
	r := NewResult()
	r.NoSchedule = true
	r.LongestDeadEnd = "<i> a"

	assert.NoError(t, assertNoSchedule(r, Assertion{Type: AssertNoSchedule, Schedule: "<i> a"}))
	err := assertNoSchedule(r, Assertion{Type: AssertNoSchedule, Schedule: "<i>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `longest dead end "<i> a"`)
}

func TestAssertionError_ListsSchedules(t *testing.T) {
	err := failure(sampleResult(), AssertFirstSchedule, "x", "y")
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: first_schedule")
	assert.Contains(t, msg, "[0] a | b")
	assert.Contains(t, msg, "[1] <i> a </i> b")
}
