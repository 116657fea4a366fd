package engine

import (
	"fmt"
	"strings"

	"github.com/roach88/loopsched/internal/ir"
)

// Rule names reported in a Violation.
const (
	RuleCoverage         = "coverage"
	RuleDependencyOrder  = "dependency_order"
	RuleNesting          = "nesting"
	RuleEmptyLoop        = "empty_loop"
	RuleInameExactness   = "iname_exactness"
	RuleBarrierSoundness = "barrier_soundness"
	RuleAdjacentBarriers = "adjacent_barriers"
)

// CheckSchedule verifies the structural rules every complete schedule
// must obey: each instruction runs exactly once after its dependencies,
// loops are balanced and non-empty, and each instruction runs under
// exactly the loops it needs, up to its boostable inames.
func CheckSchedule(k KernelInfo, sched ir.Schedule) []Violation {
	v := newKernelView(k)
	var out []Violation

	runAt := make(map[string]int)
	var stack []string
	ranInLoop := []int{0}

	for idx, item := range sched {
		switch it := item.(type) {
		case ir.EnterLoop:
			if v.parallel.has(it.Iname) {
				out = append(out, Violation{RuleNesting, idx, fmt.Sprintf("parallel iname %q entered as a loop", it.Iname)})
			}
			stack = append(stack, it.Iname)
			ranInLoop = append(ranInLoop, 0)

		case ir.LeaveLoop:
			if len(stack) == 0 || stack[len(stack)-1] != it.Iname {
				out = append(out, Violation{RuleNesting, idx, fmt.Sprintf("leave of %q does not match innermost open loop", it.Iname)})
				continue
			}
			n := ranInLoop[len(ranInLoop)-1]
			if n == 0 {
				out = append(out, Violation{RuleEmptyLoop, idx, fmt.Sprintf("loop %q runs no instruction", it.Iname)})
			}
			stack = stack[:len(stack)-1]
			ranInLoop = ranInLoop[:len(ranInLoop)-1]
			ranInLoop[len(ranInLoop)-1] += n

		case ir.RunInstruction:
			ranInLoop[len(ranInLoop)-1]++
			if _, ok := v.insn(it.InsnID); !ok {
				out = append(out, Violation{RuleCoverage, idx, fmt.Sprintf("unknown instruction %q", it.InsnID)})
				continue
			}
			if _, dup := runAt[it.InsnID]; dup {
				out = append(out, Violation{RuleCoverage, idx, fmt.Sprintf("instruction %q runs more than once", it.InsnID)})
				continue
			}
			for _, dep := range v.deps[it.InsnID].sorted() {
				if _, ok := runAt[dep]; !ok {
					out = append(out, Violation{RuleDependencyOrder, idx, fmt.Sprintf("instruction %q runs before its dependency %q", it.InsnID, dep)})
				}
			}
			runAt[it.InsnID] = idx

			boost := v.boost[it.InsnID]
			have := newSet(stack...).minus(v.parallel).minus(boost)
			want := v.inames[it.InsnID].minus(v.parallel).minus(boost)
			if !have.equal(want) {
				out = append(out, Violation{RuleInameExactness, idx, fmt.Sprintf("instruction %q runs under [%s] but needs [%s]",
					it.InsnID, strings.Join(have.sorted(), ","), strings.Join(want.sorted(), ","))})
			}
		}
	}

	if len(stack) > 0 {
		out = append(out, Violation{RuleNesting, -1, fmt.Sprintf("loops left open: %s", strings.Join(stack, ","))})
	}
	for _, insn := range v.insns {
		if _, ok := runAt[insn.ID]; !ok {
			out = append(out, Violation{RuleCoverage, -1, fmt.Sprintf("instruction %q never runs", insn.ID)})
		}
	}
	return out
}

// CheckBarriers verifies a schedule after barrier insertion: every
// declared dependency with a shared-storage hazard has a barrier between
// its two instructions, and no two barriers are adjacent.
func CheckBarriers(k KernelInfo, sched ir.Schedule) []Violation {
	v := newKernelView(k)
	var out []Violation

	runAt := make(map[string]int)
	barrierAt := make([]int, 0)
	for idx, item := range sched {
		switch it := item.(type) {
		case ir.RunInstruction:
			runAt[it.InsnID] = idx
		case ir.Barrier:
			if n := len(barrierAt); n > 0 && barrierAt[n-1] == idx-1 {
				out = append(out, Violation{RuleAdjacentBarriers, idx, "barrier immediately follows another barrier"})
			}
			barrierAt = append(barrierAt, idx)
		}
	}

	for _, target := range v.insns {
		tpos, ok := runAt[target.ID]
		if !ok {
			continue
		}
		for _, dep := range v.deps[target.ID].sorted() {
			source, ok := v.insn(dep)
			if !ok {
				continue
			}
			spos, ok := runAt[dep]
			if !ok || spos > tpos {
				continue
			}
			h := barrierNeedingDependency(v, target, source, false)
			if h == nil {
				continue
			}
			if !barrierBetween(barrierAt, spos, tpos) {
				out = append(out, Violation{RuleBarrierSoundness, tpos, fmt.Sprintf("no barrier protects %s", h)})
			}
		}
	}
	return out
}

func barrierBetween(barrierAt []int, from, to int) bool {
	for _, b := range barrierAt {
		if b > from && b < to {
			return true
		}
	}
	return false
}

// VerifySchedule runs CheckSchedule and CheckBarriers and reports any
// violation as a *ScheduleError with code INVALID_SCHEDULE.
func VerifySchedule(k *ir.Kernel, sched ir.Schedule) error {
	violations := CheckSchedule(k, sched)
	violations = append(violations, CheckBarriers(k, sched)...)
	if len(violations) == 0 {
		return nil
	}
	return NewInvalidScheduleError(k.Name, violations)
}
