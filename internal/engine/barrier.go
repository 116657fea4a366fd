package engine

import (
	"fmt"

	"github.com/roach88/loopsched/internal/ir"
)

// HazardKind names the access pattern that makes a barrier necessary.
type HazardKind string

const (
	HazardRAW HazardKind = "read-after-write"
	HazardWAR HazardKind = "write-after-read"
	HazardWAW HazardKind = "write-after-write"
)

// Hazard is a conflicting pair of accesses to a shared variable.
type Hazard struct {
	Target string
	Source string
	Var    string
	Kind   HazardKind
}

func (h Hazard) String() string {
	return fmt.Sprintf("%s on %s (%s after %s)", h.Kind, h.Var, h.Target, h.Source)
}

// barrierNeedingDependency reports the hazard that forces a barrier
// between source and a later target. Unless unordered is set, a hazard
// only exists when target declares source as a dependency. An
// instruction never conflicts with itself.
func barrierNeedingDependency(k *kernelView, target, source ir.Instruction, unordered bool) *Hazard {
	if target.ID == source.ID {
		return nil
	}
	if !unordered && !target.DependsOn(source.ID) {
		return nil
	}

	tw, tr := k.sharedWrites(target), k.sharedReads(target)
	sw, sr := k.sharedWrites(source), k.sharedReads(source)

	if v := tr.intersect(sw).sorted(); len(v) > 0 {
		return &Hazard{Target: target.ID, Source: source.ID, Var: v[0], Kind: HazardRAW}
	}
	if v := tw.intersect(sr).sorted(); len(v) > 0 {
		return &Hazard{Target: target.ID, Source: source.ID, Var: v[0], Kind: HazardWAR}
	}
	if v := tw.intersect(sw).sorted(); len(v) > 0 {
		return &Hazard{Target: target.ID, Source: source.ID, Var: v[0], Kind: HazardWAW}
	}
	return nil
}

// dependentInSchedule returns the first hazard against sourceID among the
// instructions of sched, scanning up to the first barrier.
func dependentInSchedule(k *kernelView, sourceID string, sched ir.Schedule, unordered bool) *Hazard {
	source, ok := k.insn(sourceID)
	if !ok {
		return nil
	}
	for _, item := range sched {
		switch it := item.(type) {
		case ir.RunInstruction:
			target, ok := k.insn(it.InsnID)
			if !ok {
				continue
			}
			if h := barrierNeedingDependency(k, target, source, unordered); h != nil {
				return h
			}
		case ir.Barrier:
			return nil
		}
	}
	return nil
}

// pendingBarrierState is the per-level state of barrier insertion.
type pendingBarrierState struct {
	level  int
	result ir.Schedule

	// owedWrites holds shared-storage writers not yet followed by a
	// barrier. owedReads holds shared-storage readers likewise; they
	// guard write-after-read pairs but are never reported.
	owedWrites set
	owedReads  set

	loopHadBarrier bool
}

func newPendingBarrierState(level int) *pendingBarrierState {
	return &pendingBarrierState{
		level:      level,
		owedWrites: newSet(),
		owedReads:  newSet(),
	}
}

func (st *pendingBarrierState) owed() set {
	return st.owedWrites.union(st.owedReads)
}

func (st *pendingBarrierState) lastIsBarrier() bool {
	if len(st.result) == 0 {
		return false
	}
	_, ok := st.result[len(st.result)-1].(ir.Barrier)
	return ok
}

func (st *pendingBarrierState) issueBarrier(pre bool, h *Hazard) {
	if st.lastIsBarrier() {
		return
	}
	if pre && (st.loopHadBarrier || st.level == 0) {
		return
	}

	clear(st.owedWrites)
	clear(st.owedReads)

	comment := ""
	if h != nil {
		if pre {
			comment = "pre-barrier: " + h.String()
		} else {
			comment = "dependency: " + h.String()
		}
	}
	st.loopHadBarrier = true
	st.result = append(st.result, ir.Barrier{Comment: comment})
}

// InsertBarriers returns sched with the barriers needed to order
// conflicting shared-storage accesses, and the ids of writers whose
// results were never protected by a following barrier.
//
// sched must be well nested. Barriers already present are kept.
func InsertBarriers(k KernelInfo, sched ir.Schedule) (ir.Schedule, []string) {
	out, owed, _ := insertBarriersAt(newKernelView(k), sched, 0)
	return out, owed.sorted()
}

func insertBarriersAt(k *kernelView, sched ir.Schedule, level int) (ir.Schedule, set, set) {
	st := newPendingBarrierState(level)

	for i := 0; i < len(sched); {
		switch it := sched[i].(type) {
		case ir.EnterLoop:
			loop, next := ir.GatherSubloop(sched, i)
			body, subWrites, subReads := insertBarriersAt(k, loop[1:len(loop)-1], level+1)

			for _, id := range st.owed().sorted() {
				if h := dependentInSchedule(k, id, body, false); h != nil {
					st.issueBarrier(false, h)
					break
				}
			}

			if !st.loopHadBarrier {
				for _, id := range subWrites.sorted() {
					if h := dependentInSchedule(k, id, sched, true); h != nil {
						st.issueBarrier(true, h)
					}
				}
			}

			st.result = append(st.result, loop[0])
			st.result = append(st.result, body...)
			st.result = append(st.result, loop[len(loop)-1])
			st.owedWrites.addAll(subWrites)
			st.owedReads.addAll(subReads)
			i = next

		case ir.RunInstruction:
			insn, ok := k.insn(it.InsnID)
			if !ok {
				st.result = append(st.result, it)
				i++
				continue
			}

			for _, dep := range k.deps[insn.ID].intersect(st.owed()).sorted() {
				source, _ := k.insn(dep)
				if h := barrierNeedingDependency(k, insn, source, false); h != nil {
					st.issueBarrier(false, h)
				}
			}

			writes := len(k.sharedWrites(insn)) > 0
			if writes {
				if h := dependentInSchedule(k, insn.ID, sched, true); h != nil {
					st.issueBarrier(true, h)
				}
			}
			st.result = append(st.result, it)
			if writes {
				st.owedWrites.add(insn.ID)
			}
			// A dependent writer must not overwrite this read before every
			// work item has done it (write-after-read).
			if len(k.sharedReads(insn)) > 0 {
				st.owedReads.add(insn.ID)
			}
			i++

		case ir.Barrier:
			if !st.lastIsBarrier() {
				st.result = append(st.result, it)
			}
			clear(st.owedWrites)
			clear(st.owedReads)
			st.loopHadBarrier = true
			i++

		case ir.LeaveLoop:
			panic(fmt.Sprintf("unbalanced leave of loop %q at index %d", it.Iname, i))
		}
	}

	return st.result, st.owedWrites, st.owedReads
}
