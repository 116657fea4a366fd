package engine

import (
	"fmt"

	"github.com/roach88/loopsched/internal/ir"
)

// KernelInfo is the read-only view of a kernel the scheduler consumes.
//
// *ir.Kernel satisfies it. Tests and alternative front ends may supply
// their own implementation.
type KernelInfo interface {
	fmt.Stringer

	// InstructionList returns the instructions in declaration order.
	InstructionList() []ir.Instruction

	// InsnInames returns the inames an instruction requires.
	InsnInames(id string) []string

	ParallelInames() []string
	BreakableInames() []string
	LowestPriorityInames() []string

	// LoopNestParents returns the inames that must be active before
	// iname can be entered.
	LoopNestParents(iname string) []string

	// IsShared reports whether a variable lives in workgroup-shared storage.
	IsShared(name string) bool
}

var _ KernelInfo = (*ir.Kernel)(nil)

// kernelView caches the set-valued queries the search repeats at every
// step.
type kernelView struct {
	info   KernelInfo
	insns  []ir.Instruction
	byID   map[string]int
	inames map[string]set
	boost  map[string]set
	deps   map[string]set

	parallel  set
	breakable set
	lowest    []string
	lowestSet set
	parents   map[string]set
}

func newKernelView(info KernelInfo) *kernelView {
	insns := info.InstructionList()
	v := &kernelView{
		info:      info,
		insns:     insns,
		byID:      make(map[string]int, len(insns)),
		inames:    make(map[string]set, len(insns)),
		boost:     make(map[string]set, len(insns)),
		deps:      make(map[string]set, len(insns)),
		parallel:  newSet(info.ParallelInames()...),
		breakable: newSet(info.BreakableInames()...),
		lowest:    info.LowestPriorityInames(),
		parents:   make(map[string]set),
	}
	v.lowestSet = newSet(v.lowest...)
	for i, insn := range insns {
		v.byID[insn.ID] = i
		v.inames[insn.ID] = newSet(info.InsnInames(insn.ID)...)
		v.boost[insn.ID] = newSet(insn.BoostableInto...)
		v.deps[insn.ID] = newSet(insn.Deps...)
	}
	return v
}

func (v *kernelView) insn(id string) (ir.Instruction, bool) {
	i, ok := v.byID[id]
	if !ok {
		return ir.Instruction{}, false
	}
	return v.insns[i], true
}

func (v *kernelView) loopParents(iname string) set {
	if p, ok := v.parents[iname]; ok {
		return p
	}
	p := newSet(v.info.LoopNestParents(iname)...)
	v.parents[iname] = p
	return p
}

// sharedWrites returns the shared variables insn writes.
func (v *kernelView) sharedWrites(insn ir.Instruction) set {
	out := newSet()
	if insn.Assignee != "" && v.info.IsShared(insn.Assignee) {
		out.add(insn.Assignee)
	}
	return out
}

// sharedReads returns the shared variables insn reads.
func (v *kernelView) sharedReads(insn ir.Instruction) set {
	out := newSet()
	for _, r := range insn.Reads {
		if v.info.IsShared(r) {
			out.add(r)
		}
	}
	return out
}
