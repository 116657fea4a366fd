package ir

import (
	"fmt"
	"strings"
)

// The methods in this file are the read-only queries the scheduler makes of
// a kernel. They return fresh slices; callers may keep them.

// InstructionList returns the instructions in declaration order.
func (k *Kernel) InstructionList() []Instruction {
	return k.Instructions
}

// InsnInames returns the inames instruction id requires.
func (k *Kernel) InsnInames(id string) []string {
	insn, ok := k.Instruction(id)
	if !ok {
		return nil
	}
	return append([]string(nil), insn.Inames...)
}

// ParallelInames returns every iname carrying a parallel tag.
func (k *Kernel) ParallelInames() []string {
	var out []string
	for _, in := range k.Inames {
		if in.Tag.IsParallel() {
			out = append(out, in.Name)
		}
	}
	return out
}

// BreakableInames returns every iname flagged breakable.
func (k *Kernel) BreakableInames() []string {
	var out []string
	for _, in := range k.Inames {
		if in.Breakable {
			out = append(out, in.Name)
		}
	}
	return out
}

// LowestPriorityInames returns the ordered lowest-priority list.
func (k *Kernel) LowestPriorityInames() []string {
	return append([]string(nil), k.LowestPriority...)
}

// LoopNestParents returns the inames that must be active before iname can
// be entered.
func (k *Kernel) LoopNestParents(iname string) []string {
	in, ok := k.Iname(iname)
	if !ok {
		return nil
	}
	return append([]string(nil), in.Parents...)
}

// IsShared reports whether name is a temporary in shared (local) storage.
func (k *Kernel) IsShared(name string) bool {
	t, ok := k.Temporary(name)
	return ok && t.IsShared()
}

// String renders a human-readable dump of the kernel.
func (k *Kernel) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "KERNEL %s\n", k.Name)
	b.WriteString("INAMES:\n")
	for _, in := range k.Inames {
		fmt.Fprintf(&b, "  %s %s", in.Name, in.Domain)
		if in.Tag != "" {
			fmt.Fprintf(&b, " tag=%s", in.Tag)
		}
		if in.Breakable {
			b.WriteString(" breakable")
		}
		if len(in.Parents) > 0 {
			fmt.Fprintf(&b, " inside=%s", strings.Join(in.Parents, ","))
		}
		b.WriteByte('\n')
	}
	if len(k.Temporaries) > 0 {
		b.WriteString("TEMPORARIES:\n")
		for _, t := range k.Temporaries {
			fmt.Fprintf(&b, "  %s: %s", t.Name, t.Storage)
			if t.DType != "" {
				fmt.Fprintf(&b, " %s", t.DType)
			}
			if len(t.Shape) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(t.Shape, ", "))
			}
			b.WriteByte('\n')
		}
	}
	b.WriteString("INSTRUCTIONS:\n")
	for _, insn := range k.Instructions {
		fmt.Fprintf(&b, "  [%s] %s", strings.Join(insn.Inames, ","), insn.ID)
		if insn.Expression != "" {
			fmt.Fprintf(&b, ": %s", insn.Expression)
		} else {
			fmt.Fprintf(&b, ": %s <- %s", insn.Assignee, strings.Join(insn.Reads, ", "))
		}
		if len(insn.Deps) > 0 {
			fmt.Fprintf(&b, " {deps=%s}", strings.Join(insn.Deps, ":"))
		}
		if len(insn.BoostableInto) > 0 {
			fmt.Fprintf(&b, " {boostable_into=%s}", strings.Join(insn.BoostableInto, ","))
		}
		b.WriteByte('\n')
	}
	if len(k.LowestPriority) > 0 {
		fmt.Fprintf(&b, "LOWEST PRIORITY: %s\n", strings.Join(k.LowestPriority, ","))
	}
	if len(k.Schedule) > 0 {
		fmt.Fprintf(&b, "SCHEDULE: %s\n", DumpSchedule(k.Schedule))
	}
	return b.String()
}
