package ir

import (
	"fmt"
	"slices"
	"strings"
)

// StorageClass classifies where a temporary variable lives on the device.
type StorageClass string

const (
	// StorageLocal is workgroup-shared memory. It is the only class that
	// needs barrier protection.
	StorageLocal StorageClass = "local"

	// StoragePrivate is per-workitem memory.
	StoragePrivate StorageClass = "private"

	// StorageGlobal is device-global memory.
	StorageGlobal StorageClass = "global"
)

// Valid reports whether the storage class is one of the known classes.
func (s StorageClass) Valid() bool {
	switch s {
	case StorageLocal, StoragePrivate, StorageGlobal:
		return true
	}
	return false
}

// IndexTag marks how an iname is realized on the device.
//
//   - ""      sequential loop
//   - "l.N"   local (workitem) parallel axis N
//   - "g.N"   group parallel axis N
//   - "ilp"   instruction-level parallelism
//   - "unr"   unrolled sequential loop
type IndexTag string

// IsParallel reports whether the tag maps the iname onto a hardware-parallel
// dimension. Parallel inames never appear as loop enter/leave events.
func (t IndexTag) IsParallel() bool {
	s := string(t)
	return strings.HasPrefix(s, "l.") || strings.HasPrefix(s, "g.") || s == "ilp"
}

// Valid reports whether the tag is well-formed.
func (t IndexTag) Valid() bool {
	s := string(t)
	switch {
	case s == "", s == "ilp", s == "unr":
		return true
	case strings.HasPrefix(s, "l."), strings.HasPrefix(s, "g."):
		axis := s[2:]
		if axis == "" {
			return false
		}
		for _, r := range axis {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	}
	return false
}

// Domain is the iteration domain of an iname.
//
// The scheduler treats domains as opaque: bounds are kept as expression text
// and only inspected for the identifiers they mention.
type Domain struct {
	Lower  string `json:"lower"`
	Upper  string `json:"upper"`
	Stride int64  `json:"stride"`
}

// String renders the domain as a half-open range.
func (d Domain) String() string {
	if d.Stride != 0 && d.Stride != 1 {
		return fmt.Sprintf("[%s, %s) step %d", d.Lower, d.Upper, d.Stride)
	}
	return fmt.Sprintf("[%s, %s)", d.Lower, d.Upper)
}

// Iname is a named loop induction variable.
type Iname struct {
	Name string   `json:"name"`
	Tag  IndexTag `json:"tag,omitempty"`

	// Breakable loops may be left while unscheduled instructions still
	// need them.
	Breakable bool `json:"breakable,omitempty"`

	// Parents are inames this one must be nested inside.
	Parents []string `json:"parents,omitempty"`

	Domain Domain `json:"domain"`
}

// Instruction is a single array assignment guarded by a set of inames.
type Instruction struct {
	ID       string   `json:"id"`
	Inames   []string `json:"inames,omitempty"`
	Deps     []string `json:"deps,omitempty"`
	Assignee string   `json:"assignee"`
	Reads    []string `json:"reads,omitempty"`

	// BoostableInto lists inames under which the instruction may run
	// without requiring them.
	BoostableInto []string `json:"boostable_into,omitempty"`

	Tags       []string `json:"tags,omitempty"`
	Expression string   `json:"expression,omitempty"`
}

// DependsOn reports whether id is a declared dependency of the instruction.
func (insn Instruction) DependsOn(id string) bool {
	return slices.Contains(insn.Deps, id)
}

// Temporary is a kernel-scoped temporary variable.
type Temporary struct {
	Name    string       `json:"name"`
	Storage StorageClass `json:"storage"`
	DType   string       `json:"dtype,omitempty"`
	Shape   []string     `json:"shape,omitempty"`
}

// IsShared reports whether the temporary is visible to every workitem of a
// workgroup.
func (t Temporary) IsShared() bool {
	return t.Storage == StorageLocal
}

// Kernel is the scheduler's input and, once scheduled, its final artifact.
//
// Kernel values are never mutated after construction. Use WithSchedule to
// attach a schedule.
type Kernel struct {
	Name         string        `json:"name"`
	Inames       []Iname       `json:"inames"`
	Instructions []Instruction `json:"instructions"`
	Temporaries  []Temporary   `json:"temporaries,omitempty"`

	// LowestPriority lists loops to prefer entering last, in order.
	LowestPriority []string `json:"lowest_priority,omitempty"`

	// LoopPriority is the default user nesting preference.
	LoopPriority []string `json:"loop_priority,omitempty"`

	Schedule Schedule `json:"-"`
}

// Iname returns the named iname.
func (k *Kernel) Iname(name string) (Iname, bool) {
	for _, in := range k.Inames {
		if in.Name == name {
			return in, true
		}
	}
	return Iname{}, false
}

// Instruction returns the instruction with the given id.
func (k *Kernel) Instruction(id string) (Instruction, bool) {
	for _, insn := range k.Instructions {
		if insn.ID == id {
			return insn, true
		}
	}
	return Instruction{}, false
}

// Temporary returns the named temporary.
func (k *Kernel) Temporary(name string) (Temporary, bool) {
	for _, t := range k.Temporaries {
		if t.Name == name {
			return t, true
		}
	}
	return Temporary{}, false
}

// WithSchedule returns a copy of the kernel carrying sched.
func (k *Kernel) WithSchedule(sched Schedule) *Kernel {
	cp := k.Clone()
	cp.Schedule = slices.Clone(sched)
	return cp
}

// Clone returns a deep copy of the kernel.
func (k *Kernel) Clone() *Kernel {
	cp := &Kernel{
		Name:           k.Name,
		Inames:         make([]Iname, len(k.Inames)),
		Instructions:   make([]Instruction, len(k.Instructions)),
		Temporaries:    slices.Clone(k.Temporaries),
		LowestPriority: slices.Clone(k.LowestPriority),
		LoopPriority:   slices.Clone(k.LoopPriority),
		Schedule:       slices.Clone(k.Schedule),
	}
	for i, in := range k.Inames {
		in.Parents = slices.Clone(in.Parents)
		cp.Inames[i] = in
	}
	for i, insn := range k.Instructions {
		insn.Inames = slices.Clone(insn.Inames)
		insn.Deps = slices.Clone(insn.Deps)
		insn.Reads = slices.Clone(insn.Reads)
		insn.BoostableInto = slices.Clone(insn.BoostableInto)
		insn.Tags = slices.Clone(insn.Tags)
		cp.Instructions[i] = insn
	}
	for i, t := range cp.Temporaries {
		cp.Temporaries[i].Shape = slices.Clone(t.Shape)
	}
	return cp
}
