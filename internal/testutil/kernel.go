package testutil

import "github.com/roach88/loopsched/internal/ir"

// KernelBuilder assembles small kernels for tests.
//
//	k := testutil.NewKernel("copy").
//		Iname("i").
//		Local("tmp").
//		Insn("load", "tmp", testutil.Within("i"), testutil.Reading("a")).
//		Insn("store", "b", testutil.Within("i"), testutil.After("load"), testutil.Reading("tmp")).
//		Build()
type KernelBuilder struct {
	k ir.Kernel
}

// NewKernel starts a kernel with the given name.
func NewKernel(name string) *KernelBuilder {
	return &KernelBuilder{k: ir.Kernel{Name: name}}
}

// InameOption configures an iname.
type InameOption func(*ir.Iname)

// Tag sets the iname's index tag.
func Tag(tag string) InameOption {
	return func(in *ir.Iname) { in.Tag = ir.IndexTag(tag) }
}

// Breakable marks the iname breakable.
func Breakable() InameOption {
	return func(in *ir.Iname) { in.Breakable = true }
}

// Inside nests the iname inside parents.
func Inside(parents ...string) InameOption {
	return func(in *ir.Iname) { in.Parents = append(in.Parents, parents...) }
}

// Bounds sets the iname's domain bounds.
func Bounds(lower, upper string) InameOption {
	return func(in *ir.Iname) {
		in.Domain.Lower = lower
		in.Domain.Upper = upper
	}
}

// Iname declares a sequential iname over [0, n) unless options say
// otherwise.
func (b *KernelBuilder) Iname(name string, opts ...InameOption) *KernelBuilder {
	in := ir.Iname{Name: name, Domain: ir.Domain{Lower: "0", Upper: "n", Stride: 1}}
	for _, opt := range opts {
		opt(&in)
	}
	b.k.Inames = append(b.k.Inames, in)
	return b
}

// Parallel declares an iname with a parallel tag such as "l.0".
func (b *KernelBuilder) Parallel(name, tag string) *KernelBuilder {
	return b.Iname(name, Tag(tag))
}

// Local declares shared (local) temporaries.
func (b *KernelBuilder) Local(names ...string) *KernelBuilder {
	return b.temporaries(ir.StorageLocal, names)
}

// Private declares per-workitem temporaries.
func (b *KernelBuilder) Private(names ...string) *KernelBuilder {
	return b.temporaries(ir.StoragePrivate, names)
}

func (b *KernelBuilder) temporaries(storage ir.StorageClass, names []string) *KernelBuilder {
	for _, n := range names {
		b.k.Temporaries = append(b.k.Temporaries, ir.Temporary{Name: n, Storage: storage, DType: "float32"})
	}
	return b
}

// InsnOption configures an instruction.
type InsnOption func(*ir.Instruction)

// Within sets the inames the instruction requires.
func Within(inames ...string) InsnOption {
	return func(insn *ir.Instruction) { insn.Inames = append(insn.Inames, inames...) }
}

// After declares dependencies.
func After(deps ...string) InsnOption {
	return func(insn *ir.Instruction) { insn.Deps = append(insn.Deps, deps...) }
}

// Reading declares variables the instruction reads.
func Reading(vars ...string) InsnOption {
	return func(insn *ir.Instruction) { insn.Reads = append(insn.Reads, vars...) }
}

// Boostable declares inames the instruction may run under without
// requiring them.
func Boostable(inames ...string) InsnOption {
	return func(insn *ir.Instruction) { insn.BoostableInto = append(insn.BoostableInto, inames...) }
}

// Insn appends an instruction writing assignee.
func (b *KernelBuilder) Insn(id, assignee string, opts ...InsnOption) *KernelBuilder {
	insn := ir.Instruction{ID: id, Assignee: assignee}
	for _, opt := range opts {
		opt(&insn)
	}
	b.k.Instructions = append(b.k.Instructions, insn)
	return b
}

// LowestPriority sets the lowest-priority iname list.
func (b *KernelBuilder) LowestPriority(inames ...string) *KernelBuilder {
	b.k.LowestPriority = inames
	return b
}

// LoopPriority sets the default loop priority.
func (b *KernelBuilder) LoopPriority(inames ...string) *KernelBuilder {
	b.k.LoopPriority = inames
	return b
}

// Build returns an independent copy of the kernel built so far.
func (b *KernelBuilder) Build() *ir.Kernel {
	return b.k.Clone()
}
