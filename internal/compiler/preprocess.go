package compiler

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/roach88/loopsched/internal/ir"
)

var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// Preprocess returns a normalized copy of k ready for scheduling.
//
//   - Empty instruction ids default to insn_N (N is the declaration index,
//     bumped past ids already taken).
//   - Iname, dependency, read and boost lists are sorted and deduplicated.
//   - An iname whose bounds mention another iname is nested inside it.
//
// The input is not modified.
func Preprocess(k *ir.Kernel) (*ir.Kernel, error) {
	if k == nil {
		return nil, fmt.Errorf("preprocess: nil kernel")
	}
	out := k.Clone()

	taken := make(map[string]bool, len(out.Instructions))
	for _, insn := range out.Instructions {
		if insn.ID != "" {
			taken[insn.ID] = true
		}
	}
	for i := range out.Instructions {
		if out.Instructions[i].ID != "" {
			continue
		}
		n := i
		id := fmt.Sprintf("insn_%d", n)
		for taken[id] {
			n++
			id = fmt.Sprintf("insn_%d", n)
		}
		taken[id] = true
		out.Instructions[i].ID = id
	}

	for i := range out.Instructions {
		insn := &out.Instructions[i]
		insn.Inames = sortedUnique(insn.Inames)
		insn.Deps = sortedUnique(insn.Deps)
		insn.Reads = sortedUnique(insn.Reads)
		insn.BoostableInto = sortedUnique(insn.BoostableInto)
	}

	names := make(map[string]bool, len(out.Inames))
	for _, in := range out.Inames {
		names[in.Name] = true
	}
	for i := range out.Inames {
		in := &out.Inames[i]
		parents := slices.Clone(in.Parents)
		for _, bound := range []string{in.Domain.Lower, in.Domain.Upper} {
			for _, id := range identRe.FindAllString(bound, -1) {
				if names[id] && id != in.Name {
					parents = append(parents, id)
				}
			}
		}
		in.Parents = sortedUnique(parents)
	}

	return out, nil
}

// Prepare preprocesses and checks a kernel. It is the driver's default
// preprocessing step.
func Prepare(k *ir.Kernel) (*ir.Kernel, error) {
	out, err := Preprocess(k)
	if err != nil {
		return nil, err
	}
	if err := Check(out); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedUnique(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}
