package compiler

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/loopsched/internal/ir"
)

// CompileKernel parses a CUE value into a Kernel.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the kernel struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`kernel: copy: { ... }`)
//	k, err := CompileKernel(v.LookupPath(cue.ParsePath("kernel.copy")))
//
// Inames and temporaries are structs keyed by name; instructions are a
// list so their declaration order is preserved. All identifiers are NFC
// normalized.
func CompileKernel(v cue.Value) (*ir.Kernel, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	k := &ir.Kernel{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		k.Name = ident(labels[len(labels)-1].String())
	}

	var err error
	if k.Inames, err = parseInames(v); err != nil {
		return nil, err
	}
	if k.Temporaries, err = parseTemporaries(v); err != nil {
		return nil, err
	}
	if k.Instructions, err = parseInstructions(v); err != nil {
		return nil, err
	}
	if len(k.Instructions) == 0 {
		return nil, &CompileError{
			Field:   "instructions",
			Message: "at least one instruction is required",
			Pos:     v.Pos(),
		}
	}
	if k.LowestPriority, err = stringList(v, "lowest_priority"); err != nil {
		return nil, err
	}
	if k.LoopPriority, err = stringList(v, "loop_priority"); err != nil {
		return nil, err
	}

	return k, nil
}

func parseInames(v cue.Value) ([]ir.Iname, error) {
	inamesVal := v.LookupPath(cue.ParsePath("inames"))
	if !inamesVal.Exists() {
		return nil, nil
	}

	iter, err := inamesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var inames []ir.Iname
	for iter.Next() {
		val := iter.Value()
		in := ir.Iname{Name: ident(iter.Label())}

		if in.Domain.Lower, err = boundString(val, "lower"); err != nil {
			return nil, err
		}
		if in.Domain.Upper, err = boundString(val, "upper"); err != nil {
			return nil, err
		}
		in.Domain.Stride = 1
		if s := val.LookupPath(cue.ParsePath("stride")); s.Exists() {
			if in.Domain.Stride, err = s.Int64(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if t := val.LookupPath(cue.ParsePath("tag")); t.Exists() {
			tag, err := t.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			in.Tag = ir.IndexTag(tag)
		}
		if b := val.LookupPath(cue.ParsePath("breakable")); b.Exists() {
			if in.Breakable, err = b.Bool(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if in.Parents, err = stringList(val, "parents"); err != nil {
			return nil, err
		}

		inames = append(inames, in)
	}
	return inames, nil
}

func parseTemporaries(v cue.Value) ([]ir.Temporary, error) {
	tempsVal := v.LookupPath(cue.ParsePath("temporaries"))
	if !tempsVal.Exists() {
		return nil, nil
	}

	iter, err := tempsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var temps []ir.Temporary
	for iter.Next() {
		val := iter.Value()
		t := ir.Temporary{Name: ident(iter.Label())}

		storageVal := val.LookupPath(cue.ParsePath("storage"))
		if !storageVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("temporaries.%s.storage", t.Name),
				Message: "storage is required",
				Pos:     val.Pos(),
			}
		}
		storage, err := storageVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		t.Storage = ir.StorageClass(storage)

		if d := val.LookupPath(cue.ParsePath("dtype")); d.Exists() {
			if t.DType, err = d.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		if t.Shape, err = boundList(val, "shape"); err != nil {
			return nil, err
		}

		temps = append(temps, t)
	}
	return temps, nil
}

func parseInstructions(v cue.Value) ([]ir.Instruction, error) {
	insnsVal := v.LookupPath(cue.ParsePath("instructions"))
	if !insnsVal.Exists() {
		return nil, nil
	}

	iter, err := insnsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var insns []ir.Instruction
	for iter.Next() {
		val := iter.Value()
		var insn ir.Instruction

		if idVal := val.LookupPath(cue.ParsePath("id")); idVal.Exists() {
			id, err := idVal.String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			insn.ID = ident(id)
		}

		assigneeVal := val.LookupPath(cue.ParsePath("assignee"))
		if !assigneeVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("instructions[%d].assignee", len(insns)),
				Message: "assignee is required",
				Pos:     val.Pos(),
			}
		}
		assignee, err := assigneeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		insn.Assignee = ident(assignee)

		if insn.Inames, err = stringList(val, "inames"); err != nil {
			return nil, err
		}
		if insn.Deps, err = stringList(val, "deps"); err != nil {
			return nil, err
		}
		if insn.Reads, err = stringList(val, "reads"); err != nil {
			return nil, err
		}
		if insn.BoostableInto, err = stringList(val, "boostable_into"); err != nil {
			return nil, err
		}
		if insn.Tags, err = stringList(val, "tags"); err != nil {
			return nil, err
		}
		if e := val.LookupPath(cue.ParsePath("expression")); e.Exists() {
			if insn.Expression, err = e.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}

		insns = append(insns, insn)
	}
	return insns, nil
}

// stringList reads an optional list of identifiers.
func stringList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, ident(s))
	}
	return out, nil
}

// boundList reads an optional list of bound expressions (ints or strings).
func boundList(v cue.Value, field string) ([]string, error) {
	listVal := v.LookupPath(cue.ParsePath(field))
	if !listVal.Exists() {
		return nil, nil
	}
	iter, err := listVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := exprString(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// boundString reads an optional bound that may be written as an int or an
// expression string.
func boundString(v cue.Value, field string) (string, error) {
	b := v.LookupPath(cue.ParsePath(field))
	if !b.Exists() {
		return "", nil
	}
	return exprString(b)
}

func exprString(v cue.Value) (string, error) {
	if n, err := v.Int64(); err == nil {
		return strconv.FormatInt(n, 10), nil
	}
	s, err := v.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return norm.NFC.String(s), nil
}

// ident normalizes an identifier so that visually identical names compare
// equal.
func ident(s string) string {
	return norm.NFC.String(s)
}

// CompileError represents a CUE compilation error with position info.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
