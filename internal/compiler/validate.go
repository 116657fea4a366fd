package compiler

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/loopsched/internal/ir"
)

// Validation error codes (E200-E299)
const (
	// Iname errors (E201-E209)
	ErrDuplicateIname   = "E201" // iname declared twice
	ErrInvalidTag       = "E202" // malformed index tag
	ErrNonUnitStride    = "E203" // stride other than 1
	ErrMissingBounds    = "E204" // sequential iname without lower or upper bound
	ErrUnknownParent    = "E205" // nesting parent is not an iname
	ErrSelfParent       = "E206" // iname nested inside itself
	ErrParallelPriority = "E207" // parallel iname in a priority list

	// Instruction errors (E210-E219)
	ErrDuplicateInsnID   = "E210" // instruction id used twice
	ErrEmptyInsnID       = "E211" // instruction without id
	ErrUnknownDependency = "E212" // dep names no instruction
	ErrSelfDependency    = "E213" // instruction depends on itself
	ErrUnknownInsnIname  = "E214" // instruction uses an undeclared iname
	ErrUnknownBoostIname = "E215" // boostable_into names an undeclared iname
	ErrEmptyAssignee     = "E216" // instruction writes nothing
	ErrMissingLoopParent = "E217" // instruction needs an iname but not its sequential parent

	// Kernel-level errors (E220-E229)
	ErrDuplicateTemporary   = "E220" // temporary declared twice
	ErrInvalidStorage       = "E221" // unknown storage class
	ErrUnknownPriorityIname = "E222" // priority list names an undeclared iname
)

// ValidationError represents a kernel validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is the error Check returns.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("kernel validation failed: %s", strings.Join(msgs, "; "))
}

// IsValidationError returns true if err came from Check.
func IsValidationError(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}

// Check runs Validate and returns its findings as an error.
func Check(k *ir.Kernel) error {
	if errs := Validate(k); len(errs) > 0 {
		return ValidationErrors(errs)
	}
	return nil
}

// Validate checks a kernel for consistency.
// Returns all errors found (does not fail-fast).
func Validate(k *ir.Kernel) []ValidationError {
	var errs []ValidationError

	inames := make(map[string]ir.Iname, len(k.Inames))
	for i, in := range k.Inames {
		field := fmt.Sprintf("inames[%d]", i)

		// E201: duplicate iname
		if _, dup := inames[in.Name]; dup {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate iname: %q", in.Name),
				Code:    ErrDuplicateIname,
			})
		}
		inames[in.Name] = in

		// E202: tag must be well formed
		if !in.Tag.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".tag",
				Message: fmt.Sprintf("invalid tag %q on iname %q", in.Tag, in.Name),
				Code:    ErrInvalidTag,
			})
		}

		// E203: only unit strides can be scheduled
		if in.Domain.Stride != 0 && in.Domain.Stride != 1 {
			errs = append(errs, ValidationError{
				Field:   field + ".stride",
				Message: fmt.Sprintf("iname %q has stride %d, only unit stride is supported", in.Name, in.Domain.Stride),
				Code:    ErrNonUnitStride,
			})
		}

		// E204: a sequential loop needs both bounds
		if !in.Tag.IsParallel() && (in.Domain.Lower == "" || in.Domain.Upper == "") {
			errs = append(errs, ValidationError{
				Field:   field + ".domain",
				Message: fmt.Sprintf("sequential iname %q needs lower and upper bounds", in.Name),
				Code:    ErrMissingBounds,
			})
		}
	}

	for i, in := range k.Inames {
		for _, p := range in.Parents {
			field := fmt.Sprintf("inames[%d].parents", i)
			switch {
			case p == in.Name:
				// E206
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("iname %q cannot be nested inside itself", in.Name),
					Code:    ErrSelfParent,
				})
			case !hasIname(inames, p):
				// E205
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("unknown nesting parent %q", p),
					Code:    ErrUnknownParent,
				})
			}
		}
	}

	temps := make(map[string]bool, len(k.Temporaries))
	for i, t := range k.Temporaries {
		field := fmt.Sprintf("temporaries[%d]", i)
		if temps[t.Name] {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate temporary: %q", t.Name),
				Code:    ErrDuplicateTemporary,
			})
		}
		temps[t.Name] = true

		if !t.Storage.Valid() {
			errs = append(errs, ValidationError{
				Field:   field + ".storage",
				Message: fmt.Sprintf("invalid storage class %q (want local, private or global)", t.Storage),
				Code:    ErrInvalidStorage,
			})
		}
	}

	ids := make(map[string]bool, len(k.Instructions))
	for _, insn := range k.Instructions {
		ids[insn.ID] = true
	}

	seen := make(map[string]bool, len(k.Instructions))
	for i, insn := range k.Instructions {
		field := fmt.Sprintf("instructions[%d]", i)

		if insn.ID == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: "instruction id is empty",
				Code:    ErrEmptyInsnID,
			})
		} else if seen[insn.ID] {
			errs = append(errs, ValidationError{
				Field:   field + ".id",
				Message: fmt.Sprintf("duplicate instruction id: %q", insn.ID),
				Code:    ErrDuplicateInsnID,
			})
		}
		seen[insn.ID] = true

		if insn.Assignee == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".assignee",
				Message: fmt.Sprintf("instruction %q has no assignee", insn.ID),
				Code:    ErrEmptyAssignee,
			})
		}

		for _, dep := range insn.Deps {
			switch {
			case dep == insn.ID:
				errs = append(errs, ValidationError{
					Field:   field + ".deps",
					Message: fmt.Sprintf("instruction %q depends on itself", insn.ID),
					Code:    ErrSelfDependency,
				})
			case !ids[dep]:
				errs = append(errs, ValidationError{
					Field:   field + ".deps",
					Message: fmt.Sprintf("unknown dependency %q", dep),
					Code:    ErrUnknownDependency,
				})
			}
		}

		for _, name := range insn.Inames {
			if !hasIname(inames, name) {
				errs = append(errs, ValidationError{
					Field:   field + ".inames",
					Message: fmt.Sprintf("instruction %q uses undeclared iname %q", insn.ID, name),
					Code:    ErrUnknownInsnIname,
				})
			}
		}

		errs = append(errs, missingLoopParents(field, insn, inames)...)

		for _, name := range insn.BoostableInto {
			if !hasIname(inames, name) {
				errs = append(errs, ValidationError{
					Field:   field + ".boostable_into",
					Message: fmt.Sprintf("instruction %q boostable into undeclared iname %q", insn.ID, name),
					Code:    ErrUnknownBoostIname,
				})
			}
		}
	}

	errs = append(errs, validatePriorityList("loop_priority", k.LoopPriority, inames)...)
	errs = append(errs, validatePriorityList("lowest_priority", k.LowestPriority, inames)...)

	return errs
}

// missingLoopParents reports sequential nesting parents of insn's inames
// that insn neither needs nor may be boosted into. Such an instruction can
// never run: its loop only opens inside the parent, and running inside the
// parent breaks its iname set. Parents derived from bounds are only seen
// after Preprocess.
func missingLoopParents(field string, insn ir.Instruction, inames map[string]ir.Iname) []ValidationError {
	var errs []ValidationError
	for _, name := range insn.Inames {
		in, ok := inames[name]
		if !ok {
			continue
		}
		for _, p := range in.Parents {
			parent, ok := inames[p]
			if !ok || p == name || parent.Tag.IsParallel() ||
				slices.Contains(insn.Inames, p) || slices.Contains(insn.BoostableInto, p) {
				continue
			}
			errs = append(errs, ValidationError{
				Field:   field + ".inames",
				Message: fmt.Sprintf("instruction %q uses iname %q without its nesting parent %q", insn.ID, name, p),
				Code:    ErrMissingLoopParent,
			})
		}
	}
	return errs
}

func validatePriorityList(field string, names []string, inames map[string]ir.Iname) []ValidationError {
	var errs []ValidationError
	for i, name := range names {
		in, ok := inames[name]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("unknown iname %q", name),
				Code:    ErrUnknownPriorityIname,
			})
			continue
		}
		if in.Tag.IsParallel() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: fmt.Sprintf("iname %q is parallel (tag %s) and is never entered as a loop", name, in.Tag),
				Code:    ErrParallelPriority,
			})
		}
	}
	return errs
}

func hasIname(inames map[string]ir.Iname, name string) bool {
	_, ok := inames[name]
	return ok
}
