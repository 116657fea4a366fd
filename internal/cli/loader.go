package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/ir"
)

// LoadError is a kernel loading failure tagged with its error code and,
// for CUE problems, the source position.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if !e.Pos.IsValid() {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s",
		e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
}

// LoadKernels reads every kernel under path, a .cue file or a directory.
func LoadKernels(path string) ([]*ir.Kernel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "kernel file not found: " + path}
	}
	kernels, err := compiler.LoadKernels(path)
	if err == nil {
		return kernels, nil
	}

	le := &LoadError{Code: ErrCodeCompileFailed, Message: err.Error()}
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		le.Message = ce.Field + ": " + ce.Message
		le.Pos = ce.Pos
	}
	return nil, le
}

// LoadKernel is LoadKernels followed by picking out the named kernel. An
// empty name is accepted when path holds exactly one kernel.
func LoadKernel(path, name string) (*ir.Kernel, error) {
	kernels, err := LoadKernels(path)
	if err != nil {
		return nil, err
	}
	k, err := compiler.SelectKernel(kernels, name)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNoKernel, Message: err.Error()}
	}
	return k, nil
}

func loadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}
