package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/loopsched/internal/ir"
)

// LoadKernels compiles every kernel under the top-level "kernel" field of
// a CUE file, or of the CUE package in a directory. Kernels are returned
// in declaration order.
func LoadKernels(path string) ([]*ir.Kernel, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load kernels: %w", err)
	}

	ctx := cuecontext.New()
	var value cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, fmt.Errorf("load kernels: no CUE instances in %s", path)
		}
		if inst := instances[0]; inst.Err != nil {
			return nil, formatCUEError(inst.Err)
		}
		value = ctx.BuildInstance(instances[0])
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load kernels: %w", err)
		}
		value = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	kernelsVal := value.LookupPath(cue.ParsePath("kernel"))
	if !kernelsVal.Exists() {
		return nil, &CompileError{
			Field:   "kernel",
			Message: "no kernels defined",
			Pos:     value.Pos(),
		}
	}

	iter, err := kernelsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var kernels []*ir.Kernel
	for iter.Next() {
		k, err := CompileKernel(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("kernel.%s: %w", iter.Label(), err)
		}
		kernels = append(kernels, k)
	}
	if len(kernels) == 0 {
		return nil, &CompileError{
			Field:   "kernel",
			Message: "no kernels defined",
			Pos:     kernelsVal.Pos(),
		}
	}
	return kernels, nil
}

// SelectKernel picks a kernel by name. An empty name selects the only
// kernel, and is an error when there are several.
func SelectKernel(kernels []*ir.Kernel, name string) (*ir.Kernel, error) {
	if name == "" {
		if len(kernels) == 1 {
			return kernels[0], nil
		}
		names := make([]string, len(kernels))
		for i, k := range kernels {
			names[i] = k.Name
		}
		return nil, fmt.Errorf("%d kernels defined %v, choose one by name", len(kernels), names)
	}
	for _, k := range kernels {
		if k.Name == name {
			return k, nil
		}
	}
	return nil, fmt.Errorf("kernel %q not defined", name)
}
