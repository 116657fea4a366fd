package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Kernel string // compile only this kernel
	Output string // output file path
}

// CompiledKernel is one preprocessed kernel and its content hash.
type CompiledKernel struct {
	Hash   string     `json:"hash"`
	Kernel *ir.Kernel `json:"kernel"`
}

// CompilationResult holds the compiled kernels.
type CompilationResult struct {
	IRVersion string           `json:"ir_version"`
	Kernels   []CompiledKernel `json:"kernels"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <kernel.cue>",
		Short: "Compile CUE kernels to normalized IR",
		Long: `Compile CUE kernel definitions to normalized IR.

Each kernel is preprocessed and validated, then emitted as JSON together
with its content hash. The hash is the one recorded in the run log.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Kernel, "kernel", "k", "", "compile only this kernel")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	fail := func(code, message string) error {
		_ = formatter.Error(code, message, nil)
		return NewExitError(ExitCommandError, code+": "+message)
	}

	kernels, err := LoadKernels(path)
	if err != nil {
		return fail(loadErrorCode(err), err.Error())
	}
	if opts.Kernel != "" {
		k, err := compiler.SelectKernel(kernels, opts.Kernel)
		if err != nil {
			return fail(ErrCodeNoKernel, err.Error())
		}
		kernels = []*ir.Kernel{k}
	}

	result := CompilationResult{IRVersion: ir.IRVersion, Kernels: []CompiledKernel{}}
	for _, k := range kernels {
		formatter.VerboseLog("Compiling kernel: %s", k.Name)
		ck, err := compileKernel(k)
		if err != nil {
			var le *LoadError
			if errors.As(err, &le) {
				return fail(le.Code, le.Message)
			}
			return fail(ErrCodeGeneric, err.Error())
		}
		result.Kernels = append(result.Kernels, ck)
	}

	if opts.Output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			err = os.WriteFile(opts.Output, data, 0o644)
		}
		if err != nil {
			return fail(ErrCodeGeneric, fmt.Sprintf("writing %s: %v", opts.Output, err))
		}
	}

	if formatter.json() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "✓ Compiled %d kernel(s)\n\n", len(result.Kernels))
	for _, ck := range result.Kernels {
		fmt.Fprintf(w, "  %s: %d iname(s), %d instruction(s), %s\n",
			ck.Kernel.Name, len(ck.Kernel.Inames), len(ck.Kernel.Instructions), ck.Hash)
	}
	if opts.Output != "" {
		fmt.Fprintf(w, "\nWrote IR to %s\n", opts.Output)
	}
	return nil
}

// compileKernel preprocesses k and hashes the result. The hash covers the
// canonical form, not the indented JSON written by --output.
func compileKernel(k *ir.Kernel) (CompiledKernel, error) {
	prepared, err := compiler.Prepare(k)
	if err != nil {
		return CompiledKernel{}, &LoadError{
			Code:    ErrCodeInvalidKernel,
			Message: fmt.Sprintf("kernel %s: %v", k.Name, err),
		}
	}
	hash, err := ir.KernelHash(prepared)
	if err != nil {
		return CompiledKernel{}, err
	}
	return CompiledKernel{Hash: hash, Kernel: prepared}, nil
}
