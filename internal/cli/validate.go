package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Kernel string // validate only this kernel
}

// KernelValidation holds the findings for one kernel.
type KernelValidation struct {
	Kernel   string                     `json:"kernel"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool               `json:"valid"`
	Kernels []KernelValidation `json:"kernels"`
}

// errorCount returns the number of validation errors over all kernels.
func (r ValidationResult) errorCount() int {
	n := 0
	for _, kv := range r.Kernels {
		n += len(kv.Errors)
	}
	return n
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <kernel.cue>",
		Short: "Validate kernels without scheduling them",
		Long: `Validate kernel definitions without running the scheduler.

Checks iname declarations, instruction ids and dependencies, and priority
lists. Dependency cycles are reported as warnings: a kernel with a cycle
is well formed but has no schedule.

Exit codes:
  0 - All kernels valid (warnings allowed)
  2 - Load or validation errors`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Kernel, "kernel", "k", "", "validate only this kernel")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	kernels, err := LoadKernels(path)
	if err != nil {
		return outputValidateError(formatter, loadErrorCode(err), err.Error())
	}
	if opts.Kernel != "" {
		k, err := compiler.SelectKernel(kernels, opts.Kernel)
		if err != nil {
			return outputValidateError(formatter, ErrCodeNoKernel, err.Error())
		}
		kernels = []*ir.Kernel{k}
	}

	result := ValidationResult{Valid: true, Kernels: make([]KernelValidation, 0, len(kernels))}
	for _, k := range kernels {
		formatter.VerboseLog("Validating kernel: %s", k.Name)
		kv, err := validateKernel(k)
		if err != nil {
			return outputValidateError(formatter, ErrCodeGeneric, err.Error())
		}
		if len(kv.Errors) > 0 {
			result.Valid = false
		}
		result.Kernels = append(result.Kernels, kv)
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// validateKernel runs preprocessing, validation and cycle analysis.
func validateKernel(k *ir.Kernel) (KernelValidation, error) {
	prepared, err := compiler.Preprocess(k)
	if err != nil {
		return KernelValidation{}, err
	}
	return KernelValidation{
		Kernel:   k.Name,
		Errors:   compiler.Validate(prepared),
		Warnings: compiler.AnalyzeDependencyCycles(prepared),
	}, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	writeCycleWarnings(formatter, result)
	fmt.Fprintln(formatter.Writer, "✓ All kernels valid")
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs every validation finding.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	count := result.errorCount()
	exitErr := NewExitError(ExitCommandError, fmt.Sprintf("validation failed with %d error(s)", count))

	if formatter.Format == "json" {
		first := firstValidationError(result)
		if err := formatter.Failure(first.Code, first.Message, result); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, kv := range result.Kernels {
		if len(kv.Errors) == 0 {
			continue
		}
		fmt.Fprintf(formatter.Writer, "kernel %s\n", kv.Kernel)
		for _, e := range kv.Errors {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
		}
		fmt.Fprintln(formatter.Writer)
	}
	writeCycleWarnings(formatter, result)
	return exitErr
}

func firstValidationError(result ValidationResult) compiler.ValidationError {
	for _, kv := range result.Kernels {
		if len(kv.Errors) > 0 {
			return kv.Errors[0]
		}
	}
	return compiler.ValidationError{Code: ErrCodeGeneric}
}

func writeCycleWarnings(formatter *OutputFormatter, result ValidationResult) {
	for _, kv := range result.Kernels {
		for _, w := range kv.Warnings {
			fmt.Fprintf(formatter.Writer, "⚠ kernel %s: %s\n", kv.Kernel, w.Message)
		}
	}
}
