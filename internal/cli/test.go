package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loopsched/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern on the file name)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name      string   `json:"name"`
	Pass      bool     `json:"pass"`
	Schedules []string `json:"schedules,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario.yaml|dir>...",
		Short: "Run scheduling scenarios",
		Long: `Run YAML scheduling scenarios through the harness.

Each scenario names a CUE kernel, runs the scheduler against a private
in-memory run log and evaluates its assertions. Directories are searched
for .yaml and .yml files.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing paths, etc.)

Examples:
  loopsched test ./scenarios
  loopsched test ./scenarios --filter "tiled_*"
  loopsched test ./scenarios/matmul.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, paths []string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := selectScenarios(paths, opts.Filter)
	if err != nil {
		var notFound *harness.ScenarioNotFoundError
		if errors.As(err, &notFound) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "cannot collect scenarios", err)
	}

	summary := TestResult{Scenarios: []ScenarioResult{}, Total: len(files)}
	if len(files) == 0 && !formatter.json() {
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	for _, file := range files {
		res := runScenario(ctx, file, formatter)
		if ctx.Err() != nil {
			return WrapExitError(ExitCommandError, "test run interrupted", ctx.Err())
		}
		if !formatter.json() {
			printScenario(formatter.Writer, res)
		}
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return reportTests(formatter, summary)
}

// selectScenarios expands paths to scenario files and applies the filter.
func selectScenarios(paths []string, filter string) ([]string, error) {
	files, err := harness.FindScenarios(paths)
	if err != nil {
		return nil, err
	}
	return filterScenarios(files, filter)
}

// filterScenarios keeps the files whose stem matches the glob.
func filterScenarios(files []string, filter string) ([]string, error) {
	if filter == "" {
		return files, nil
	}
	kept := files[:0:0]
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		ok, err := filepath.Match(filter, stem)
		if err != nil {
			return nil, fmt.Errorf("bad --filter %q: %w", filter, err)
		}
		if ok {
			kept = append(kept, f)
		}
	}
	return kept, nil
}

// runScenario loads and runs one scenario. Load and run errors become a
// failed result rather than aborting the whole test run.
func runScenario(ctx context.Context, file string, formatter *OutputFormatter) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			Errors: []string{fmt.Sprintf("load error: %v", err)},
		}
	}

	formatter.VerboseLog("Running scenario %s (%s)", scenario.Name, scenario.Kernel)
	run, err := harness.Run(ctx, scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution error: %v", err)},
		}
	}
	return ScenarioResult{
		Name:      scenario.Name,
		Pass:      run.Pass,
		Schedules: run.Dumps(),
		Errors:    run.Errors,
	}
}

func printScenario(w io.Writer, res ScenarioResult) {
	mark := "✗"
	if res.Pass {
		mark = "✓"
	}
	fmt.Fprintf(w, "%s %s\n", mark, res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func reportTests(formatter *OutputFormatter, summary TestResult) error {
	var failure error
	msg := fmt.Sprintf("%d scenario(s) failed", summary.Failed)
	if summary.Failed > 0 {
		failure = NewExitError(ExitFailure, msg)
	}

	if formatter.json() {
		if failure == nil {
			return formatter.Success(summary)
		}
		if err := formatter.Failure(ErrCodeScenarioFailed, msg, summary); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(formatter.Writer, "\nTest Summary: %d passed, %d failed, %d total\n",
		summary.Passed, summary.Failed, summary.Total)
	if failure == nil {
		fmt.Fprintln(formatter.Writer, "✓ All scenarios passed")
	}
	return failure
}
