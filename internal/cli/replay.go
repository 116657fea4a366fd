package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/engine"
	"github.com/roach88/loopsched/internal/ir"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Kernel      string
	Priority    []string
	DebugLength int // trace from this depth (0 = longest dead end)
	Max         int // stop after this many schedules (0 = exhaust the search)
}

// ReplayResult summarizes a traced strict search.
type ReplayResult struct {
	Kernel         string `json:"kernel"`
	DebugLength    int    `json:"debug_length"`
	Schedules      int    `json:"schedules"`
	DeadEnds       int    `json:"dead_ends"`
	LongestDeadEnd string `json:"longest_dead_end,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <kernel.cue>",
		Short: "Replay the strict search with step tracing",
		Long: `Rerun the strict (non-boosting) search and trace every step from a
given partial-schedule length.

Without --debug-length, a silent first pass finds the longest dead end and
the trace starts at its length. The trace goes to stdout, or to stderr
with --format json.

Examples:
  loopsched replay kernels.cue --kernel matmul
  loopsched replay kernels.cue --kernel matmul --debug-length 3 --max 0`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Kernel, "kernel", "k", "", "kernel to replay")
	cmd.Flags().StringSliceVar(&opts.Priority, "priority", nil, "loop priority, outermost first")
	cmd.Flags().IntVar(&opts.DebugLength, "debug-length", 0, "trace partial schedules of at least this length")
	cmd.Flags().IntVar(&opts.Max, "max", 1, "stop after this many schedules (0 = exhaust the search)")

	return cmd
}

func runReplay(opts *ReplayOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	k, err := LoadKernel(path, opts.Kernel)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load kernel", err)
	}
	prepared, err := compiler.Prepare(k)
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidKernel, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid kernel", err)
	}

	prio := opts.Priority
	if prio == nil {
		prio = prepared.LoopPriority
	}

	debugLength := opts.DebugLength
	if debugLength == 0 {
		probe := engine.NewRecorder()
		strictSearch(ctx, prepared, prio, probe, opts.Max)
		debugLength = len(probe.LongestDeadEnd())
		formatter.VerboseLog("Longest dead end has %d item(s)", debugLength)
	}

	traceOut := formatter.Writer
	if formatter.Format == "json" {
		traceOut = formatter.Diag()
	}
	rec := engine.NewRecorder(
		engine.WithTrace(traceOut),
		engine.WithDebugLength(debugLength),
	)
	found := strictSearch(ctx, prepared, prio, rec, opts.Max)
	if err := ctx.Err(); err != nil {
		return WrapExitError(ExitCommandError, "replay interrupted", err)
	}

	result := ReplayResult{
		Kernel:         prepared.Name,
		DebugLength:    debugLength,
		Schedules:      found,
		DeadEnds:       rec.DeadEnds(),
		LongestDeadEnd: ir.DumpSchedule(rec.LongestDeadEnd()),
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	writeReplaySummary(formatter.Writer, result)
	return nil
}

// strictSearch drains the strict search, stopping after limit schedules
// when limit > 0, and returns how many it saw.
func strictSearch(ctx context.Context, k *ir.Kernel, prio []string, rec *engine.Recorder, limit int) int {
	found := 0
	for range engine.Search(ctx, k, prio, false, rec) {
		found++
		if limit > 0 && found >= limit {
			break
		}
	}
	rec.Done()
	return found
}

func writeReplaySummary(w io.Writer, result ReplayResult) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Replay Summary: %s (trace from length %d)\n", result.Kernel, result.DebugLength)
	fmt.Fprintf(w, "  Schedules: %d\n", result.Schedules)
	fmt.Fprintf(w, "  Dead ends: %d\n", result.DeadEnds)
	if result.LongestDeadEnd != "" {
		fmt.Fprintf(w, "  Longest dead end: %s\n", result.LongestDeadEnd)
	}
}
