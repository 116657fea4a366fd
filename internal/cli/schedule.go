package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/engine"
	"github.com/roach88/loopsched/internal/ir"
	"github.com/roach88/loopsched/internal/store"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Kernel      string   // kernel name, required when the file defines several
	Priority    []string // loop priority override
	All         bool     // print every schedule up to Max
	Max         int      // schedule limit with --all (0 = unlimited)
	StorePath   string   // run log database
	Interactive bool     // replay the longest dead end on failure
	DebugLength int      // trace partial schedules of at least this length
	NoBoost     bool     // disable the boosting fallback
}

// ScheduleEntry is one generated schedule.
type ScheduleEntry struct {
	Index        int         `json:"index"`
	Dump         string      `json:"dump"`
	Items        ir.Schedule `json:"items"`
	Barriers     int         `json:"barriers"`
	OwedBarriers []string    `json:"owed_barriers,omitempty"`
	Boosted      bool        `json:"boosted,omitempty"`
	Loops        []LoopInfo  `json:"loops,omitempty"`
}

// LoopInfo describes one loop of a schedule: where it opens, the loops
// around it, every iname its instructions need and whether a barrier runs
// inside it.
type LoopInfo struct {
	Iname     string   `json:"iname"`
	At        int      `json:"at"`
	Enclosing []string `json:"enclosing,omitempty"`
	Inames    []string `json:"inames"`
	Barrier   bool     `json:"barrier"`
}

// describeLoops lists the loops of sched in the order they open.
func describeLoops(k *ir.Kernel, sched ir.Schedule) []LoopInfo {
	var loops []LoopInfo
	for idx, item := range sched {
		enter, ok := item.(ir.EnterLoop)
		if !ok {
			continue
		}
		loops = append(loops, LoopInfo{
			Iname:     enter.Iname,
			At:        idx,
			Enclosing: ir.ActiveInamesAt(sched, idx),
			Inames:    ir.UsedInamesWithin(k, sched, idx),
			Barrier:   ir.HasBarrierWithin(sched, idx),
		})
	}
	return loops
}

// ScheduleOutput is the JSON payload of the schedule command.
type ScheduleOutput struct {
	Kernel    string          `json:"kernel"`
	RunID     string          `json:"run_id,omitempty"`
	Schedules []ScheduleEntry `json:"schedules"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule <kernel.cue>",
		Short: "Generate loop schedules for a kernel",
		Long: `Generate loop schedules for a kernel and insert the barriers its
local-memory accesses need.

Exit codes:
  0 - At least one schedule was found
  1 - The search found no schedule
  2 - Command error (invalid kernel, missing files, database errors)

Examples:
  loopsched schedule kernels.cue --kernel matmul
  loopsched schedule kernels.cue --kernel matmul --priority k,kk
  loopsched schedule kernels.cue --all --max 10 --format json
  loopsched schedule kernels.cue --store runs.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Kernel, "kernel", "k", "", "kernel to schedule")
	cmd.Flags().StringSliceVar(&opts.Priority, "priority", nil, "loop priority, outermost first")
	cmd.Flags().BoolVar(&opts.All, "all", false, "print every schedule up to --max")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "maximum schedules with --all (0 = unlimited)")
	cmd.Flags().StringVar(&opts.StorePath, "store", "", "record the run in this SQLite database")
	cmd.Flags().BoolVar(&opts.Interactive, "interactive", false, "replay the longest dead end when no schedule exists")
	cmd.Flags().IntVar(&opts.DebugLength, "debug-length", 0, "trace partial schedules of at least this length")
	cmd.Flags().BoolVar(&opts.NoBoost, "no-boost", false, "disable the boosting fallback")

	return cmd
}

// applyConfig fills flags the user did not set from the configuration.
func (o *ScheduleOptions) applyConfig(cmd *cobra.Command) {
	cfg := o.settings()
	flags := cmd.Flags()
	if !flags.Changed("max") {
		o.Max = cfg.Scheduler.MaxSchedules
	}
	if !flags.Changed("store") {
		o.StorePath = cfg.Store.Path
	}
	if !flags.Changed("interactive") {
		o.Interactive = cfg.Scheduler.Interactive
	}
	if !flags.Changed("debug-length") {
		o.DebugLength = cfg.Scheduler.DebugLength
	}
	if !flags.Changed("no-boost") {
		o.NoBoost = !cfg.Scheduler.BoostFallback
	}
}

// limit is the number of schedules to take from the generator.
func (o *ScheduleOptions) limit() int {
	if !o.All {
		return 1
	}
	return o.Max
}

func runSchedule(opts *ScheduleOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)
	opts.applyConfig(cmd)

	k, err := LoadKernel(path, opts.Kernel)
	if err != nil {
		_ = formatter.Error(loadErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load kernel", err)
	}
	formatter.VerboseLog("Scheduling kernel %s (%d instructions)", k.Name, len(k.Instructions))

	prio := opts.Priority
	if prio == nil {
		prio = k.LoopPriority
	}

	var session *store.RunSession
	if opts.StorePath != "" {
		st, err := store.Open(opts.StorePath)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open store", err)
		}
		defer st.Close()

		session, err = st.BeginRun(ctx, k, prio)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
		formatter.VerboseLog("Recording run %s in %s", session.ID(), opts.StorePath)
	}

	rec := newScheduleRecorder(opts, cmd, formatter)
	genOpts := []engine.Option{
		engine.WithRecorder(rec),
		engine.WithLoopPriority(prio),
		engine.WithLogger(opts.logger()),
	}
	if opts.NoBoost {
		genOpts = append(genOpts, engine.WithoutBoostFallback())
	}

	output := ScheduleOutput{Kernel: k.Name, Schedules: []ScheduleEntry{}}
	if session != nil {
		output.RunID = session.ID()
	}

	var genErr error
	for res, err := range engine.Generate(ctx, k, genOpts...) {
		if err != nil {
			genErr = err
			break
		}
		if session != nil {
			if err := session.AddSchedule(ctx, res.Schedule, res.OwedBarriers, res.Boosted); err != nil {
				_ = formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "failed to record schedule", err)
			}
		}

		entry := ScheduleEntry{
			Index:        len(output.Schedules),
			Dump:         ir.DumpSchedule(res.Schedule),
			Items:        res.Schedule,
			Barriers:     res.Schedule.BarrierCount(),
			OwedBarriers: res.OwedBarriers,
			Boosted:      res.Boosted,
			Loops:        describeLoops(res.Kernel, res.Schedule),
		}
		output.Schedules = append(output.Schedules, entry)
		if formatter.Format != "json" {
			writeScheduleText(formatter.Writer, k.Name, entry, res.Schedule)
		}
		if n := opts.limit(); n > 0 && len(output.Schedules) >= n {
			break
		}
	}

	if session != nil {
		if _, err := session.Finish(ctx, runOutcome(rec, genErr)); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to record run", err)
		}
	}

	if genErr != nil {
		return outputScheduleError(formatter, genErr)
	}

	if formatter.Format == "json" {
		return formatter.Success(output)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d schedule(s) for %s\n", len(output.Schedules), k.Name)
	return nil
}

// newScheduleRecorder builds the search recorder. Progress goes to
// stderr; the trace goes to stdout unless stdout carries JSON.
func newScheduleRecorder(opts *ScheduleOptions, cmd *cobra.Command, formatter *OutputFormatter) *engine.Recorder {
	traceOut := formatter.Writer
	if formatter.Format == "json" {
		traceOut = formatter.Diag()
	}

	recOpts := []engine.RecorderOption{
		engine.WithProgress(formatter.Diag()),
		engine.WithTrace(traceOut),
	}
	if opts.DebugLength > 0 {
		recOpts = append(recOpts, engine.WithDebugLength(opts.DebugLength))
	}
	if opts.Interactive {
		recOpts = append(recOpts, engine.WithInteractive(pauseOn(cmd.InOrStdin(), traceOut)))
	}
	return engine.NewRecorder(recOpts...)
}

// pauseOn returns a pause function that waits for a line on in.
func pauseOn(in io.Reader, out io.Writer) func() {
	reader := bufio.NewReader(in)
	return func() {
		fmt.Fprint(out, "[press enter to continue]")
		_, _ = reader.ReadString('\n')
	}
}

// runOutcome maps the generator's final error to a run log status.
func runOutcome(rec *engine.Recorder, err error) store.Outcome {
	out := store.Outcome{
		Status:         store.RunOK,
		Successes:      rec.Successes(),
		DeadEnds:       rec.DeadEnds(),
		LongestDeadEnd: rec.LongestDeadEnd(),
		Err:            err,
	}
	switch {
	case err == nil:
	case engine.IsNoScheduleError(err):
		out.Status = store.RunNoSchedule
	default:
		out.Status = store.RunError
	}
	return out
}

// outputScheduleError reports a generator failure with the right exit code.
func outputScheduleError(formatter *OutputFormatter, err error) error {
	var se *engine.ScheduleError
	switch {
	case engine.IsNoScheduleError(err) && errors.As(err, &se):
		_ = formatter.Error(ErrCodeNoSchedule, se.Message, se.Details)
		if formatter.Format != "json" {
			fmt.Fprintf(formatter.Writer, "  dead ends: %s\n", se.Details["dead_ends"])
			fmt.Fprintf(formatter.Writer, "  longest dead end: %s\n", se.Details["longest_dead_end"])
		}
		return WrapExitError(ExitFailure, "no schedule found", err)
	case compiler.IsValidationError(err):
		_ = formatter.Error(ErrCodeInvalidKernel, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid kernel", err)
	default:
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scheduling failed", err)
	}
}

// writeScheduleText prints one schedule as an indented loop nest.
func writeScheduleText(w io.Writer, kernel string, entry ScheduleEntry, sched ir.Schedule) {
	header := fmt.Sprintf("Schedule %d for %s: %d barrier(s)", entry.Index+1, kernel, entry.Barriers)
	if entry.Boosted {
		header += " (boosted)"
	}
	fmt.Fprintln(w, header)

	loops := make(map[int]LoopInfo, len(entry.Loops))
	for _, l := range entry.Loops {
		loops[l.At] = l
	}

	depth := 1
	for idx, item := range sched {
		switch it := item.(type) {
		case ir.EnterLoop:
			fmt.Fprintf(w, "%sfor %s%s\n", indent(depth), it.Iname, loopNote(loops[idx]))
			depth++
		case ir.LeaveLoop:
			depth--
			fmt.Fprintf(w, "%send %s\n", indent(depth), it.Iname)
		case ir.RunInstruction:
			fmt.Fprintf(w, "%s%s\n", indent(depth), it.InsnID)
		case ir.Barrier:
			if it.Comment != "" {
				fmt.Fprintf(w, "%sbarrier # %s\n", indent(depth), it.Comment)
			} else {
				fmt.Fprintf(w, "%sbarrier\n", indent(depth))
			}
		}
	}

	if len(entry.OwedBarriers) > 0 {
		fmt.Fprintf(w, "  warning: no barrier protects local writes by %s\n",
			strings.Join(entry.OwedBarriers, ", "))
	}
	fmt.Fprintln(w)
}

// loopNote is the trailing comment on a "for" line. Empty when the loop
// was not described.
func loopNote(l LoopInfo) string {
	if l.Iname == "" {
		return ""
	}
	note := "  # inames " + strings.Join(l.Inames, " ")
	if l.Barrier {
		note += ", contains barrier"
	}
	return note
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}
