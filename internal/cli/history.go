package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/loopsched/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	StorePath string
	RunID     string // show the schedules of one run
	Kernel    string // list only runs of this kernel
}

// RunSummary is one run as listed by history.
type RunSummary struct {
	ID             string `json:"id"`
	Seq            int64  `json:"seq"`
	Kernel         string `json:"kernel"`
	KernelHash     string `json:"kernel_hash"`
	Status         string `json:"status"`
	Successes      int    `json:"successes"`
	DeadEnds       int    `json:"dead_ends"`
	LongestDeadEnd string `json:"longest_dead_end,omitempty"`
	Boosted        bool   `json:"boosted,omitempty"`
	Error          string `json:"error,omitempty"`
}

// ScheduleSummary is one recorded schedule.
type ScheduleSummary struct {
	Index        int      `json:"index"`
	Hash         string   `json:"hash"`
	Dump         string   `json:"dump"`
	OwedBarriers []string `json:"owed_barriers,omitempty"`
	Boosted      bool     `json:"boosted,omitempty"`
}

// RunDetail is a run together with its schedules.
type RunDetail struct {
	Run       RunSummary        `json:"run"`
	Schedules []ScheduleSummary `json:"schedules"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded scheduling runs",
		Long: `List the scheduling runs recorded with "schedule --store", oldest
first, or show the schedules of one run.

Examples:
  loopsched history --store runs.db
  loopsched history --store runs.db --kernel matmul
  loopsched history --store runs.db --run 0190f2c4-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.StorePath, "store", "", "path to the run log database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the schedules of this run")
	cmd.Flags().StringVar(&opts.Kernel, "kernel", "", "list only runs of this kernel")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	path := opts.StorePath
	if path == "" {
		path = opts.settings().Store.Path
	}
	if path == "" {
		_ = formatter.Error(ErrCodeStore, "no run log configured: pass --store or set store.path", nil)
		return NewExitError(ExitCommandError, "no run log configured")
	}
	// Opening creates the database, so a missing file is reported instead.
	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run log not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "run log not found", err)
	}

	st, err := store.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer st.Close()

	if opts.RunID != "" {
		return showRun(ctx, st, opts.RunID, formatter)
	}
	return listRuns(ctx, st, opts.Kernel, formatter)
}

func listRuns(ctx context.Context, st *store.Store, kernel string, formatter *OutputFormatter) error {
	runs, err := st.ListRuns(ctx, kernel)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = summarizeRun(r)
	}
	if formatter.Format == "json" {
		return formatter.Success(summaries)
	}

	if len(summaries) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs recorded.")
		return nil
	}
	for _, r := range summaries {
		fmt.Fprintf(formatter.Writer, "%4d  %s  %-12s %-11s %d dead end(s)\n",
			r.Seq, r.ID, r.Kernel, r.Status, r.DeadEnds)
	}
	return nil
}

func showRun(ctx context.Context, st *store.Store, id string, formatter *OutputFormatter) error {
	run, err := st.ReadRun(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run %s not found", id), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	records, err := st.ReadSchedules(ctx, id)
	if err != nil {
		_ = formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read schedules", err)
	}

	detail := RunDetail{Run: summarizeRun(run), Schedules: make([]ScheduleSummary, len(records))}
	for i, rec := range records {
		detail.Schedules[i] = ScheduleSummary{
			Index:        rec.Index,
			Hash:         rec.Hash,
			Dump:         rec.Dump,
			OwedBarriers: rec.OwedBarriers,
			Boosted:      rec.Boosted,
		}
	}
	if formatter.Format == "json" {
		return formatter.Success(detail)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (kernel %s, %s)\n", detail.Run.ID, detail.Run.Kernel, detail.Run.Status)
	if detail.Run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", detail.Run.Error)
	}
	if detail.Run.LongestDeadEnd != "" {
		fmt.Fprintf(w, "  longest dead end: %s\n", detail.Run.LongestDeadEnd)
	}
	for _, s := range detail.Schedules {
		line := fmt.Sprintf("  [%d] %s", s.Index, s.Dump)
		if len(s.OwedBarriers) > 0 {
			line += fmt.Sprintf("  (owed: %s)", strings.Join(s.OwedBarriers, ", "))
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

func summarizeRun(r store.Run) RunSummary {
	return RunSummary{
		ID:             r.ID,
		Seq:            r.Seq,
		Kernel:         r.KernelName,
		KernelHash:     r.KernelHash,
		Status:         string(r.Status),
		Successes:      r.Successes,
		DeadEnds:       r.DeadEnds,
		LongestDeadEnd: r.LongestDeadEnd,
		Boosted:        r.Boosted,
		Error:          r.Error,
	}
}
