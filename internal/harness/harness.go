package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/engine"
	"github.com/roach88/loopsched/internal/ir"
	"github.com/roach88/loopsched/internal/store"
	"github.com/roach88/loopsched/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario against a private store with sequential run ids.
type Harness struct {
	store  *store.Store
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Load and select the kernel
// 2. Generate schedules, recording each into the store
// 3. Read the recorded schedules back and check them
// 4. Evaluate the error expectation and assertions
//
// The returned error covers infrastructure failures only (unreadable
// kernel file, store errors). Scheduling failures land in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	kernels, err := compiler.LoadKernels(scenario.Kernel)
	if err != nil {
		return nil, fmt.Errorf("failed to load kernel: %w", err)
	}
	k, err := compiler.SelectKernel(kernels, scenario.KernelName)
	if err != nil {
		return nil, fmt.Errorf("failed to load kernel: %w", err)
	}

	st, err := store.Open(":memory:", store.WithIDGenerator(testutil.NewSequentialIDGenerator(scenario.Name)))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	result, err := h.execute(ctx, scenario, k)
	if err != nil {
		return nil, err
	}

	h.checkErrorExpectation(scenario, result)
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

// execute runs the driver and fills the result from the recorded run.
func (h *Harness) execute(ctx context.Context, scenario *Scenario, k *ir.Kernel) (*Result, error) {
	prio := scenario.LoopPriority
	if prio == nil {
		prio = k.LoopPriority
	}

	session, err := h.store.BeginRun(ctx, k, prio)
	if err != nil {
		return nil, fmt.Errorf("failed to begin run: %w", err)
	}

	limit := scenario.MaxSchedules
	if limit == 0 {
		limit = DefaultMaxSchedules
	}

	rec := engine.NewRecorder()
	opts := []engine.Option{
		engine.WithRecorder(rec),
		engine.WithLogger(h.logger),
		engine.WithLoopPriority(prio),
	}
	if scenario.NoBoost {
		opts = append(opts, engine.WithoutBoostFallback())
	}

	result := NewResult()
	result.RunID = session.ID()

	var violations [][]string
	var genErr error
	for res, err := range engine.Generate(ctx, k, opts...) {
		if err != nil {
			genErr = err
			break
		}
		if err := session.AddSchedule(ctx, res.Schedule, res.OwedBarriers, res.Boosted); err != nil {
			return nil, fmt.Errorf("failed to record schedule: %w", err)
		}
		violations = append(violations, checkSchedule(res))
		if len(violations) >= limit {
			break
		}
	}

	outcome := store.Outcome{
		Status:         store.RunOK,
		Successes:      rec.Successes(),
		DeadEnds:       rec.DeadEnds(),
		LongestDeadEnd: rec.LongestDeadEnd(),
		Err:            genErr,
	}
	switch {
	case genErr == nil:
	case engine.IsNoScheduleError(genErr):
		outcome.Status = store.RunNoSchedule
		result.NoSchedule = true
		result.ErrorKind = ErrorNoSchedule
	case compiler.IsValidationError(genErr):
		outcome.Status = store.RunError
		result.ErrorKind = ErrorInvalidKernel
	case errors.Is(genErr, context.Canceled), errors.Is(genErr, context.DeadlineExceeded):
		return nil, genErr
	default:
		outcome.Status = store.RunError
		result.ErrorKind = "error"
	}

	run, err := session.Finish(ctx, outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}
	result.DeadEnds = run.DeadEnds
	result.LongestDeadEnd = run.LongestDeadEnd

	recs, err := h.store.ReadSchedules(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedules: %w", err)
	}
	for i, r := range recs {
		result.Schedules = append(result.Schedules, ScheduleOutcome{
			Dump:       r.Dump,
			Owed:       r.OwedBarriers,
			Boosted:    r.Boosted,
			Barriers:   r.Schedule.BarrierCount(),
			Violations: violations[i],
		})
	}

	if genErr != nil {
		result.Err = genErr.Error()
		h.logger.Info("scenario run failed",
			"kernel", k.Name,
			"error", genErr,
		)
	}
	h.logger.Info("scenario run completed",
		"kernel", k.Name,
		"run_id", run.ID,
		"schedules", len(recs),
	)
	return result, nil
}

// checkSchedule runs the structural and barrier checks on one result.
func checkSchedule(res engine.Result) []string {
	var out []string
	for _, v := range engine.CheckSchedule(res.Kernel, res.Schedule) {
		out = append(out, v.String())
	}
	for _, v := range engine.CheckBarriers(res.Kernel, res.Schedule) {
		out = append(out, v.String())
	}
	return out
}

// checkErrorExpectation compares the run's failure kind with expect_error.
func (h *Harness) checkErrorExpectation(scenario *Scenario, result *Result) {
	switch {
	case scenario.ExpectError == result.ErrorKind:
	case scenario.ExpectError == "":
		result.AddError(fmt.Sprintf("unexpected failure (%s): %s", result.ErrorKind, result.Err))
	case result.ErrorKind == "":
		result.AddError(fmt.Sprintf("expected failure %s, but scheduling succeeded", scenario.ExpectError))
	default:
		result.AddError(fmt.Sprintf("expected failure %s, got %s: %s", scenario.ExpectError, result.ErrorKind, result.Err))
	}
}
