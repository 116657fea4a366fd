package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/roach88/loopsched/internal/compiler"
	"github.com/roach88/loopsched/internal/ir"
)

// Result is one scheduled kernel.
type Result struct {
	// Seq orders results within one Generate call, starting at 1.
	Seq int64

	// Kernel is a copy of the input kernel carrying Schedule.
	Kernel *ir.Kernel

	// Schedule includes inserted barriers.
	Schedule ir.Schedule

	// OwedBarriers lists shared-storage writers no barrier protects.
	OwedBarriers []string

	// Boosted is set when the result came from the boosting fallback.
	Boosted bool
}

// Preprocessor normalizes and checks a kernel before scheduling.
type Preprocessor func(*ir.Kernel) (*ir.Kernel, error)

type options struct {
	loopPriority []string
	recorder     *Recorder
	preprocess   Preprocessor
	logger       *slog.Logger
	noFallback   bool
	clock        *Clock
}

// Option configures Generate.
type Option func(*options)

// WithLoopPriority overrides the kernel's default loop priority.
func WithLoopPriority(prio []string) Option {
	return func(o *options) { o.loopPriority = prio }
}

// WithRecorder supplies the statistics and debug recorder.
func WithRecorder(rec *Recorder) Option {
	return func(o *options) { o.recorder = rec }
}

// WithPreprocessor replaces compiler.Prepare.
func WithPreprocessor(p Preprocessor) Option {
	return func(o *options) { o.preprocess = p }
}

// WithLogger sets the logger for barrier warnings. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithoutBoostFallback disables the boosted retry after a strict search
// finds nothing.
func WithoutBoostFallback() Option {
	return func(o *options) { o.noFallback = true }
}

// WithClock sets the clock that stamps Result.Seq.
func WithClock(c *Clock) Option {
	return func(o *options) { o.clock = c }
}

// Generate lazily yields barrier-annotated schedules for k.
//
// The kernel is preprocessed and checked first. The strict search runs
// next; only if it yields nothing does the boosting search run. When
// neither finds a schedule, a single *ScheduleError with code NO_SCHEDULE
// is yielded. If the recorder is interactive, the longest dead end is
// replayed with tracing before that error.
//
// Stopping the range loop stops the search.
func Generate(ctx context.Context, k *ir.Kernel, opts ...Option) iter.Seq2[Result, error] {
	o := options{preprocess: compiler.Prepare}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.clock == nil {
		o.clock = &Clock{}
	}

	return func(yield func(Result, error) bool) {
		kernel, err := o.preprocess(k)
		if err != nil {
			if k == nil {
				yield(Result{}, fmt.Errorf("prepare kernel: %w", err))
			} else {
				yield(Result{}, fmt.Errorf("prepare kernel %s: %w", k.Name, err))
			}
			return
		}

		rec := o.recorder
		if rec == nil {
			rec = NewRecorder()
		}
		rec.Start()
		defer rec.Done()

		prio := o.loopPriority
		if prio == nil {
			prio = kernel.LoopPriority
		}

		modes := []bool{false, true}
		if o.noFallback {
			modes = modes[:1]
		}

		count := 0
		for _, allowBoost := range modes {
			if allowBoost {
				o.logger.Debug("strict search found no schedule, retrying with boost", "kernel", kernel.Name)
			}
			for sched := range Search(ctx, kernel, prio, allowBoost, rec) {
				withBarriers, owed := InsertBarriers(kernel, sched)
				if len(owed) > 0 {
					o.logger.Warn("barrier insertion finished without inserting barriers for local memory writes",
						"kernel", kernel.Name,
						"instructions", strings.Join(owed, ","),
						"hint", "local memory was likely written but never read",
					)
				}
				count++
				res := Result{
					Seq:          o.clock.Next(),
					Kernel:       kernel.WithSchedule(withBarriers),
					Schedule:     withBarriers,
					OwedBarriers: owed,
					Boosted:      allowBoost,
				}
				rec.Stop()
				more := yield(res, nil)
				rec.Start()
				if !more {
					return
				}
			}
			if count > 0 || ctx.Err() != nil {
				break
			}
		}

		if err := ctx.Err(); err != nil {
			yield(Result{}, err)
			return
		}
		if count > 0 {
			return
		}

		noSchedule := NewNoScheduleError(kernel.Name, rec)
		o.logger.Debug("no schedule found",
			"kernel", kernel.Name,
			"dead_ends", rec.DeadEnds(),
			"longest_dead_end", len(rec.LongestDeadEnd()),
		)
		if rec.Interactive() {
			replayLongestDeadEnd(ctx, kernel, prio, rec)
		}
		yield(Result{}, noSchedule)
	}
}

// replayLongestDeadEnd reruns the strict search with the step trace on
// from the depth of the longest dead end.
func replayLongestDeadEnd(ctx context.Context, k *ir.Kernel, prio []string, rec *Recorder) {
	longest := rec.LongestDeadEnd()
	rec.tracef("%s", strings.Repeat("-", 75))
	rec.tracef("ERROR: Sorry--the scheduler failed to find a schedule.")
	rec.tracef("The scheduler will now replay the longest dead end with debug output.")
	rec.tracef("LONGEST DEAD END: %s", ir.DumpSchedule(longest))
	rec.tracef("%s", strings.Repeat("-", 75))
	rec.pause()

	rec.SetDebugLength(len(longest))
	for range Search(ctx, k, prio, false, rec) {
	}
}

// ErrNoResult is returned by First if Generate yields nothing at all.
var ErrNoResult = errors.New("generate yielded no result")

// First returns the first schedule Generate yields.
func First(ctx context.Context, k *ir.Kernel, opts ...Option) (Result, error) {
	for res, err := range Generate(ctx, k, opts...) {
		return res, err
	}
	return Result{}, ErrNoResult
}

// Collect returns up to limit schedules (all of them when limit <= 0).
func Collect(ctx context.Context, k *ir.Kernel, limit int, opts ...Option) ([]Result, error) {
	var out []Result
	for res, err := range Generate(ctx, k, opts...) {
		if err != nil {
			return out, err
		}
		out = append(out, res)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
