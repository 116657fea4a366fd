package engine

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/loopsched/internal/ir"
)

// progressEvery is how many search outcomes pass between progress lines.
const progressEvery = 50

// Recorder tracks search statistics and drives the debug trace.
//
// A Recorder belongs to one Generate call. It is not safe for concurrent
// use. All methods are no-ops on a nil *Recorder.
type Recorder struct {
	successes int
	deadEnds  int
	longest   ir.Schedule

	debugEnabled bool
	debugLength  int
	interactive  bool
	pauseFn      func()

	progress io.Writer
	trace    io.Writer
	now      func() time.Time

	running     bool
	startedAt   time.Time
	elapsed     time.Duration
	wroteStatus int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithProgress sets where the carriage-return progress line is written.
func WithProgress(w io.Writer) RecorderOption {
	return func(r *Recorder) { r.progress = w }
}

// WithTrace sets where step-by-step debug output is written.
func WithTrace(w io.Writer) RecorderOption {
	return func(r *Recorder) { r.trace = w }
}

// WithDebugLength enables the step trace for partial schedules of at
// least n items.
func WithDebugLength(n int) RecorderOption {
	return func(r *Recorder) {
		r.debugEnabled = true
		r.debugLength = n
	}
}

// WithInteractive enables dead-end replay. pause is called at each
// debug pause point; it may be nil.
func WithInteractive(pause func()) RecorderOption {
	return func(r *Recorder) {
		r.interactive = true
		r.pauseFn = pause
	}
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) RecorderOption {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns a running Recorder.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		progress: io.Discard,
		trace:    io.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Start()
	return r
}

// Start resumes the elapsed-time clock.
func (r *Recorder) Start() {
	if r == nil || r.running {
		return
	}
	r.running = true
	r.startedAt = r.now()
}

// Stop pauses the elapsed-time clock so consumer time is not counted.
func (r *Recorder) Stop() {
	if r == nil || !r.running {
		return
	}
	if r.wroteStatus == 2 {
		fmt.Fprint(r.progress, "\r"+strings.Repeat(" ", 80)+"\n")
		r.wroteStatus = 1
	}
	r.elapsed += r.now().Sub(r.startedAt)
	r.running = false
}

// Done writes the closing line if any progress was shown.
func (r *Recorder) Done() {
	if r == nil {
		return
	}
	r.Stop()
	if r.wroteStatus > 0 {
		fmt.Fprint(r.progress, "\rscheduler finished"+strings.Repeat(" ", 40)+"\n")
		r.wroteStatus = 0
	}
}

// Elapsed returns the time spent searching so far.
func (r *Recorder) Elapsed() time.Duration {
	if r == nil {
		return 0
	}
	if r.running {
		return r.elapsed + r.now().Sub(r.startedAt)
	}
	return r.elapsed
}

func (r *Recorder) Successes() int {
	if r == nil {
		return 0
	}
	return r.successes
}

func (r *Recorder) DeadEnds() int {
	if r == nil {
		return 0
	}
	return r.deadEnds
}

// LongestDeadEnd returns the longest partial schedule that could not be
// extended.
func (r *Recorder) LongestDeadEnd() ir.Schedule {
	if r == nil {
		return nil
	}
	return r.longest
}

// Interactive reports whether dead-end replay is enabled.
func (r *Recorder) Interactive() bool {
	return r != nil && r.interactive
}

// SetDebugLength enables the step trace from depth n onwards.
func (r *Recorder) SetDebugLength(n int) {
	if r == nil {
		return
	}
	r.debugEnabled = true
	r.debugLength = n
}

func (r *Recorder) logSuccess() {
	if r == nil {
		return
	}
	r.successes++
	r.update()
}

func (r *Recorder) logDeadEnd(sched ir.Schedule) {
	if r == nil {
		return
	}
	if len(sched) > len(r.longest) {
		r.longest = sched
	}
	r.deadEnds++
	r.update()
}

func (r *Recorder) update() {
	if (r.successes+r.deadEnds)%progressEvery != 0 || r.successes <= 2 {
		return
	}
	if r.debugLength > 0 || r.Elapsed() > time.Second {
		fmt.Fprintf(r.progress, "\rscheduling... %d successes, %d dead ends (longest %d)",
			r.successes, r.deadEnds, len(r.longest))
		r.wroteStatus = 2
	}
}

func (r *Recorder) debugging(depth int) bool {
	return r != nil && r.debugEnabled && depth >= r.debugLength
}

func (r *Recorder) tracef(format string, args ...any) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.trace, format+"\n", args...)
}

func (r *Recorder) pause() {
	if r == nil || r.pauseFn == nil {
		return
	}
	r.Stop()
	r.pauseFn()
	r.Start()
}
