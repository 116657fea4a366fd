package harness

// ScheduleOutcome is one schedule as recorded in the run log.
type ScheduleOutcome struct {
	Dump       string   `json:"dump"`
	Owed       []string `json:"owed,omitempty"`
	Boosted    bool     `json:"boosted,omitempty"`
	Barriers   int      `json:"barriers"`
	Violations []string `json:"violations,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions and the error expectation match.
	Pass bool `json:"pass"`

	// RunID is the run's id in the scenario's store.
	RunID string `json:"run_id,omitempty"`

	// Schedules in generation order.
	Schedules []ScheduleOutcome `json:"schedules"`

	// NoSchedule is set when the search was exhausted.
	NoSchedule bool `json:"no_schedule,omitempty"`

	// DeadEnds and LongestDeadEnd come from the search statistics.
	DeadEnds       int    `json:"dead_ends"`
	LongestDeadEnd string `json:"longest_dead_end,omitempty"`

	// ErrorKind classifies a failed run: "no_schedule", "invalid_kernel" or "error".
	ErrorKind string `json:"error_kind,omitempty"`

	// Err is the driver's error message for a failed run.
	Err string `json:"err,omitempty"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Schedules: []ScheduleOutcome{},
		Errors:    []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Dumps returns the schedule dumps in order.
func (r *Result) Dumps() []string {
	out := make([]string, len(r.Schedules))
	for i, s := range r.Schedules {
		out[i] = s.Dump
	}
	return out
}
