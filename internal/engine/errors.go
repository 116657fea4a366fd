package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/loopsched/internal/ir"
)

// ScheduleError represents a failure to produce or verify a schedule.
//
// ScheduleError includes structured fields for diagnostics, so callers can
// report search statistics without parsing the message.
type ScheduleError struct {
	// Code identifies the error category.
	Code ScheduleErrorCode

	// Message is a human-readable description.
	Message string

	// Kernel names the affected kernel.
	Kernel string

	// Details contains additional context.
	Details map[string]string
}

// ScheduleErrorCode categorizes schedule errors.
type ScheduleErrorCode string

const (
	// ErrCodeNoSchedule indicates the search was exhausted, with and
	// without boosting, without finding a complete schedule.
	ErrCodeNoSchedule ScheduleErrorCode = "NO_SCHEDULE"

	// ErrCodeInvalidSchedule indicates a schedule broke a structural rule.
	ErrCodeInvalidSchedule ScheduleErrorCode = "INVALID_SCHEDULE"
)

// Error implements the error interface.
func (e *ScheduleError) Error() string {
	if e.Kernel != "" {
		return fmt.Sprintf("%s: %s (kernel=%s)", e.Code, e.Message, e.Kernel)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsNoScheduleError returns true if the search found no schedule.
// Uses errors.As to handle wrapped errors.
func IsNoScheduleError(err error) bool {
	var se *ScheduleError
	if errors.As(err, &se) {
		return se.Code == ErrCodeNoSchedule
	}
	return false
}

// IsInvalidScheduleError returns true if a schedule failed verification.
func IsInvalidScheduleError(err error) bool {
	var se *ScheduleError
	if errors.As(err, &se) {
		return se.Code == ErrCodeInvalidSchedule
	}
	return false
}

// NewNoScheduleError creates a ScheduleError carrying the recorder's
// statistics.
func NewNoScheduleError(kernel string, rec *Recorder) *ScheduleError {
	return &ScheduleError{
		Code:    ErrCodeNoSchedule,
		Message: "no valid schedule found",
		Kernel:  kernel,
		Details: map[string]string{
			"successes":        fmt.Sprintf("%d", rec.Successes()),
			"dead_ends":        fmt.Sprintf("%d", rec.DeadEnds()),
			"longest_dead_end": ir.DumpSchedule(rec.LongestDeadEnd()),
		},
	}
}

// Violation is one broken schedule rule found by CheckSchedule.
type Violation struct {
	Rule    string
	Index   int
	Message string
}

func (v Violation) String() string {
	if v.Index >= 0 {
		return fmt.Sprintf("%s at item %d: %s", v.Rule, v.Index, v.Message)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// NewInvalidScheduleError wraps violations in a ScheduleError.
func NewInvalidScheduleError(kernel string, violations []Violation) *ScheduleError {
	details := make(map[string]string, len(violations))
	for i, v := range violations {
		details[fmt.Sprintf("violation_%d", i)] = v.String()
	}
	msg := fmt.Sprintf("%d schedule violations", len(violations))
	if len(violations) == 1 {
		msg = violations[0].String()
	}
	return &ScheduleError{
		Code:    ErrCodeInvalidSchedule,
		Message: msg,
		Kernel:  kernel,
		Details: details,
	}
}
