package harness

import (
	"fmt"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type      string   // Assertion type for categorization
	Expected  string   // Human-readable expected outcome
	Actual    string   // Human-readable actual outcome
	Schedules []string // Every produced schedule for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Schedules) > 0 {
		fmt.Fprintf(&buf, "\nSchedules:\n")
		for i, s := range e.Schedules {
			fmt.Fprintf(&buf, "  [%d] %s\n", i, s)
		}
	}

	return buf.String()
}

func failure(result *Result, typ, expected, actual string) error {
	return &AssertionError{
		Type:      typ,
		Expected:  expected,
		Actual:    actual,
		Schedules: result.Dumps(),
	}
}

// scheduleAt returns the schedule an indexed assertion targets.
func scheduleAt(result *Result, a Assertion) (ScheduleOutcome, error) {
	if a.Index >= len(result.Schedules) {
		return ScheduleOutcome{}, failure(result, a.Type,
			fmt.Sprintf("schedule at index %d", a.Index),
			fmt.Sprintf("%d schedules", len(result.Schedules)))
	}
	return result.Schedules[a.Index], nil
}

func assertScheduleCount(result *Result, a Assertion) error {
	if got := len(result.Schedules); got != a.Count {
		return failure(result, a.Type, fmt.Sprintf("%d schedules", a.Count), fmt.Sprintf("%d schedules", got))
	}
	return nil
}

func assertFirstSchedule(result *Result, a Assertion) error {
	if len(result.Schedules) == 0 {
		return failure(result, a.Type, a.Schedule, "no schedules")
	}
	if got := result.Schedules[0].Dump; got != a.Schedule {
		return failure(result, a.Type, a.Schedule, got)
	}
	return nil
}

func assertAnySchedule(result *Result, a Assertion) error {
	if !slices.Contains(result.Dumps(), a.Schedule) {
		return failure(result, a.Type, a.Schedule, "not among produced schedules")
	}
	return nil
}

func assertNoSchedule(result *Result, a Assertion) error {
	if !result.NoSchedule {
		return failure(result, a.Type, "search exhausted", fmt.Sprintf("%d schedules", len(result.Schedules)))
	}
	if a.Schedule != "" && result.LongestDeadEnd != a.Schedule {
		return failure(result, a.Type,
			fmt.Sprintf("longest dead end %q", a.Schedule),
			fmt.Sprintf("longest dead end %q", result.LongestDeadEnd))
	}
	return nil
}

func assertBarrierCount(result *Result, a Assertion) error {
	s, err := scheduleAt(result, a)
	if err != nil {
		return err
	}
	if s.Barriers != a.Count {
		return failure(result, a.Type,
			fmt.Sprintf("%d barriers in schedule %d", a.Count, a.Index),
			fmt.Sprintf("%d barriers", s.Barriers))
	}
	return nil
}

func assertOwedContains(result *Result, a Assertion) error {
	s, err := scheduleAt(result, a)
	if err != nil {
		return err
	}
	if !slices.Contains(s.Owed, a.Insn) {
		return failure(result, a.Type,
			fmt.Sprintf("%s owed a barrier in schedule %d", a.Insn, a.Index),
			fmt.Sprintf("owed %v", s.Owed))
	}
	return nil
}

func assertOwedEmpty(result *Result, a Assertion) error {
	s, err := scheduleAt(result, a)
	if err != nil {
		return err
	}
	if len(s.Owed) > 0 {
		return failure(result, a.Type,
			fmt.Sprintf("no owed barriers in schedule %d", a.Index),
			fmt.Sprintf("owed %v", s.Owed))
	}
	return nil
}

func assertValid(result *Result, a Assertion) error {
	for i, s := range result.Schedules {
		if len(s.Violations) > 0 {
			return failure(result, a.Type,
				"every schedule passes the checks",
				fmt.Sprintf("schedule %d: %s", i, strings.Join(s.Violations, "; ")))
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertScheduleCount:
			err = assertScheduleCount(result, a)
		case AssertFirstSchedule:
			err = assertFirstSchedule(result, a)
		case AssertAnySchedule:
			err = assertAnySchedule(result, a)
		case AssertNoSchedule:
			err = assertNoSchedule(result, a)
		case AssertBarrierCount:
			err = assertBarrierCount(result, a)
		case AssertOwedContains:
			err = assertOwedContains(result, a)
		case AssertOwedEmpty:
			err = assertOwedEmpty(result, a)
		case AssertValid:
			err = assertValid(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}
