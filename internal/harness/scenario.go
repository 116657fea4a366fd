package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultMaxSchedules caps enumeration when a scenario sets no limit.
const DefaultMaxSchedules = 100

// Scenario defines a scheduling test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Kernel is the CUE file or directory holding the kernel.
	// Relative paths resolve against the scenario file.
	Kernel string `yaml:"kernel"`

	// KernelName selects a kernel when the file defines several.
	KernelName string `yaml:"kernel_name,omitempty"`

	// LoopPriority overrides the kernel's loop priority.
	LoopPriority []string `yaml:"loop_priority,omitempty"`

	// MaxSchedules caps how many schedules are enumerated.
	MaxSchedules int `yaml:"max_schedules,omitempty"`

	// NoBoost disables the boosting fallback.
	NoBoost bool `yaml:"no_boost,omitempty"`

	// ExpectError is "no_schedule" or "invalid_kernel" when the run should fail.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the produced schedules.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the schedules of a run.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Schedule is a dump such as "<i> a | b </i>" (first_schedule,
	// any_schedule, and optionally no_schedule for the longest dead end).
	Schedule string `yaml:"schedule,omitempty"`

	// Count is the expected number (schedule_count, barrier_count).
	Count int `yaml:"count,omitempty"`

	// Index selects the schedule (barrier_count, owed_contains, owed_empty).
	Index int `yaml:"index,omitempty"`

	// Insn is the instruction id expected in the owed list (owed_contains).
	Insn string `yaml:"insn,omitempty"`
}

// Assertion type constants.
const (
	AssertScheduleCount = "schedule_count"
	AssertFirstSchedule = "first_schedule"
	AssertAnySchedule   = "any_schedule"
	AssertNoSchedule    = "no_schedule"
	AssertBarrierCount  = "barrier_count"
	AssertOwedContains  = "owed_contains"
	AssertOwedEmpty     = "owed_empty"
	AssertValid         = "valid"
)

// Expected error kinds.
const (
	ErrorNoSchedule    = "no_schedule"
	ErrorInvalidKernel = "invalid_kernel"
)

// LoadScenario parses the YAML file at path. Unknown keys are errors so a
// misspelt field fails loudly. A relative kernel path is taken relative to
// the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.Kernel != "" && !filepath.IsAbs(s.Kernel) {
		s.Kernel = filepath.Join(filepath.Dir(path), s.Kernel)
	}
	if err := s.check(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scenario) check() error {
	for _, f := range [...]struct{ name, value string }{
		{"name", s.Name},
		{"description", s.Description},
		{"kernel", s.Kernel},
	} {
		if f.value == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	if _, err := os.Stat(s.Kernel); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("kernel file not found: %s", s.Kernel)
	}
	if s.MaxSchedules < 0 {
		return errors.New("max_schedules must be non-negative")
	}
	if s.ExpectError != "" && s.ExpectError != ErrorNoSchedule && s.ExpectError != ErrorInvalidKernel {
		return fmt.Errorf("unknown expect_error %q", s.ExpectError)
	}
	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := a.check(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

// assertionFields lists, per assertion type, the field it cannot do
// without. An empty entry means the type takes no required field.
var assertionFields = map[string]string{
	AssertScheduleCount: "",
	AssertBarrierCount:  "",
	AssertFirstSchedule: "schedule",
	AssertAnySchedule:   "schedule",
	AssertOwedContains:  "insn",
	AssertNoSchedule:    "",
	AssertOwedEmpty:     "",
	AssertValid:         "",
}

func (a Assertion) check() error {
	if a.Type == "" {
		return errors.New("type is required")
	}
	required, known := assertionFields[a.Type]
	switch {
	case !known:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	case a.Index < 0:
		return errors.New("index must be non-negative")
	case a.Count < 0:
		return fmt.Errorf("count must be non-negative for %s", a.Type)
	case required == "schedule" && a.Schedule == "",
		required == "insn" && a.Insn == "":
		return fmt.Errorf("%s is required for %s", required, a.Type)
	}
	return nil
}
