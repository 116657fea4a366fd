package store

import "github.com/roach88/loopsched/internal/ir"

// RunStatus is the outcome of a scheduling run.
type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunOK         RunStatus = "ok"
	RunNoSchedule RunStatus = "no_schedule"
	RunError      RunStatus = "error"
)

// Run is one recorded Generate call.
type Run struct {
	ID         string
	Seq        int64
	KernelName string
	KernelHash string
	Status     RunStatus

	Successes         int
	DeadEnds          int
	LongestDeadEnd    string
	LongestDeadEndLen int
	Boosted           bool

	LoopPriority []string
	Error        string

	SchedulerVersion string
	IRVersion        string
}

// ScheduleRecord is one schedule a run produced.
type ScheduleRecord struct {
	RunID        string
	Index        int
	Hash         string
	Dump         string
	Schedule     ir.Schedule
	OwedBarriers []string
	Boosted      bool
}
