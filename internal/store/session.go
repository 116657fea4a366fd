package store

import (
	"context"
	"fmt"

	"github.com/roach88/loopsched/internal/ir"
)

// RunSession records one scheduling run as its schedules arrive.
type RunSession struct {
	store *Store
	run   Run
	next  int
}

// BeginRun writes a running run for k and returns a session for it.
func (s *Store) BeginRun(ctx context.Context, k *ir.Kernel, loopPriority []string) (*RunSession, error) {
	hash, err := ir.KernelHash(k)
	if err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}
	run, err := s.WriteRun(ctx, Run{
		KernelName:   k.Name,
		KernelHash:   hash,
		Status:       RunRunning,
		LoopPriority: loopPriority,
	})
	if err != nil {
		return nil, err
	}
	return &RunSession{store: s, run: run}, nil
}

// ID returns the run id.
func (rs *RunSession) ID() string {
	return rs.run.ID
}

// AddSchedule appends the next schedule of the run.
func (rs *RunSession) AddSchedule(ctx context.Context, sched ir.Schedule, owed []string, boosted bool) error {
	err := rs.store.WriteSchedule(ctx, ScheduleRecord{
		RunID:        rs.run.ID,
		Index:        rs.next,
		Schedule:     sched,
		OwedBarriers: owed,
		Boosted:      boosted,
	})
	if err != nil {
		return err
	}
	rs.next++
	if boosted {
		rs.run.Boosted = true
	}
	return nil
}

// Outcome is what a finished run reports.
type Outcome struct {
	Status         RunStatus
	Successes      int
	DeadEnds       int
	LongestDeadEnd ir.Schedule
	Err            error
}

// Finish records the outcome and returns the final run.
func (rs *RunSession) Finish(ctx context.Context, out Outcome) (Run, error) {
	rs.run.Status = out.Status
	rs.run.Successes = out.Successes
	rs.run.DeadEnds = out.DeadEnds
	rs.run.LongestDeadEnd = ir.DumpSchedule(out.LongestDeadEnd)
	rs.run.LongestDeadEndLen = len(out.LongestDeadEnd)
	if out.Err != nil {
		rs.run.Error = out.Err.Error()
	}
	run, err := rs.store.WriteRun(ctx, rs.run)
	if err != nil {
		return Run{}, err
	}
	rs.run = run
	return run, nil
}
