package store

import (
	"context"
	"fmt"

	"github.com/roach88/loopsched/internal/ir"
)

// WriteRun inserts or updates a run and returns it with its id and seq
// filled in.
//
// An empty ID is generated; a zero Seq becomes one past the largest seq
// in the log. Writing an existing id updates the outcome columns only, so
// a run can be written once when it starts and again when it finishes.
func (s *Store) WriteRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = s.ids.Generate()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}
	if run.SchedulerVersion == "" {
		run.SchedulerVersion = ir.SchedulerVersion
	}
	if run.IRVersion == "" {
		run.IRVersion = ir.IRVersion
	}

	prioJSON, err := marshalStrings(run.LoopPriority)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if run.Seq == 0 {
		var existing int64
		err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM runs WHERE id = ?`, run.ID).Scan(&existing)
		if err != nil {
			return Run{}, fmt.Errorf("write run: read seq: %w", err)
		}
		if existing > 0 {
			run.Seq = existing
		} else if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
			return Run{}, fmt.Errorf("write run: next seq: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, kernel_name, kernel_hash, status, successes, dead_ends,
		 longest_dead_end_len, longest_dead_end, boosted, loop_priority, error,
		 scheduler_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			successes = excluded.successes,
			dead_ends = excluded.dead_ends,
			longest_dead_end_len = excluded.longest_dead_end_len,
			longest_dead_end = excluded.longest_dead_end,
			boosted = excluded.boosted,
			error = excluded.error
	`,
		run.ID,
		run.Seq,
		run.KernelName,
		run.KernelHash,
		string(run.Status),
		run.Successes,
		run.DeadEnds,
		run.LongestDeadEndLen,
		run.LongestDeadEnd,
		boolToInt(run.Boosted),
		prioJSON,
		run.Error,
		run.SchedulerVersion,
		run.IRVersion,
	)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}

// WriteSchedule inserts a schedule produced by a run.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting the same
// (run, index) is silently ignored.
//
// Note: The run referenced by rec.RunID must exist (foreign key constraint).
func (s *Store) WriteSchedule(ctx context.Context, rec ScheduleRecord) error {
	hash, err := ir.ScheduleHash(rec.Schedule)
	if err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	items, err := marshalSchedule(rec.Schedule)
	if err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	owed, err := marshalStrings(rec.OwedBarriers)
	if err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules
		(run_id, idx, schedule_hash, dump, items, owed, boosted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, idx) DO NOTHING
	`,
		rec.RunID,
		rec.Index,
		hash,
		ir.DumpSchedule(rec.Schedule),
		items,
		owed,
		boolToInt(rec.Boosted),
	)
	if err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
