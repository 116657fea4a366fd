package store

import (
	"context"
	"database/sql"
	"fmt"
)

const runColumns = `id, seq, kernel_name, kernel_hash, status, successes, dead_ends,
	longest_dead_end_len, longest_dead_end, boosted, loop_priority, error,
	scheduler_version, ir_version`

// ReadRun returns a single run by id.
// Returns sql.ErrNoRows (wrapped) if no run exists with the given id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns runs ordered by seq. An empty kernel lists every run.
// Ordering: ORDER BY seq ASC, id COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListRuns(ctx context.Context, kernel string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if kernel != "" {
		query += ` WHERE kernel_name = ?`
		args = append(args, kernel)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadSchedules returns the schedules of a run in generation order.
func (s *Store) ReadSchedules(ctx context.Context, runID string) ([]ScheduleRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, idx, schedule_hash, dump, items, owed, boosted
		FROM schedules
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}
	defer rows.Close()

	recs := []ScheduleRecord{}
	for rows.Next() {
		var (
			rec     ScheduleRecord
			items   string
			owed    string
			boosted int
		)
		if err := rows.Scan(&rec.RunID, &rec.Index, &rec.Hash, &rec.Dump, &items, &owed, &boosted); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		if rec.Schedule, err = unmarshalSchedule(items); err != nil {
			return nil, err
		}
		if rec.OwedBarriers, err = unmarshalStrings(owed); err != nil {
			return nil, err
		}
		rec.Boosted = boosted != 0
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return recs, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		status   string
		boosted  int
		prioJSON string
	)
	err := row.Scan(
		&run.ID,
		&run.Seq,
		&run.KernelName,
		&run.KernelHash,
		&status,
		&run.Successes,
		&run.DeadEnds,
		&run.LongestDeadEndLen,
		&run.LongestDeadEnd,
		&boosted,
		&prioJSON,
		&run.Error,
		&run.SchedulerVersion,
		&run.IRVersion,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Status = RunStatus(status)
	run.Boosted = boosted != 0
	if run.LoopPriority, err = unmarshalStrings(prioJSON); err != nil {
		return Run{}, err
	}
	return run, nil
}
