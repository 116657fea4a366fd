package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/loopsched/internal/ir"
	"github.com/roach88/loopsched/internal/testutil"
)

// createTestStore opens a fresh store with sequential run ids.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithIDGenerator(testutil.NewSequentialIDGenerator("run")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with minimal required fields.
func createTestRun(kernel string) Run {
	return Run{
		KernelName: kernel,
		KernelHash: "test-hash",
		Status:     RunRunning,
	}
}

// createTestSchedule builds "<i> a | b </i>".
func createTestSchedule() ir.Schedule {
	return ir.Schedule{
		ir.EnterLoop{Iname: "i"},
		ir.RunInstruction{InsnID: "a"},
		ir.Barrier{Comment: "dependency: b on t (read-after-write after a)"},
		ir.RunInstruction{InsnID: "b"},
		ir.LeaveLoop{Iname: "i"},
	}
}
