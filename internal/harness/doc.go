// Package harness runs scheduling scenarios against the engine.
//
// A scenario is a YAML file naming a CUE kernel file and a list of
// assertions about the schedules the engine produces for it:
//
//	name: tiled_matmul
//	description: fetch is fenced off from the multiply that reads it
//	kernel: kernels/matmul.cue
//	kernel_name: matmul
//	assertions:
//	  - type: first_schedule
//	    schedule: "init <k> | fetch | <kk> mul </kk> </k> store"
//	  - type: owed_empty
//
// Each run records into a fresh in-memory store, so assertions evaluate
// the schedules as they were persisted. Run ids are sequential, which
// keeps golden snapshots stable.
//
// Assertion types:
//   - schedule_count: exactly count schedules were produced
//   - first_schedule: the first schedule dumps as schedule
//   - any_schedule: some schedule dumps as schedule
//   - no_schedule: the search failed; schedule, if set, is the longest dead end
//   - barrier_count: the schedule at index has count barriers
//   - owed_contains: the schedule at index owes a barrier to insn
//   - owed_empty: the schedule at index owes nothing
//   - valid: every schedule passes the structural and barrier checks
package harness
