package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/loopsched/internal/ir"
)

// RunWithGolden runs scenario and compares what it produced with
// testdata/golden/<name>.golden. Regenerate with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	data, err := ir.MarshalCanonical(goldenDoc(scenario.Name, result))
	if err != nil {
		return nil, err
	}
	goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	).Assert(t, scenario.Name, data)
	return result, nil
}

// goldenDoc is the canonical-JSON view of a run. Optional keys are omitted
// when unset so fixtures only mention what matters.
func goldenDoc(name string, r *Result) map[string]any {
	schedules := []any{}
	for _, o := range r.Schedules {
		entry := map[string]any{"dump": o.Dump, "barriers": o.Barriers}
		if o.Boosted {
			entry["boosted"] = true
		}
		if len(o.Owed) != 0 {
			entry["owed"] = o.Owed
		}
		schedules = append(schedules, entry)
	}

	doc := map[string]any{"scenario_name": name, "schedules": schedules}
	if r.NoSchedule {
		doc["no_schedule"] = true
		doc["longest_dead_end"] = r.LongestDeadEnd
	}
	return doc
}
