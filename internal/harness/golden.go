package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docsync/internal/ir"
)

// TraceSnapshot captures what a scenario did: the edit script, the remote
// mutations, the executor's counts and the final page text.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string
	Trace        []TraceEvent
	Outcome      ir.UpdateResult
	Final        []string
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. Sequence numbers are left out: list order already
// carries them.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	ops := []any{}
	calls := []any{}
	for _, event := range s.Trace {
		switch event.Type {
		case EventOp:
			m := map[string]any{"op": event.Op}
			if event.ExistingID != "" {
				m["existing_id"] = event.ExistingID
			}
			if event.BlockType != "" {
				m["block_type"] = event.BlockType
			}
			ops = append(ops, m)
		case EventCall:
			m := map[string]any{"method": event.Method, "target": event.Target}
			if event.After != "" {
				m["after"] = event.After
			}
			if len(event.BlockIDs) > 0 {
				m["block_ids"] = event.BlockIDs
			}
			calls = append(calls, m)
		}
	}

	final := s.Final
	if final == nil {
		final = []string{}
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"ops":           ops,
		"calls":         calls,
		"result": map[string]any{
			"strategy": string(s.Outcome.Strategy),
			"kept":     s.Outcome.Kept,
			"inserted": s.Outcome.Inserted,
			"deleted":  s.Outcome.Deleted,
			"replaced": s.Outcome.Replaced,
		},
		"final": final,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	return ir.MarshalCanonical(s.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
		Outcome:      result.Outcome,
		Final:        result.Final,
	}
	traceJSON, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
