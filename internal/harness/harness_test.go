package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/ir"
)

func ratio(r float64) *float64 { return &r }

func TestRun_UpdateInPlace(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "update_in_place",
		Description: "changed middle paragraph",
		Existing:    Document{Paragraphs: []string{"A", "X", "B"}},
		Desired:     Document{Paragraphs: []string{"A", "Y", "B"}},
		Assertions: []Assertion{
			{Type: AssertOpTypes, Ops: []string{"keep", "update", "keep"}},
			{Type: AssertCallOrder, Methods: []string{"update"}},
			{Type: AssertFinalText, Texts: []string{"A", "Y", "B"}},
			{Type: AssertHistory, Count: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	assert.Equal(t, ir.UpdateResult{Strategy: ir.StrategyDiff, Kept: 2, Inserted: 1}, result.Outcome)
	calls := result.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "b-2", calls[0].Target)

	ops := result.Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, "paragraph", ops[1].BlockType)
	assert.Equal(t, int64(1), ops[0].Seq)
	assert.Equal(t, int64(4), calls[0].Seq, "calls follow ops in the trace")
}

func TestRun_EmptyPage(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "empty_page",
		Description: "all inserts",
		Desired:     Document{Paragraphs: []string{"A", "B"}},
		Assertions: []Assertion{
			{Type: AssertOpTypes, Ops: []string{"insert", "insert"}},
			{Type: AssertRemoteCalls, Method: "append_children", Count: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	calls := result.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, DefaultPageID, calls[0].Target)
	assert.Empty(t, calls[0].After)
	assert.Equal(t, []string{"b-1", "b-2"}, calls[0].BlockIDs)
}

func TestRun_Delete(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "delete_middle",
		Description: "removed paragraph",
		Existing:    Document{Paragraphs: []string{"A", "B", "C"}},
		Desired:     Document{Paragraphs: []string{"A", "C"}},
		Assertions: []Assertion{
			{Type: AssertOpTypes, Ops: []string{"keep", "delete", "keep"}},
			{Type: AssertResult, Expect: map[string]any{"kept": 2, "deleted": 1, "inserted": 0}},
			{Type: AssertFinalText, Texts: []string{"A", "C"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, "b-2", result.Calls()[0].Target)
}

func TestRun_ReplaceChangesType(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "replace_type",
		Description: "paragraph becomes heading",
		Existing:    Document{Markdown: "A\n\nX\n\nB\n"},
		Desired:     Document{Markdown: "A\n\n# Y\n\nB\n"},
		Assertions: []Assertion{
			{Type: AssertOpTypes, Ops: []string{"keep", "replace", "keep"}},
			{Type: AssertCallOrder, Methods: []string{"delete", "append_children"}},
			{Type: AssertResult, Expect: map[string]any{"kept": 2, "deleted": 1, "replaced": 1}},
			{Type: AssertFinalText, Texts: []string{"A", "Y", "B"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	calls := result.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "b-1", calls[1].After, "replacement lands after the preceding kept block")
	assert.Equal(t, "heading_1", result.Ops()[1].BlockType)
}

func TestRun_OverwriteStrategy(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "overwrite",
		Description: "forced overwrite",
		Existing:    Document{Paragraphs: []string{"A", "B"}},
		Desired:     Document{Paragraphs: []string{"A", "B", "C"}},
		Options:     Options{Strategy: "overwrite"},
		Assertions: []Assertion{
			{Type: AssertOpTypes, Ops: []string{"delete", "delete", "insert", "insert", "insert"}},
			{Type: AssertResult, Expect: map[string]any{"strategy": "overwrite", "inserted": 3, "deleted": 2}},
			{Type: AssertCallOrder, Methods: []string{"delete", "delete", "append_children"}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_LowMatchRatioFallsBackToOverwrite(t *testing.T) {
	scenario := &Scenario{
		Name:        "low_ratio",
		Description: "one anchor in four",
		Existing:    Document{Paragraphs: []string{"A", "B", "C", "D"}},
		Desired:     Document{Paragraphs: []string{"A", "X", "Y", "Z"}},
		Assertions: []Assertion{
			{Type: AssertOpCount, Op: "delete", Count: 4},
			{Type: AssertOpCount, Op: "insert", Count: 4},
			{Type: AssertFinalText, Texts: []string{"A", "X", "Y", "Z"}},
		},
	}
	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, ir.StrategyDiff, result.Outcome.Strategy)

	// A lower threshold keeps the diff.
	scenario.Options.MinMatchRatio = ratio(0.2)
	scenario.Assertions = []Assertion{
		{Type: AssertOpTypes, Ops: []string{"keep", "delete", "delete", "update", "insert", "insert"}},
		{Type: AssertResult, Expect: map[string]any{"kept": 1, "deleted": 2, "inserted": 3}},
		{Type: AssertFinalText, Texts: []string{"A", "X", "Y", "Z"}},
	}
	result, err = Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_BatchSize(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "batches",
		Description: "inserts chunked by batch size",
		Desired:     Document{Paragraphs: []string{"1", "2", "3", "4", "5"}},
		Options:     Options{BatchSize: 2},
		Assertions: []Assertion{
			{Type: AssertRemoteCalls, Count: 3},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)

	calls := result.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"b-1", "b-2"}, calls[0].BlockIDs)
	assert.Equal(t, "b-2", calls[1].After)
	assert.Equal(t, "b-4", calls[2].After)
	assert.Equal(t, []string{"b-5"}, calls[2].BlockIDs)
}

func TestRun_NoChange(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "no_change",
		Description: "identical documents",
		Existing:    Document{Markdown: "# Title\n\n- one\n- two\n"},
		Desired:     Document{Markdown: "# Title\n\n- one\n- two\n"},
		Assertions: []Assertion{
			{Type: AssertOpTypes, Ops: []string{"keep", "keep", "keep"}},
			{Type: AssertRemoteCalls, Count: 0},
			{Type: AssertHistory, Count: 1},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_FailedAssertionsReported(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "wrong_expectations",
		Description: "every assertion is wrong",
		Existing:    Document{Paragraphs: []string{"A"}},
		Desired:     Document{Paragraphs: []string{"A", "B"}},
		Assertions: []Assertion{
			{Type: AssertOpTypes, Ops: []string{"keep"}},
			{Type: AssertRemoteCalls, Count: 5},
			{Type: AssertFinalText, Texts: []string{"A"}},
			{Type: AssertHistory, Count: 2},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "Assertion failed: op_types")
	assert.Contains(t, result.Errors[0], "Full trace:")
}

func TestRun_BadDocument(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "bad_file",
		Description: "desired file missing",
		Desired:     Document{File: "/nonexistent/doc.md"},
		Assertions:  []Assertion{{Type: AssertHistory}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "desired document")
}
