package harness

import (
	"context"
	"fmt"

	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/memory"
	"github.com/roach88/docsync/internal/reconcile"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/testutil"
)

// Harness holds the per-scenario fixtures.
type Harness struct {
	store *store.Store
	tree  *memory.Tree
	clock *testutil.DeterministicClock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory page and a fresh in-memory
// database. Block ids, run ids and timestamps are deterministic, so the
// trace is reproducible.
//
// Execution flow:
//  1. Build the existing and desired block lists
//  2. Seed the existing blocks into the page
//  3. Sync the desired blocks through a reconcile.Syncer
//  4. Trace the planned ops and the remote mutations
//  5. Evaluate assertions
//
// An error is returned only when the scenario cannot run; failed
// assertions are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	existing, err := scenario.Existing.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build existing document: %w", err)
	}
	desired, err := scenario.Desired.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build desired document: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	clock := testutil.NewDeterministicClock()
	h := &Harness{
		store: st,
		clock: clock,
		tree: memory.NewTree(
			memory.WithIDGenerator(ir.NewSequenceGenerator("b")),
			memory.WithClock(clock.Now),
		),
	}

	pageID := scenario.Page
	if pageID == "" {
		pageID = DefaultPageID
	}
	h.tree.Seed(pageID, existing)

	ctx := context.Background()
	report, err := h.sync(ctx, pageID, desired, scenario.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to sync: %w", err)
	}

	result := NewResult()
	for _, op := range report.Ops {
		result.AddOpTrace(op)
	}
	for _, c := range h.tree.Calls() {
		if isMutation(c.Method) {
			result.AddCallTrace(c.Method, c.Target, c.After, c.BlockIDs)
		}
	}
	result.Outcome = report.Result
	result.Final = h.tree.PlainTexts(pageID)

	actx := &AssertionContext{
		Store:  st,
		Ctx:    ctx,
		PageID: pageID,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func (h *Harness) sync(ctx context.Context, pageID string, desired []ir.Block, opts Options) (*reconcile.Report, error) {
	var plannerOpts []diff.PlannerOption
	if opts.MinMatchRatio != nil {
		plannerOpts = append(plannerOpts, diff.WithMinMatchRatio(*opts.MinMatchRatio))
	}
	var execOpts []diff.ExecutorOption
	if opts.BatchSize > 0 {
		execOpts = append(execOpts, diff.WithBatchSize(opts.BatchSize))
	}

	syncer := reconcile.New(h.tree,
		reconcile.WithPlanner(diff.NewPlanner(plannerOpts...)),
		reconcile.WithExecutorOptions(execOpts...),
		reconcile.WithRecorder(h.store),
		reconcile.WithIDGenerator(ir.NewSequenceGenerator("run")),
	)

	h.tree.ResetCalls()
	return syncer.Sync(ctx, reconcile.Request{
		PageID:   pageID,
		Blocks:   desired,
		Strategy: ir.Strategy(opts.Strategy),
	})
}

func isMutation(method string) bool {
	switch method {
	case "update", "delete", "append_children":
		return true
	}
	return false
}
