package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/memory"
	"github.com/roach88/docsync/internal/notion"
	"github.com/roach88/docsync/internal/store"
	"github.com/roach88/docsync/internal/testutil"
)

func newTree() *memory.Tree {
	return memory.NewTree(
		memory.WithIDGenerator(ir.NewSequenceGenerator("b")),
		memory.WithClock(testutil.NewDeterministicClock().Now),
	)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func opTypes(ops []ir.DiffOp) []ir.OpType {
	out := make([]ir.OpType, len(ops))
	for i, op := range ops {
		out[i] = op.Type
	}
	return out
}

func TestSync_Diff(t *testing.T) {
	tree := newTree()
	tree.Seed("page", testutil.Paragraphs("A", "X", "B"))
	s := New(tree)

	report, err := s.Sync(context.Background(), Request{
		PageID: "page",
		Blocks: testutil.Paragraphs("A", "Y", "B"),
	})
	require.NoError(t, err)

	assert.Equal(t, []ir.OpType{ir.OpKeep, ir.OpUpdate, ir.OpKeep}, opTypes(report.Ops))
	assert.Equal(t, ir.UpdateResult{Strategy: ir.StrategyDiff, Kept: 2, Inserted: 1}, report.Result)
	assert.Equal(t, []string{"A", "Y", "B"}, tree.PlainTexts("page"))
	assert.Empty(t, report.RunID, "no recorder, no run")
	assert.Equal(t, 1, tree.MutationCount())
}

func TestSync_Overwrite(t *testing.T) {
	tree := newTree()
	tree.Seed("page", testutil.Paragraphs("A", "B"))
	s := New(tree, WithStrategy(ir.StrategyOverwrite))

	report, err := s.Sync(context.Background(), Request{
		PageID: "page",
		Blocks: testutil.Paragraphs("A", "B", "C"),
	})
	require.NoError(t, err)

	assert.Equal(t, []ir.OpType{ir.OpDelete, ir.OpDelete, ir.OpInsert, ir.OpInsert, ir.OpInsert}, opTypes(report.Ops))
	assert.Equal(t, ir.UpdateResult{Strategy: ir.StrategyOverwrite, Inserted: 3, Deleted: 2}, report.Result)
	assert.Equal(t, []string{"A", "B", "C"}, tree.PlainTexts("page"))
}

func TestSync_RequestOverridesStrategy(t *testing.T) {
	tree := newTree()
	tree.Seed("page", testutil.Paragraphs("A"))
	s := New(tree)

	report, err := s.Sync(context.Background(), Request{
		PageID:   "page",
		Blocks:   testutil.Paragraphs("A"),
		Strategy: ir.StrategyOverwrite,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.StrategyOverwrite, report.Result.Strategy)
	assert.Equal(t, 1, report.Result.Deleted)
}

func TestSync_DryRun(t *testing.T) {
	tree := newTree()
	tree.Seed("page", testutil.Paragraphs("A", "X", "B"))
	st := openStore(t)
	s := New(tree, WithRecorder(st))

	report, err := s.Sync(context.Background(), Request{
		PageID: "page",
		Blocks: testutil.Paragraphs("Z", "A", "Y", "B", "C"),
		DryRun: true,
	})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, ir.UpdateResult{Strategy: ir.StrategyDiff, Kept: 2, Inserted: 3}, report.Result)
	assert.Equal(t, []string{"A", "X", "B"}, tree.PlainTexts("page"), "remote untouched")
	assert.Equal(t, 0, tree.MutationCount())
	assert.Empty(t, report.RunID)

	runs, err := st.ListRuns(context.Background(), "page", 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "dry runs are not recorded")
	snap, err := st.ReadSnapshot(context.Background(), "page")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSync_RecordsRunAndSnapshot(t *testing.T) {
	ctx := context.Background()
	tree := newTree()
	tree.Seed("page", testutil.Paragraphs("A", "X", "B"))
	st := openStore(t)
	s := New(tree, WithRecorder(st), WithIDGenerator(ir.NewSequenceGenerator("run")))

	report, err := s.Sync(ctx, Request{PageID: "page", Blocks: testutil.Paragraphs("A", "Y", "B")})
	require.NoError(t, err)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, int64(1), report.Seq)

	runs, err := st.ListRuns(ctx, "page", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.Result, runs[0].Result)
	assert.Equal(t, ir.PlanHash(report.Ops), runs[0].PlanHash)

	ops, err := st.ReadRunOps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, ir.OpUpdate, ops[1].Type)

	snap, err := st.ReadSnapshot(ctx, "page")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.BlockEtags, 3)

	// A second sync with nothing changed remotely is a no-op.
	report, err = s.Sync(ctx, Request{PageID: "page", Blocks: testutil.Paragraphs("A", "Y", "B")})
	require.NoError(t, err)
	assert.Equal(t, []ir.OpType{ir.OpKeep, ir.OpKeep, ir.OpKeep}, opTypes(report.Ops))
	assert.Equal(t, "run-2", report.RunID)
}

func TestSync_ConflictRaise(t *testing.T) {
	ctx := context.Background()
	tree := newTree()
	ids := tree.Seed("page", testutil.Paragraphs("A", "B"))
	st := openStore(t)
	s := New(tree, WithRecorder(st))

	_, err := s.Sync(ctx, Request{PageID: "page", Blocks: testutil.Paragraphs("A", "B")})
	require.NoError(t, err)

	tree.Touch(ids[0]) // someone else edits the page
	tree.ResetCalls()

	_, err = s.Sync(ctx, Request{PageID: "page", Blocks: testutil.Paragraphs("A", "C")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)

	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "page", cerr.PageID)
	assert.True(t, cerr.Current.LastEdited.After(cerr.Snapshot.LastEdited))
	assert.Contains(t, cerr.Error(), "page")

	assert.Equal(t, 0, tree.MutationCount(), "nothing written on conflict")
	assert.Equal(t, []string{"A", "B"}, tree.PlainTexts("page"))
}

func TestSync_ConflictOverwrite(t *testing.T) {
	ctx := context.Background()
	tree := newTree()
	ids := tree.Seed("page", testutil.Paragraphs("A", "B"))
	st := openStore(t)
	s := New(tree, WithRecorder(st), WithOnConflict(OnConflictOverwrite))

	_, err := s.Sync(ctx, Request{PageID: "page", Blocks: testutil.Paragraphs("A", "B")})
	require.NoError(t, err)
	tree.Touch(ids[1])

	report, err := s.Sync(ctx, Request{PageID: "page", Blocks: testutil.Paragraphs("A", "C")})
	require.NoError(t, err)
	assert.True(t, report.ConflictOverwritten)
	assert.Equal(t, ir.StrategyOverwrite, report.Result.Strategy)
	assert.Equal(t, []string{"A", "C"}, tree.PlainTexts("page"))

	runs, err := st.ListRuns(ctx, "page", 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ir.StrategyOverwrite, runs[0].Result.Strategy, "newest first")
}

func TestSync_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing page id", func(t *testing.T) {
		_, err := New(newTree()).Sync(ctx, Request{})
		require.Error(t, err)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		_, err := New(newTree()).Sync(ctx, Request{PageID: "p", Strategy: "merge"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "merge")
	})

	t.Run("unknown conflict policy", func(t *testing.T) {
		_, err := New(newTree()).Sync(ctx, Request{PageID: "p", OnConflict: "ignore"})
		require.Error(t, err)
	})

	t.Run("page not found", func(t *testing.T) {
		_, err := New(newTree()).Sync(ctx, Request{PageID: "absent"})
		require.Error(t, err)
		assert.True(t, notion.IsNotFound(err))
		assert.Contains(t, err.Error(), "absent")
	})

	t.Run("execution failure propagates", func(t *testing.T) {
		boom := errors.New("boom")
		tree := newTree()
		tree.Seed("page", testutil.Paragraphs("A"))
		tree.SetFailure(func(method string, _ int) error {
			if method == "append_children" {
				return boom
			}
			return nil
		})
		_, err := New(tree).Sync(ctx, Request{PageID: "page", Blocks: testutil.Paragraphs("A", "B")})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})
}

func TestSyncAll(t *testing.T) {
	tree := newTree()
	var reqs []Request
	for i := 0; i < 5; i++ {
		pageID := fmt.Sprintf("page-%d", i)
		tree.Seed(pageID, testutil.Paragraphs("A", "B"))
		reqs = append(reqs, Request{PageID: pageID, Blocks: testutil.Paragraphs("A", fmt.Sprintf("B%d", i))})
	}

	reports, err := New(tree, WithConcurrency(2)).SyncAll(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, reports, 5)
	for i, r := range reports {
		require.NotNil(t, r)
		assert.Equal(t, reqs[i].PageID, r.PageID)
		assert.Equal(t, []string{"A", fmt.Sprintf("B%d", i)}, tree.PlainTexts(r.PageID))
	}
}

func TestSyncAll_FirstErrorReturned(t *testing.T) {
	tree := newTree()
	tree.Seed("page", testutil.Paragraphs("A"))

	_, err := New(tree).SyncAll(context.Background(), []Request{
		{PageID: "page", Blocks: testutil.Paragraphs("A")},
		{PageID: "absent"},
	})
	require.Error(t, err)
	assert.True(t, notion.IsNotFound(err))
}

func TestSync_SamePageSerialised(t *testing.T) {
	tree := newTree()
	tree.Seed("page", testutil.Paragraphs("A", "B", "C"))
	s := New(tree, WithExecutorOptions(diff.WithBatchSize(1)))
	desired := testutil.Paragraphs("A", "X", "C", "D")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Sync(context.Background(), Request{PageID: "page", Blocks: desired})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"A", "X", "C", "D"}, tree.PlainTexts("page"))
}
