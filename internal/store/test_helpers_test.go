package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/docsync/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun creates a run with the given counts.
func createTestRun(id, pageID string, kept, inserted int) Run {
	return Run{
		ID:     id,
		PageID: pageID,
		Result: ir.UpdateResult{
			Strategy: ir.StrategyDiff,
			Kept:     kept,
			Inserted: inserted,
		},
	}
}

// createTestSnapshot creates a snapshot with one block etag.
func createTestSnapshot(pageID string, edited time.Time) ir.PageSnapshot {
	return ir.PageSnapshot{
		PageID:     pageID,
		LastEdited: edited,
		BlockEtags: map[string]string{"b1": edited.Format(time.RFC3339)},
	}
}
