package store

import (
	"context"
	"fmt"

	"github.com/roach88/docsync/internal/ir"
)

// Run is one recorded sync of a page.
type Run struct {
	ID       string
	PageID   string
	Seq      int64 // assigned by WriteRun
	Result   ir.UpdateResult
	PlanHash string // ir.PlanHash of the edit script
	OpCount  int
}

// RunOp is one stored op of a run's edit script. Blocks themselves are not
// stored; only the type of the written block.
type RunOp struct {
	Index      int
	Type       ir.OpType
	ExistingID string
	BlockType  string
}

// WriteSnapshot stores the conflict baseline for a page, replacing any
// previous one.
func (s *Store) WriteSnapshot(ctx context.Context, snap ir.PageSnapshot) error {
	etags, err := marshalEtags(snap.BlockEtags)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (page_id, last_edited, block_etags, taken_seq)
		VALUES (?, ?, ?, (SELECT COALESCE(MAX(taken_seq), 0) + 1 FROM snapshots))
		ON CONFLICT(page_id) DO UPDATE SET
			last_edited = excluded.last_edited,
			block_etags = excluded.block_etags,
			taken_seq   = excluded.taken_seq
	`,
		snap.PageID,
		formatTime(snap.LastEdited),
		etags,
	)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// WriteRun records a run and its edit script atomically. The run's seq is
// assigned inside the transaction and returned; PlanHash and OpCount are
// computed from ops.
//
// Writing a run id twice is an error.
func (s *Store) WriteRun(ctx context.Context, run Run, ops []ir.DiffOp) (Run, error) {
	run.PlanHash = ir.PlanHash(ops)
	run.OpCount = len(ops)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&run.Seq); err != nil {
		return Run{}, fmt.Errorf("write run: next seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, page_id, seq, strategy, kept, inserted, deleted, replaced, plan_hash, op_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.PageID,
		run.Seq,
		string(run.Result.Strategy),
		run.Result.Kept,
		run.Result.Inserted,
		run.Result.Deleted,
		run.Result.Replaced,
		run.PlanHash,
		run.OpCount,
	)
	if err != nil {
		return Run{}, fmt.Errorf("write run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_ops (run_id, idx, op_type, existing_id, block_type)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return Run{}, fmt.Errorf("write run ops: prepare: %w", err)
	}
	defer stmt.Close()

	for i, op := range ops {
		blockType := ""
		if op.NewBlock != nil {
			blockType = op.NewBlock.Type()
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, string(op.Type), op.ExistingID, blockType); err != nil {
			return Run{}, fmt.Errorf("write run op %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("write run: commit: %w", err)
	}
	return run, nil
}
