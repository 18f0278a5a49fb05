package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/docsync/internal/ir"
)

// ReadSnapshot returns the stored baseline for a page, or nil if none.
func (s *Store) ReadSnapshot(ctx context.Context, pageID string) (*ir.PageSnapshot, error) {
	var lastEdited, etagsJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT last_edited, block_etags FROM snapshots WHERE page_id = ?
	`, pageID).Scan(&lastEdited, &etagsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	edited, err := parseTime(lastEdited)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	etags, err := unmarshalEtags(etagsJSON)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	return &ir.PageSnapshot{
		PageID:     pageID,
		LastEdited: edited,
		BlockEtags: etags,
	}, nil
}

// ListRuns returns the most recent runs for a page, newest first.
// A limit of zero or less returns every run. Returns an empty slice (not
// nil) when the page has no runs.
func (s *Store) ListRuns(ctx context.Context, pageID string, limit int) ([]Run, error) {
	query := `
		SELECT id, page_id, seq, strategy, kept, inserted, deleted, replaced, plan_hash, op_count
		FROM runs
		WHERE page_id = ?
		ORDER BY seq DESC, id COLLATE BINARY ASC
	`
	args := []any{pageID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var strategy string
		if err := rows.Scan(
			&r.ID, &r.PageID, &r.Seq, &strategy,
			&r.Result.Kept, &r.Result.Inserted, &r.Result.Deleted, &r.Result.Replaced,
			&r.PlanHash, &r.OpCount,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Result.Strategy = ir.Strategy(strategy)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRunOps returns a run's stored edit script in op order.
func (s *Store) ReadRunOps(ctx context.Context, runID string) ([]RunOp, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, op_type, existing_id, block_type
		FROM run_ops
		WHERE run_id = ?
		ORDER BY idx ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run ops: %w", err)
	}
	defer rows.Close()

	ops := []RunOp{}
	for rows.Next() {
		var op RunOp
		var opType string
		if err := rows.Scan(&op.Index, &opType, &op.ExistingID, &op.BlockType); err != nil {
			return nil, fmt.Errorf("scan run op: %w", err)
		}
		op.Type = ir.OpType(opType)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run ops: %w", err)
	}
	return ops, nil
}
