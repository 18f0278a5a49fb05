package diff

import (
	"log/slog"

	"github.com/roach88/docsync/internal/ir"
)

// DefaultMinMatchRatio is the anchor ratio below which the planner abandons
// incremental diffing and emits a full overwrite script.
const DefaultMinMatchRatio = 0.3

// Planner computes edit scripts between existing and desired block lists.
//
// A Planner holds configuration only; Plan is pure and safe for concurrent
// use.
type Planner struct {
	minMatchRatio float64
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithMinMatchRatio overrides the full-overwrite threshold.
//
// Default: 0.3 (DefaultMinMatchRatio). Changing it changes which scripts
// are produced for heavily edited documents.
func WithMinMatchRatio(ratio float64) PlannerOption {
	return func(p *Planner) {
		p.minMatchRatio = ratio
	}
}

// NewPlanner creates a Planner with the given options.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{minMatchRatio: DefaultMinMatchRatio}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MinMatchRatio returns the configured full-overwrite threshold.
func (p *Planner) MinMatchRatio() float64 {
	return p.minMatchRatio
}

// Plan computes the edit script that turns existing into desired with
// default settings.
func Plan(existing, desired []ir.Block) []ir.DiffOp {
	return NewPlanner().Plan(existing, desired)
}

// Plan computes the edit script that turns existing into desired.
//
// existing blocks are expected to carry ids; desired blocks usually do not.
// Plan never fails: malformed blocks are compared through their neutral
// signature.
//
// Coverage: every existing index appears in exactly one keep, update,
// replace or delete op, and every desired index in exactly one keep,
// update, replace or insert op.
func (p *Planner) Plan(existing, desired []ir.Block) []ir.DiffOp {
	if len(existing) == 0 && len(desired) == 0 {
		return []ir.DiffOp{}
	}

	// Fast path: nothing existing, insert everything.
	if len(existing) == 0 {
		return insertAll(make([]ir.DiffOp, 0, len(desired)), desired)
	}

	// Fast path: nothing desired, delete everything.
	if len(desired) == 0 {
		return deleteAll(make([]ir.DiffOp, 0, len(existing)), existing)
	}

	anchors := LCSMatch(Signatures(existing), Signatures(desired))

	ratio := float64(len(anchors)) / float64(max(len(existing), len(desired)))
	if ratio < p.minMatchRatio {
		slog.Debug("match ratio below threshold, planning full overwrite",
			"anchors", len(anchors),
			"ratio", ratio,
			"threshold", p.minMatchRatio,
		)
		return OverwriteOps(existing, desired)
	}

	ops := coalesce(walkAnchors(existing, desired, anchors), typeIndex(existing))

	slog.Debug("diff planned",
		"existing", len(existing),
		"desired", len(desired),
		"anchors", len(anchors),
		"ratio", ratio,
		"ops", len(ops),
	)
	return ops
}

// OverwriteOps deletes every existing block, then inserts every desired
// block, both in order.
func OverwriteOps(existing, desired []ir.Block) []ir.DiffOp {
	ops := make([]ir.DiffOp, 0, len(existing)+len(desired))
	ops = deleteAll(ops, existing)
	return insertAll(ops, desired)
}

func insertAll(ops []ir.DiffOp, blocks []ir.Block) []ir.DiffOp {
	for _, b := range blocks {
		ops = append(ops, ir.Insert(b))
	}
	return ops
}

func deleteAll(ops []ir.DiffOp, blocks []ir.Block) []ir.DiffOp {
	for _, b := range blocks {
		ops = append(ops, ir.Delete(b.ID()))
	}
	return ops
}

// walkAnchors emits ops region by region using anchors as synchronization
// points. Within a region deletes always precede inserts.
func walkAnchors(existing, desired []ir.Block, anchors []ir.MatchedPair) []ir.DiffOp {
	ops := make([]ir.DiffOp, 0, len(existing)+len(desired))
	ei, ni := 0, 0

	for _, a := range anchors {
		for ; ei < a.ExistingIndex; ei++ {
			ops = append(ops, ir.Delete(existing[ei].ID()))
		}
		for ; ni < a.NewIndex; ni++ {
			ops = append(ops, ir.Insert(desired[ni]))
		}
		ops = append(ops, ir.Keep(existing[a.ExistingIndex].ID()))
		ei = a.ExistingIndex + 1
		ni = a.NewIndex + 1
	}

	// Trailing region after the last anchor.
	ops = deleteAll(ops, existing[ei:])
	return insertAll(ops, desired[ni:])
}

// typeIndex maps existing block ids to their original type tags.
// Blocks without an id or type are left out.
func typeIndex(existing []ir.Block) map[string]string {
	idx := make(map[string]string, len(existing))
	for _, b := range existing {
		id, t := b.ID(), b.Type()
		if id != "" && t != "" {
			idx[id] = t
		}
	}
	return idx
}

// coalesce merges each directly adjacent delete+insert pair into an update
// (same type) or a replace (different or unknown type).
//
// Single left-to-right pass; produced ops are never re-scanned, so
// delete,delete,insert,insert yields delete,merged,insert.
func coalesce(ops []ir.DiffOp, types map[string]string) []ir.DiffOp {
	out := make([]ir.DiffOp, 0, len(ops))
	for i := 0; i < len(ops); i++ {
		op := ops[i]
		if op.Type != ir.OpDelete || i+1 >= len(ops) || ops[i+1].Type != ir.OpInsert {
			out = append(out, op)
			continue
		}

		ins := ops[i+1]
		deletedType := ""
		if op.ExistingID != "" {
			deletedType = types[op.ExistingID]
		}
		if deletedType != "" && deletedType == ins.NewBlock.Type() {
			out = append(out, ir.Update(op.ExistingID, ins.NewBlock))
		} else {
			out = append(out, ir.Replace(op.ExistingID, ins.NewBlock))
		}
		i++
	}
	return out
}
