package ir

import (
	"fmt"
	"time"
)

// BlockSignature is the structural fingerprint of a block used for diffing.
//
// Two blocks with equal signatures are treated as unchanged. The struct is
// comparable, so signatures work with == and as map keys. Signatures are
// computed fresh per diff and never persisted.
type BlockSignature struct {
	BlockType      string
	RichTextHash   string
	StructuralHash string
	AttrsHash      string
	NestingDepth   int
}

// MatchedPair links an existing block index to a desired block index.
// Across a match result both indexes are strictly increasing.
type MatchedPair struct {
	ExistingIndex int `json:"existing_index"`
	NewIndex      int `json:"new_index"`
}

// OpType discriminates the five DiffOp variants.
type OpType string

const (
	// OpKeep leaves an existing block untouched (no remote call).
	OpKeep OpType = "keep"

	// OpUpdate patches an existing block in place with same-typed content.
	OpUpdate OpType = "update"

	// OpReplace deletes an existing block and inserts a differently typed one
	// at its position.
	OpReplace OpType = "replace"

	// OpInsert creates a block that does not exist remotely yet.
	OpInsert OpType = "insert"

	// OpDelete removes an existing block.
	OpDelete OpType = "delete"
)

// DiffOp is one step of an edit script.
//
// Which fields are meaningful depends on Type:
//   - keep, delete: ExistingID
//   - update, replace: ExistingID and NewBlock
//   - insert: NewBlock
//
// An absent id is "" and an absent block is nil. Build ops with the
// constructors below rather than struct literals.
type DiffOp struct {
	Type       OpType `json:"op"`
	ExistingID string `json:"existing_id,omitempty"`
	NewBlock   Block  `json:"new_block,omitempty"`
}

// Keep builds a keep op.
func Keep(existingID string) DiffOp {
	return DiffOp{Type: OpKeep, ExistingID: existingID}
}

// Update builds an update op.
func Update(existingID string, newBlock Block) DiffOp {
	return DiffOp{Type: OpUpdate, ExistingID: existingID, NewBlock: newBlock}
}

// Replace builds a replace op.
func Replace(existingID string, newBlock Block) DiffOp {
	return DiffOp{Type: OpReplace, ExistingID: existingID, NewBlock: newBlock}
}

// Insert builds an insert op.
func Insert(newBlock Block) DiffOp {
	return DiffOp{Type: OpInsert, NewBlock: newBlock}
}

// Delete builds a delete op.
func Delete(existingID string) DiffOp {
	return DiffOp{Type: OpDelete, ExistingID: existingID}
}

// String renders the op for logs and test failure messages.
func (op DiffOp) String() string {
	switch op.Type {
	case OpKeep, OpDelete:
		return fmt.Sprintf("%s(%s)", op.Type, op.ExistingID)
	case OpInsert:
		return fmt.Sprintf("%s(%s)", op.Type, op.NewBlock.Type())
	default:
		return fmt.Sprintf("%s(%s, %s)", op.Type, op.ExistingID, op.NewBlock.Type())
	}
}

// CountOps tallies an edit script by op type.
func CountOps(ops []DiffOp) map[OpType]int {
	counts := make(map[OpType]int, 5)
	for _, op := range ops {
		counts[op.Type]++
	}
	return counts
}

// Strategy names how a document was brought up to date.
type Strategy string

const (
	// StrategyDiff applies a minimal edit script.
	StrategyDiff Strategy = "diff"

	// StrategyOverwrite deletes every existing block and appends all desired ones.
	StrategyOverwrite Strategy = "overwrite"
)

// UpdateResult summarizes one execution of an edit script.
//
// Inserted counts every content write at a position: both appended blocks
// and in-place updates.
type UpdateResult struct {
	Strategy Strategy `json:"strategy"`
	Kept     int      `json:"kept"`
	Inserted int      `json:"inserted"`
	Deleted  int      `json:"deleted"`
	Replaced int      `json:"replaced"`
}

// PageSnapshot is a point-in-time view of a remote document used to detect
// concurrent modification between two syncs.
type PageSnapshot struct {
	PageID     string            `json:"page_id"`
	LastEdited time.Time         `json:"last_edited"`
	BlockEtags map[string]string `json:"block_etags"`
}
