package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/docsync/internal/ir"
)

// Call is one recorded remote call.
type Call struct {
	Method  string
	BlockID string // update/delete target, or append parent
	After   string // append only
	Blocks  []ir.Block
	Payload map[string]any
}

// RecordingAPI is a block API fake that records every call and returns
// generated ids for appends. It keeps no document state; use memory.Tree
// when the resulting document matters.
//
// FailOn, when set, is consulted before each call; a non-nil return is
// reported as that call's error and nothing is recorded.
type RecordingAPI struct {
	FailOn func(method string, n int) error

	// NoIDs makes AppendChildren return no ids.
	NoIDs bool

	mu     sync.Mutex
	calls  []Call
	nextID int
}

// NewRecordingAPI creates an empty RecordingAPI.
func NewRecordingAPI() *RecordingAPI {
	return &RecordingAPI{}
}

// UpdateBlock records an update.
func (a *RecordingAPI) UpdateBlock(ctx context.Context, blockID string, payload map[string]any) error {
	return a.record(ctx, Call{Method: "update", BlockID: blockID, Payload: payload})
}

// DeleteBlock records a delete.
func (a *RecordingAPI) DeleteBlock(ctx context.Context, blockID string) error {
	return a.record(ctx, Call{Method: "delete", BlockID: blockID})
}

// AppendChildren records an append and returns ids new-1, new-2, ...
func (a *RecordingAPI) AppendChildren(ctx context.Context, parentID string, blocks []ir.Block, after string) ([]string, error) {
	if err := a.record(ctx, Call{Method: "append", BlockID: parentID, After: after, Blocks: blocks}); err != nil {
		return nil, err
	}
	if a.NoIDs {
		return nil, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, len(blocks))
	for i := range blocks {
		a.nextID++
		ids[i] = fmt.Sprintf("new-%d", a.nextID)
	}
	return ids, nil
}

func (a *RecordingAPI) record(ctx context.Context, c Call) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailOn != nil {
		if err := a.FailOn(c.Method, len(a.calls)); err != nil {
			return err
		}
	}
	a.calls = append(a.calls, c)
	return nil
}

// Calls returns a copy of the recorded calls.
func (a *RecordingAPI) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// Methods returns the recorded method names in order.
func (a *RecordingAPI) Methods() []string {
	calls := a.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Method
	}
	return out
}
