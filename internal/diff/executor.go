package diff

import (
	"context"
	"log/slog"

	"github.com/roach88/docsync/internal/ir"
)

// MaxAppendBatch is the remote limit on blocks per append call.
const MaxAppendBatch = 100

// BlockAPI is the remote block-tree surface the executor writes through.
//
// AppendChildren inserts blocks under parentID immediately after the child
// with id after, or at the end when after is "". It returns the ids of the
// created blocks in order.
//
// Implemented by notion.Client (production) and memory.Tree (dry runs and
// tests).
type BlockAPI interface {
	UpdateBlock(ctx context.Context, blockID string, payload map[string]any) error
	DeleteBlock(ctx context.Context, blockID string) error
	AppendChildren(ctx context.Context, parentID string, blocks []ir.Block, after string) ([]string, error)
}

// Executor replays edit scripts against a BlockAPI.
//
// An Executor may be shared; each Execute call keeps its own cursor and
// counters and issues its remote calls strictly one at a time.
type Executor struct {
	api       BlockAPI
	batchSize int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithBatchSize sets the maximum number of blocks per append call.
//
// Default: 100 (MaxAppendBatch). Values below 1 are ignored.
func WithBatchSize(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// NewExecutor creates an Executor writing through api.
func NewExecutor(api BlockAPI, opts ...ExecutorOption) *Executor {
	e := &Executor{
		api:       api,
		batchSize: MaxAppendBatch,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// execState is the per-call cursor and counters.
type execState struct {
	containerID string
	last        string // most recently positioned block; "" = unset
	result      ir.UpdateResult
}

// Execute applies ops to the children of containerID and blocks until done.
//
// Ops are processed strictly in order:
//   - keep: no call; cursor moves to the kept block
//   - update: patch the block in place; cursor moves to it
//   - replace: delete the old block, append the new one after the cursor
//   - insert: consecutive inserts are appended in batches after the cursor
//   - delete: delete the block
//
// The cursor starts unset, and an append with no cursor goes to the end of
// the container. A script whose first ops are inserts or replaces therefore
// leaves those blocks after the rest of the page, not before it.
//
// Any remote error is returned unchanged and aborts the remaining ops; no
// partial result is returned and nothing is rolled back. Cancelling ctx
// surfaces from the call in flight, or before the next op starts.
func (e *Executor) Execute(ctx context.Context, containerID string, ops []ir.DiffOp) (ir.UpdateResult, error) {
	st := &execState{
		containerID: containerID,
		result:      ir.UpdateResult{Strategy: ir.StrategyDiff},
	}

	for i := 0; i < len(ops); {
		if err := ctx.Err(); err != nil {
			return ir.UpdateResult{}, err
		}

		op := ops[i]
		var err error
		switch op.Type {
		case ir.OpKeep:
			st.result.Kept++
			st.last = op.ExistingID
			i++

		case ir.OpUpdate:
			err = e.execUpdate(ctx, op, st)
			i++

		case ir.OpReplace:
			err = e.execReplace(ctx, op, st)
			i++

		case ir.OpInsert:
			i, err = e.execInsertRun(ctx, ops, i, st)

		case ir.OpDelete:
			if op.ExistingID != "" {
				err = e.deleteBlock(ctx, op.ExistingID)
			}
			st.result.Deleted++
			i++

		default:
			i++
		}
		if err != nil {
			return ir.UpdateResult{}, err
		}
	}

	emitOpMetrics(ops)
	slog.Info("diff executed",
		"container", containerID,
		"kept", st.result.Kept,
		"inserted", st.result.Inserted,
		"deleted", st.result.Deleted,
		"replaced", st.result.Replaced,
	)
	return st.result, nil
}

// execUpdate patches a block in place. Counted with inserts: the result
// schema tracks "content written at this position".
func (e *Executor) execUpdate(ctx context.Context, op ir.DiffOp, st *execState) error {
	if op.ExistingID != "" && op.NewBlock != nil {
		RemoteCalls.WithLabelValues(methodUpdate).Inc()
		if err := e.api.UpdateBlock(ctx, op.ExistingID, UpdatePayload(op.NewBlock)); err != nil {
			return err
		}
	}
	st.last = op.ExistingID
	st.result.Inserted++
	return nil
}

func (e *Executor) execReplace(ctx context.Context, op ir.DiffOp, st *execState) error {
	if op.ExistingID != "" {
		if err := e.deleteBlock(ctx, op.ExistingID); err != nil {
			return err
		}
		st.result.Deleted++
	}
	if op.NewBlock == nil {
		return nil
	}

	if err := e.appendAfterCursor(ctx, []ir.Block{op.NewBlock}, st); err != nil {
		return err
	}
	st.result.Replaced++
	return nil
}

// execInsertRun collects the insert run starting at ops[start] and appends
// it in batches. Returns the index of the first op after the run.
func (e *Executor) execInsertRun(ctx context.Context, ops []ir.DiffOp, start int, st *execState) (int, error) {
	var blocks []ir.Block
	i := start
	for ; i < len(ops) && ops[i].Type == ir.OpInsert; i++ {
		if ops[i].NewBlock != nil {
			blocks = append(blocks, ops[i].NewBlock)
		}
	}
	if len(blocks) == 0 {
		return i, nil
	}

	for _, batch := range ChunkBlocks(blocks, e.batchSize) {
		if err := e.appendAfterCursor(ctx, batch, st); err != nil {
			return i, err
		}
	}
	st.result.Inserted += len(blocks)
	return i, nil
}

func (e *Executor) appendAfterCursor(ctx context.Context, blocks []ir.Block, st *execState) error {
	RemoteCalls.WithLabelValues(methodAppend).Inc()
	ids, err := e.api.AppendChildren(ctx, st.containerID, blocks, st.last)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		st.last = ids[len(ids)-1]
	}
	return nil
}

func (e *Executor) deleteBlock(ctx context.Context, blockID string) error {
	RemoteCalls.WithLabelValues(methodDelete).Inc()
	return e.api.DeleteBlock(ctx, blockID)
}

// Execution is an in-flight asynchronous Execute.
type Execution struct {
	done   chan struct{}
	result ir.UpdateResult
	err    error
}

// Go starts Execute in its own goroutine and returns immediately.
//
// The asynchronous form shares Execute's control flow, cursor and counting
// rules; it grants no internal parallelism. It exists so callers can run
// many independent documents concurrently. Cancel ctx to abort: the call in
// flight returns the cancellation and nothing is rolled back.
func (e *Executor) Go(ctx context.Context, containerID string, ops []ir.DiffOp) *Execution {
	x := &Execution{done: make(chan struct{})}
	go func() {
		defer close(x.done)
		x.result, x.err = e.Execute(ctx, containerID, ops)
	}()
	return x
}

// Done is closed when the execution finishes.
func (x *Execution) Done() <-chan struct{} {
	return x.done
}

// Wait blocks until the execution finishes and returns its outcome.
func (x *Execution) Wait() (ir.UpdateResult, error) {
	<-x.done
	return x.result, x.err
}

// UpdatePayload builds the in-place update body for a block: its type-keyed
// payload only, e.g. {"paragraph": {"rich_text": [...]}}.
func UpdatePayload(block ir.Block) map[string]any {
	blockType := block.Type()
	data := block.TypeData()
	if data == nil {
		data = map[string]any{}
	}
	return map[string]any{blockType: data}
}

// ChunkBlocks splits blocks into consecutive batches of at most size blocks.
func ChunkBlocks(blocks []ir.Block, size int) [][]ir.Block {
	if size < 1 {
		size = MaxAppendBatch
	}
	chunks := make([][]ir.Block, 0, (len(blocks)+size-1)/size)
	for start := 0; start < len(blocks); start += size {
		end := min(start+size, len(blocks))
		chunks = append(chunks, blocks[start:end])
	}
	return chunks
}
