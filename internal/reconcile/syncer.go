// Package reconcile brings remote pages up to date with desired block
// lists.
//
// A Syncer fetches the current children of a page, checks for concurrent
// edits against the last recorded snapshot, plans an edit script (or a full
// overwrite), executes it, and records the outcome. Syncs of the same page
// are serialised; different pages may run concurrently.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/docsync/internal/conflict"
	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/memory"
	"github.com/roach88/docsync/internal/store"
)

// Conflict policies.
const (
	OnConflictRaise     = "raise"
	OnConflictOverwrite = "overwrite"
)

// DefaultConcurrency bounds SyncAll when no limit is configured.
const DefaultConcurrency = 4

// Remote is the block-tree surface a Syncer reads and writes.
// Implemented by notion.Client and memory.Tree.
type Remote interface {
	diff.BlockAPI
	GetChildren(ctx context.Context, blockID string) ([]ir.Block, error)
	RetrievePage(ctx context.Context, pageID string) (map[string]any, error)
}

// Recorder persists conflict baselines and run history.
// Implemented by store.Store.
type Recorder interface {
	ReadSnapshot(ctx context.Context, pageID string) (*ir.PageSnapshot, error)
	WriteSnapshot(ctx context.Context, snap ir.PageSnapshot) error
	WriteRun(ctx context.Context, run store.Run, ops []ir.DiffOp) (store.Run, error)
}

// Request describes one page sync.
type Request struct {
	PageID string
	Blocks []ir.Block

	// Strategy and OnConflict override the Syncer defaults when set.
	Strategy   ir.Strategy
	OnConflict string

	// DryRun plans and previews against an in-memory copy of the page;
	// nothing remote is written and nothing is recorded.
	DryRun bool
}

// Report is the outcome of one page sync.
type Report struct {
	PageID string
	RunID  string // empty for dry runs or without a Recorder
	Seq    int64
	Ops    []ir.DiffOp
	Result ir.UpdateResult
	DryRun bool

	// ConflictOverwritten is set when a concurrent edit was detected and
	// the overwrite policy replaced the page wholesale.
	ConflictOverwritten bool

	Duration time.Duration
}

// ConflictError reports that a page changed remotely since its last
// recorded sync.
type ConflictError struct {
	PageID   string
	Snapshot ir.PageSnapshot
	Current  ir.PageSnapshot
}

// ErrConflict matches any *ConflictError with errors.Is.
var ErrConflict = errors.New("page modified since last sync")

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on page %s: modified at %s, last synced state from %s",
		e.PageID,
		e.Current.LastEdited.Format(time.RFC3339),
		e.Snapshot.LastEdited.Format(time.RFC3339),
	)
}

// Is reports whether target is ErrConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Syncer reconciles pages through a Remote.
//
// Thread-safety: Sync may be called concurrently. Calls for the same page
// wait for each other; calls for different pages proceed in parallel.
type Syncer struct {
	remote      Remote
	planner     *diff.Planner
	execOpts    []diff.ExecutorOption
	executor    *diff.Executor
	recorder    Recorder
	ids         ir.IDGenerator
	strategy    ir.Strategy
	onConflict  string
	concurrency int
	locks       *xsync.MapOf[string, *sync.Mutex]
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithPlanner sets the planner. Default: diff.NewPlanner().
func WithPlanner(p *diff.Planner) Option {
	return func(s *Syncer) { s.planner = p }
}

// WithExecutorOptions passes options to the executor.
func WithExecutorOptions(opts ...diff.ExecutorOption) Option {
	return func(s *Syncer) { s.execOpts = append(s.execOpts, opts...) }
}

// WithRecorder enables conflict detection and run history.
func WithRecorder(r Recorder) Option {
	return func(s *Syncer) { s.recorder = r }
}

// WithIDGenerator sets the run id generator. Default: UUIDv7.
func WithIDGenerator(g ir.IDGenerator) Option {
	return func(s *Syncer) { s.ids = g }
}

// WithStrategy sets the default strategy. Default: ir.StrategyDiff.
func WithStrategy(st ir.Strategy) Option {
	return func(s *Syncer) { s.strategy = st }
}

// WithOnConflict sets the default conflict policy. Default: raise.
func WithOnConflict(policy string) Option {
	return func(s *Syncer) { s.onConflict = policy }
}

// WithConcurrency bounds how many pages SyncAll processes at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Syncer writing through remote.
func New(remote Remote, opts ...Option) *Syncer {
	s := &Syncer{
		remote:      remote,
		planner:     diff.NewPlanner(),
		ids:         ir.UUIDv7Generator{},
		strategy:    ir.StrategyDiff,
		onConflict:  OnConflictRaise,
		concurrency: DefaultConcurrency,
		locks:       xsync.NewMapOf[string, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.executor = diff.NewExecutor(remote, s.execOpts...)
	return s
}

// Sync brings one page up to date.
//
// Remote and recorder errors are wrapped with the page id. A detected
// conflict under the raise policy returns a *ConflictError and writes
// nothing.
func (s *Syncer) Sync(ctx context.Context, req Request) (*Report, error) {
	if req.PageID == "" {
		return nil, errors.New("sync: page id is required")
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = s.strategy
	}
	policy := req.OnConflict
	if policy == "" {
		policy = s.onConflict
	}
	switch strategy {
	case ir.StrategyDiff, ir.StrategyOverwrite:
	default:
		return nil, fmt.Errorf("sync %s: unknown strategy %q", req.PageID, strategy)
	}
	switch policy {
	case OnConflictRaise, OnConflictOverwrite:
	default:
		return nil, fmt.Errorf("sync %s: unknown conflict policy %q", req.PageID, policy)
	}

	mu, _ := s.locks.LoadOrCompute(req.PageID, func() *sync.Mutex { return &sync.Mutex{} })
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	report := &Report{PageID: req.PageID, DryRun: req.DryRun}

	page, existing, err := s.fetch(ctx, req.PageID)
	if err != nil {
		return nil, err
	}

	if s.recorder != nil {
		conflicted, err := s.checkConflict(ctx, req.PageID, page, existing, policy)
		if err != nil {
			return nil, err
		}
		if conflicted {
			strategy = ir.StrategyOverwrite
			report.ConflictOverwritten = true
		}
	}

	if strategy == ir.StrategyOverwrite {
		report.Ops = diff.OverwriteOps(existing, req.Blocks)
	} else {
		report.Ops = s.planner.Plan(existing, req.Blocks)
	}

	if req.DryRun {
		report.Result, err = s.preview(ctx, req.PageID, existing, report.Ops)
		if err != nil {
			return nil, err
		}
		report.Result.Strategy = strategy
		report.Duration = time.Since(start)
		slog.Info("dry run planned", "page", req.PageID, "ops", len(report.Ops), "strategy", strategy)
		return report, nil
	}

	report.Result, err = s.executor.Execute(ctx, req.PageID, report.Ops)
	if err != nil {
		return nil, fmt.Errorf("sync %s: execute: %w", req.PageID, err)
	}
	report.Result.Strategy = strategy

	if s.recorder != nil {
		if err := s.record(ctx, report); err != nil {
			return nil, err
		}
	}

	report.Duration = time.Since(start)
	slog.Info("page synced",
		"page", req.PageID,
		"strategy", strategy,
		"run", report.RunID,
		"kept", report.Result.Kept,
		"inserted", report.Result.Inserted,
		"deleted", report.Result.Deleted,
		"replaced", report.Result.Replaced,
		"duration", report.Duration,
	)
	return report, nil
}

// SyncAll runs every request, at most the configured concurrency at a
// time. Reports are returned in request order. The first error cancels the
// remaining syncs and is returned; reports of syncs that did not complete
// are nil.
func (s *Syncer) SyncAll(ctx context.Context, reqs []Request) ([]*Report, error) {
	reports := make([]*Report, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			r, err := s.Sync(ctx, req)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}
	err := g.Wait()
	return reports, err
}

func (s *Syncer) fetch(ctx context.Context, pageID string) (map[string]any, []ir.Block, error) {
	page, err := s.remote.RetrievePage(ctx, pageID)
	if err != nil {
		return nil, nil, fmt.Errorf("sync %s: retrieve page: %w", pageID, err)
	}
	blocks, err := s.remote.GetChildren(ctx, pageID)
	if err != nil {
		return nil, nil, fmt.Errorf("sync %s: list children: %w", pageID, err)
	}
	return page, blocks, nil
}

// checkConflict compares the page with its stored snapshot. Returns true
// when a conflict was found and the policy says to overwrite.
func (s *Syncer) checkConflict(ctx context.Context, pageID string, page map[string]any, blocks []ir.Block, policy string) (bool, error) {
	snap, err := s.recorder.ReadSnapshot(ctx, pageID)
	if err != nil {
		return false, fmt.Errorf("sync %s: read snapshot: %w", pageID, err)
	}
	if snap == nil {
		return false, nil
	}

	current := conflict.TakeSnapshot(pageID, page, blocks)
	if !conflict.Detect(*snap, current) {
		return false, nil
	}

	slog.Warn("remote page changed since last sync", "page", pageID, "policy", policy)
	if policy == OnConflictOverwrite {
		return true, nil
	}
	return false, &ConflictError{PageID: pageID, Snapshot: *snap, Current: current}
}

// preview replays ops against an in-memory copy of the page.
func (s *Syncer) preview(ctx context.Context, pageID string, existing []ir.Block, ops []ir.DiffOp) (ir.UpdateResult, error) {
	tree := memory.NewTree(memory.WithIDGenerator(ir.NewSequenceGenerator("preview")))
	tree.Mirror(pageID, existing)
	result, err := diff.NewExecutor(tree, s.execOpts...).Execute(ctx, pageID, ops)
	if err != nil {
		return ir.UpdateResult{}, fmt.Errorf("sync %s: preview: %w", pageID, err)
	}
	return result, nil
}

// record stores a fresh snapshot and the run.
func (s *Syncer) record(ctx context.Context, report *Report) error {
	page, blocks, err := s.fetch(ctx, report.PageID)
	if err != nil {
		return err
	}
	if err := s.recorder.WriteSnapshot(ctx, conflict.TakeSnapshot(report.PageID, page, blocks)); err != nil {
		return fmt.Errorf("sync %s: write snapshot: %w", report.PageID, err)
	}

	run, err := s.recorder.WriteRun(ctx, store.Run{
		ID:     s.ids.Generate(),
		PageID: report.PageID,
		Result: report.Result,
	}, report.Ops)
	if err != nil {
		return fmt.Errorf("sync %s: write run: %w", report.PageID, err)
	}
	report.RunID = run.ID
	report.Seq = run.Seq
	return nil
}
