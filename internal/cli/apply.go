package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/config"
	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/notion"
	"github.com/roach88/docsync/internal/reconcile"
	"github.com/roach88/docsync/internal/store"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Strategy    string
	OnConflict  string
	DryRun      bool
	Database    string
	MetricsFile string

	// Remote overrides the API client (for testing).
	// If nil, a notion.Client is built from the config.
	Remote reconcile.Remote

	// IDGenerator overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator ir.IDGenerator
}

// ApplyReport is the outcome of one page sync.
type ApplyReport struct {
	PageID              string          `json:"page_id"`
	File                string          `json:"file"`
	RunID               string          `json:"run_id,omitempty"`
	Seq                 int64           `json:"seq,omitempty"`
	Result              ir.UpdateResult `json:"result"`
	Ops                 int             `json:"ops"`
	DryRun              bool            `json:"dry_run,omitempty"`
	ConflictOverwritten bool            `json:"conflict_overwritten,omitempty"`
	DurationMS          int64           `json:"duration_ms"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return newApplyCommand(&ApplyOptions{RootOptions: rootOpts})
}

func newApplyCommand(opts *ApplyOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <page-id> <file> [<page-id> <file>...]",
		Short: "Sync local documents to remote pages",
		Long: `Bring one or more remote pages up to date with local Markdown or JSON files.

Each page is listed, checked for edits made since its last recorded sync,
diffed against the file, and patched with the smallest edit script found.
Every sync is recorded in the history database.

Pages are synced concurrently (sync.concurrency in the config). The API
token is read from the config file or NOTION_TOKEN.

Exit codes:
  0 - All pages synced
  1 - A page changed remotely since its last sync (see --on-conflict)
  2 - Command error (bad input, config, remote or database errors)

Examples:
  docsync apply 1a2b3c notes.md
  docsync apply 1a2b3c notes.md --dry-run
  docsync apply 1a2b3c notes.md 4d5e6f todo.md --on-conflict overwrite
  docsync apply 1a2b3c notes.md --config docsync.yaml --db runs.db`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 2 || len(args)%2 != 0 {
				return fmt.Errorf("expected <page-id> <file> pairs, got %d argument(s)", len(args))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Strategy, "strategy", "", "sync strategy (diff|overwrite); overrides the config")
	cmd.Flags().StringVar(&opts.OnConflict, "on-conflict", "", "conflict policy (raise|overwrite); overrides the config")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "plan and preview without writing")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the history database; overrides the config")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this file when done")

	return cmd
}

func runApply(opts *ApplyOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := applyConfig(opts)
	if err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	// Load every document before touching the remote.
	reqs := make([]reconcile.Request, 0, len(args)/2)
	files := make([]string, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		blocks, err := LoadDocument(args[i+1])
		if err != nil {
			return loadFailure(formatter, err)
		}
		reqs = append(reqs, reconcile.Request{PageID: args[i], Blocks: blocks, DryRun: opts.DryRun})
		files = append(files, args[i+1])
	}

	remote := opts.Remote
	if remote == nil {
		if err := cfg.RequireToken(); err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeConfig, "missing API token", err)
		}
		client, err := notion.New(cfg.ClientConfig())
		if err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeConfig, "failed to create API client", err)
		}
		remote = client
	}

	slog.Debug("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	var registry *prometheus.Registry
	if opts.MetricsFile != "" {
		registry = prometheus.NewRegistry()
		if err := errors.Join(diff.RegisterMetrics(registry), notion.RegisterMetrics(registry)); err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeGeneric, "failed to register metrics", err)
		}
	}

	syncerOpts := []reconcile.Option{
		reconcile.WithPlanner(diff.NewPlanner(diff.WithMinMatchRatio(cfg.Sync.MinMatchRatio))),
		reconcile.WithExecutorOptions(diff.WithBatchSize(cfg.Sync.BatchSize)),
		reconcile.WithRecorder(st),
		reconcile.WithStrategy(ir.Strategy(cfg.Sync.Strategy)),
		reconcile.WithOnConflict(cfg.Sync.OnConflict),
		reconcile.WithConcurrency(cfg.Sync.Concurrency),
	}
	if opts.IDGenerator != nil {
		syncerOpts = append(syncerOpts, reconcile.WithIDGenerator(opts.IDGenerator))
	}
	syncer := reconcile.New(remote, syncerOpts...)

	// Cancel in-flight syncs on Ctrl-C; remote calls stop at the next op.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("syncing pages", "pages", len(reqs), "dry_run", opts.DryRun, "strategy", cfg.Sync.Strategy)
	reports, syncErr := syncer.SyncAll(ctx, reqs)

	if registry != nil {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, registry); err != nil {
			slog.Error("failed to write metrics", "path", opts.MetricsFile, "error", err)
		}
	}

	if syncErr != nil {
		return syncFailure(formatter, syncErr)
	}

	out := make([]ApplyReport, len(reports))
	for i, r := range reports {
		out[i] = ApplyReport{
			PageID:              r.PageID,
			File:                files[i],
			RunID:               r.RunID,
			Seq:                 r.Seq,
			Result:              r.Result,
			Ops:                 len(r.Ops),
			DryRun:              r.DryRun,
			ConflictOverwritten: r.ConflictOverwritten,
			DurationMS:          r.Duration.Milliseconds(),
		}
	}

	if opts.Format == "json" {
		return formatter.Success(out)
	}
	for _, r := range out {
		printApplyReport(formatter, r)
	}
	return nil
}

// applyConfig loads the config and applies flag overrides.
func applyConfig(opts *ApplyOptions) (*config.Config, error) {
	cfg, err := LoadConfig(opts.RootOptions)
	if err != nil {
		return nil, err
	}
	if opts.Strategy != "" {
		cfg.Sync.Strategy = opts.Strategy
	}
	if opts.OnConflict != "" {
		cfg.Sync.OnConflict = opts.OnConflict
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printApplyReport(f *OutputFormatter, r ApplyReport) {
	res := r.Result
	prefix := "✓"
	if r.DryRun {
		prefix = "~"
	}
	fmt.Fprintf(f.Writer, "%s %s <- %s: %d kept, %d inserted, %d deleted, %d replaced (%s)\n",
		prefix, r.PageID, r.File, res.Kept, res.Inserted, res.Deleted, res.Replaced, res.Strategy)
	switch {
	case r.DryRun:
		fmt.Fprintln(f.Writer, "  dry run: nothing written")
	case r.ConflictOverwritten:
		fmt.Fprintf(f.Writer, "  page had remote edits; overwritten (run %s)\n", r.RunID)
	default:
		f.VerboseLog("  run %s (seq %d, %d ops, %dms)", r.RunID, r.Seq, r.Ops, r.DurationMS)
	}
}

// syncFailure maps a sync error onto an exit code and error code.
func syncFailure(f *OutputFormatter, err error) error {
	var cerr *reconcile.ConflictError
	if errors.As(err, &cerr) {
		return commandError(f, ExitFailure, ErrCodeConflict,
			fmt.Sprintf("page %s changed since its last sync; rerun with --on-conflict overwrite to replace it", cerr.PageID), err)
	}
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) {
		return commandError(f, ExitCommandError, ErrCodeRemote, "remote API error", err)
	}
	return commandError(f, ExitCommandError, ErrCodeGeneric, "sync failed", err)
}
