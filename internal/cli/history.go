package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	RunID    string
}

// HistoryRun is one run as printed by the history command.
type HistoryRun struct {
	ID       string `json:"id"`
	Seq      int64  `json:"seq"`
	Strategy string `json:"strategy"`
	Kept     int    `json:"kept"`
	Inserted int    `json:"inserted"`
	Deleted  int    `json:"deleted"`
	Replaced int    `json:"replaced"`
	OpCount  int    `json:"op_count"`
	PlanHash string `json:"plan_hash"`
}

// HistoryOp is one stored op of a run.
type HistoryOp struct {
	Index      int    `json:"index"`
	Op         string `json:"op"`
	ExistingID string `json:"existing_id,omitempty"`
	BlockType  string `json:"block_type,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history <page-id>",
		Short: "Show recorded syncs of a page",
		Long: `Show the syncs recorded for a page, newest first.

With --run, print the stored edit script of one run instead.

Examples:
  docsync history 1a2b3c
  docsync history 1a2b3c --limit 5
  docsync history 1a2b3c --run 0190f3a2-...
  docsync history 1a2b3c --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the history database; overrides the config")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to show (0 for all)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the edit script of this run")

	return cmd
}

func runHistory(opts *HistoryOptions, pageID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	dbPath := opts.Database
	if dbPath == "" {
		cfg, err := LoadConfig(opts.RootOptions)
		if err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeConfig, "invalid configuration", err)
		}
		dbPath = cfg.Database
	}

	// Opening creates the file; a missing database means no history.
	if _, err := os.Stat(dbPath); err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("database not found: %s", dbPath), err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.RunID != "" {
		return showRunOps(ctx, st, opts, formatter)
	}

	runs, err := st.ListRuns(ctx, pageID, opts.Limit)
	if err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeStore, "failed to read history", err)
	}

	out := make([]HistoryRun, len(runs))
	for i, r := range runs {
		out[i] = HistoryRun{
			ID:       r.ID,
			Seq:      r.Seq,
			Strategy: string(r.Result.Strategy),
			Kept:     r.Result.Kept,
			Inserted: r.Result.Inserted,
			Deleted:  r.Result.Deleted,
			Replaced: r.Result.Replaced,
			OpCount:  r.OpCount,
			PlanHash: r.PlanHash,
		}
	}

	if opts.Format == "json" {
		return formatter.Success(out)
	}

	w := formatter.Writer
	if len(out) == 0 {
		fmt.Fprintf(w, "No runs recorded for %s.\n", pageID)
		return nil
	}
	fmt.Fprintf(w, "Runs for %s:\n", pageID)
	for _, r := range out {
		fmt.Fprintf(w, "  #%d %s %-9s kept=%d inserted=%d deleted=%d replaced=%d\n",
			r.Seq, r.ID, r.Strategy, r.Kept, r.Inserted, r.Deleted, r.Replaced)
		formatter.VerboseLog("     %d ops, plan hash %s", r.OpCount, r.PlanHash)
	}
	return nil
}

func showRunOps(ctx context.Context, st *store.Store, opts *HistoryOptions, f *OutputFormatter) error {
	ops, err := st.ReadRunOps(ctx, opts.RunID)
	if err != nil {
		return commandError(f, ExitCommandError, ErrCodeStore, "failed to read run", err)
	}
	if len(ops) == 0 {
		return commandError(f, ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("run not found or empty: %s", opts.RunID), nil)
	}

	out := make([]HistoryOp, len(ops))
	for i, op := range ops {
		out[i] = HistoryOp{
			Index:      op.Index,
			Op:         string(op.Type),
			ExistingID: op.ExistingID,
			BlockType:  op.BlockType,
		}
	}

	if opts.Format == "json" {
		return f.Success(out)
	}

	fmt.Fprintf(f.Writer, "Run %s:\n", opts.RunID)
	for _, op := range out {
		line := fmt.Sprintf("  %3d %-7s", op.Index, op.Op)
		if op.ExistingID != "" {
			line += " " + op.ExistingID
		}
		if op.BlockType != "" {
			line += " (" + op.BlockType + ")"
		}
		fmt.Fprintln(f.Writer, line)
	}
	return nil
}
