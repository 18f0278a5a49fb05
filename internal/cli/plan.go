package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/diff"
	"github.com/roach88/docsync/internal/ir"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	MinMatchRatio float64
	Overwrite     bool
	Color         string // "auto" | "always" | "never"
}

// PlannedOp is one op of a rendered plan.
type PlannedOp struct {
	Op         ir.OpType `json:"op"`
	ExistingID string    `json:"existing_id,omitempty"`
	BlockType  string    `json:"block_type,omitempty"`
	OldText    string    `json:"old_text,omitempty"`
	NewText    string    `json:"new_text,omitempty"`
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	Ops      []PlannedOp       `json:"ops"`
	Counts   map[ir.OpType]int `json:"counts"`
	PlanHash string            `json:"plan_hash"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <existing.json> <desired.md|desired.json>",
		Short: "Show the edit script between two documents",
		Long: `Compute the edit script that turns an existing block list into a desired one.

The existing document is a JSON array of blocks with ids, as listed from the
remote. The desired document is Markdown or a JSON block array. Nothing is
sent anywhere.

Examples:
  docsync plan page.json notes.md
  docsync plan page.json notes.md --min-match-ratio 0.5
  docsync plan page.json notes.md --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().Float64Var(&opts.MinMatchRatio, "min-match-ratio", diff.DefaultMinMatchRatio, "below this anchor ratio the page is overwritten")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "plan a full overwrite instead of a diff")
	cmd.Flags().StringVar(&opts.Color, "color", "auto", "colorize text output (auto|always|never)")

	return cmd
}

func runPlan(opts *PlanOptions, existingPath, desiredPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.MinMatchRatio < 0 || opts.MinMatchRatio > 1 {
		return commandError(formatter, ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("--min-match-ratio must be between 0 and 1, got %v", opts.MinMatchRatio), nil)
	}

	existing, err := LoadDocument(existingPath)
	if err != nil {
		return loadFailure(formatter, err)
	}
	desired, err := LoadDocument(desiredPath)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Loaded %d existing and %d desired blocks", len(existing), len(desired))

	var ops []ir.DiffOp
	if opts.Overwrite {
		ops = diff.OverwriteOps(existing, desired)
	} else {
		ops = diff.NewPlanner(diff.WithMinMatchRatio(opts.MinMatchRatio)).Plan(existing, desired)
	}

	result := buildPlanResult(existing, ops)
	if opts.Format == "json" {
		return formatter.Success(result)
	}

	renderPlan(cmd.OutOrStdout(), result, useColor(opts.Color, cmd.OutOrStdout()))
	return nil
}

func buildPlanResult(existing []ir.Block, ops []ir.DiffOp) PlanResult {
	byID := make(map[string]ir.Block, len(existing))
	for _, b := range existing {
		if id := b.ID(); id != "" {
			byID[id] = b
		}
	}

	planned := make([]PlannedOp, len(ops))
	for i, op := range ops {
		p := PlannedOp{Op: op.Type, ExistingID: op.ExistingID}
		if old, ok := byID[op.ExistingID]; ok {
			p.BlockType = old.Type()
			p.OldText = old.PlainText()
		}
		if op.NewBlock != nil {
			p.BlockType = op.NewBlock.Type()
			p.NewText = op.NewBlock.PlainText()
		}
		planned[i] = p
	}

	return PlanResult{
		Ops:      planned,
		Counts:   ir.CountOps(ops),
		PlanHash: ir.PlanHash(ops),
	}
}

// useColor resolves the --color flag. "auto" colors only terminals.
func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type palette struct {
	keep, insert, remove, change, dim *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		keep:   color.New(color.Faint),
		insert: color.New(color.FgGreen),
		remove: color.New(color.FgRed),
		change: color.New(color.FgYellow),
		dim:    color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{p.keep, p.insert, p.remove, p.change, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// renderPlan prints one line per op. Updates and replaces show an inline
// word diff of the block text.
func renderPlan(w io.Writer, result PlanResult, colored bool) {
	p := newPalette(colored)

	for _, op := range result.Ops {
		switch op.Op {
		case ir.OpKeep:
			fmt.Fprintln(w, p.keep.Sprintf("  = %s %s", op.ExistingID, quote(op.OldText)))
		case ir.OpInsert:
			fmt.Fprintln(w, p.insert.Sprintf("  + %s %s", op.BlockType, quote(op.NewText)))
		case ir.OpDelete:
			fmt.Fprintln(w, p.remove.Sprintf("  - %s %s", op.ExistingID, quote(op.OldText)))
		case ir.OpUpdate:
			fmt.Fprintf(w, "%s %s\n", p.change.Sprintf("  ~ %s", op.ExistingID), textDiff(p, op.OldText, op.NewText))
		case ir.OpReplace:
			fmt.Fprintf(w, "%s %s\n", p.change.Sprintf("  ! %s -> %s", op.ExistingID, op.BlockType), textDiff(p, op.OldText, op.NewText))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Plan: %d keep, %d update, %d replace, %d insert, %d delete\n",
		result.Counts[ir.OpKeep],
		result.Counts[ir.OpUpdate],
		result.Counts[ir.OpReplace],
		result.Counts[ir.OpInsert],
		result.Counts[ir.OpDelete],
	)
	fmt.Fprintln(w, p.dim.Sprintf("plan hash %s", result.PlanHash))
}

// textDiff renders a character diff, cleaned up to word-ish boundaries.
// Deleted text is wrapped in [-...-] and inserted text in {+...+}.
func textDiff(p palette, from, to string) string {
	if from == to {
		return quote(to)
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(from, to, false))

	var b strings.Builder
	b.WriteByte('"')
	for _, d := range diffs {
		text := escape(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString(p.remove.Sprint("[-" + text + "-]"))
		case diffmatchpatch.DiffInsert:
			b.WriteString(p.insert.Sprint("{+" + text + "+}"))
		case diffmatchpatch.DiffEqual:
			b.WriteString(text)
		}
	}
	b.WriteByte('"')
	return b.String()
}

const maxQuoted = 60

func quote(s string) string {
	r := []rune(s)
	if len(r) > maxQuoted {
		s = string(r[:maxQuoted-3]) + "..."
	}
	return `"` + escape(s) + `"`
}

func escape(s string) string {
	return strings.NewReplacer("\n", `\n`, "\t", `\t`).Replace(s)
}

// loadFailure reports a LoadError with the exit code its cause deserves:
// schema problems are validation failures, everything else a command error.
func loadFailure(f *OutputFormatter, err error) error {
	var lerr *LoadError
	if !errors.As(err, &lerr) {
		return commandError(f, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	exitCode := ExitCommandError
	if len(lerr.Errors) > 0 {
		exitCode = ExitFailure
	}
	_ = f.Error(lerr.Code, lerr.Error(), nil)
	return WrapExitError(exitCode, lerr.Error(), nil)
}
