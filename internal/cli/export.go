package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/markdown"
	"github.com/roach88/docsync/internal/notion"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output      string // output file; empty writes to stdout
	Depth       int
	Unsupported string

	// Remote overrides the API client (for testing).
	// If nil, a notion.Client is built from the config.
	Remote markdown.ChildLister
}

// ExportReport is the JSON result of an export.
type ExportReport struct {
	PageID   string `json:"page_id"`
	Markdown string `json:"markdown,omitempty"`
	Output   string `json:"output,omitempty"`
	Bytes    int    `json:"bytes"`
}

var unsupportedPolicies = []string{markdown.UnsupportedComment, markdown.UnsupportedSkip, markdown.UnsupportedError}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return newExportCommand(&ExportOptions{RootOptions: rootOpts})
}

func newExportCommand(opts *ExportOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <page-id>",
		Short: "Render a remote page as Markdown",
		Long: `Fetch the blocks of a remote page, descending into nested blocks, and
render them as Markdown.

Blocks with no Markdown form are written as HTML comments by default;
use --unsupported skip to drop them or --unsupported error to fail.

Examples:
  docsync export 1a2b3c
  docsync export 1a2b3c -o notes.md --depth -1
  docsync export 1a2b3c --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write Markdown to this file instead of stdout")
	cmd.Flags().IntVar(&opts.Depth, "depth", 3, "levels of nested blocks to fetch below the top level (-1 for no limit)")
	cmd.Flags().StringVar(&opts.Unsupported, "unsupported", markdown.UnsupportedComment, "handling of blocks without Markdown form (comment|skip|error)")

	return cmd
}

func runExport(opts *ExportOptions, pageID string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if !slices.Contains(unsupportedPolicies, opts.Unsupported) {
		return commandError(formatter, ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("invalid --unsupported %q: must be one of %v", opts.Unsupported, unsupportedPolicies), nil)
	}

	api := opts.Remote
	if api == nil {
		cfg, err := LoadConfig(opts.RootOptions)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeConfig, "invalid configuration", err)
		}
		if err := cfg.RequireToken(); err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeConfig, "missing API token", err)
		}
		client, err := notion.New(cfg.ClientConfig())
		if err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeConfig, "failed to create API client", err)
		}
		api = client
	}

	slog.Debug("exporting page", "page", pageID, "depth", opts.Depth)
	renderer := markdown.NewRenderer(markdown.WithUnsupported(opts.Unsupported))
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	text, err := renderer.Export(ctx, api, pageID, opts.Depth)
	if err != nil {
		return exportFailure(formatter, pageID, err)
	}
	formatter.VerboseLog("Rendered page %s (%d bytes)", pageID, len(text))

	report := ExportReport{PageID: pageID, Bytes: len(text)}
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, []byte(text), 0644); err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeWriteFailed, "failed to write output file", err)
		}
		if opts.Format == "json" {
			report.Output = opts.Output
			return formatter.Success(report)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d bytes to %s\n", len(text), opts.Output)
		return nil
	}

	if opts.Format == "json" {
		report.Markdown = text
		return formatter.Success(report)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), text)
	return err
}

// exportFailure maps a fetch or render error onto an error code.
func exportFailure(f *OutputFormatter, pageID string, err error) error {
	var uerr *markdown.UnsupportedBlockError
	switch {
	case errors.As(err, &uerr):
		return commandError(f, ExitFailure, ErrCodeParse, uerr.Error(), err)
	case notion.IsNotFound(err):
		return commandError(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("page not found: %s", pageID), err)
	}
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) {
		return commandError(f, ExitCommandError, ErrCodeRemote, "remote API error", err)
	}
	return commandError(f, ExitCommandError, ErrCodeGeneric, "export failed", err)
}
