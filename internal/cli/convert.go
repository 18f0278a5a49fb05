package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/markdown"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Output        string // output file; empty writes to stdout
	MaxTextLength int
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert <file.md>",
		Short: "Convert Markdown to a JSON block array",
		Long: `Convert a Markdown file into the block objects docsync would write.

The output is a JSON array of blocks without ids, ready for "plan" or
"validate".

Examples:
  docsync convert notes.md
  docsync convert notes.md -o notes.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write blocks to this file instead of stdout")
	cmd.Flags().IntVar(&opts.MaxTextLength, "max-text-length", markdown.MaxTextLength, "split text runs longer than this many characters")

	return cmd
}

func runConvert(opts *ConvertOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	src, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return commandError(formatter, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path), nil)
	}
	if err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeGeneric, "failed to read input", err)
	}

	blocks, err := markdown.New(markdown.WithMaxTextLength(opts.MaxTextLength)).Convert(src)
	if err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeParse, "failed to convert markdown", err)
	}
	formatter.VerboseLog("Converted %s into %d top-level blocks", path, len(blocks))

	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeWriteFailed, "failed to create output file", err)
		}
		defer f.Close()
		if err := writeJSON(f, blocks); err != nil {
			return commandError(formatter, ExitCommandError, ErrCodeWriteFailed, "failed to write output file", err)
		}
		if opts.Format == "json" {
			return formatter.Success(map[string]any{"output": opts.Output, "blocks": len(blocks)})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %d blocks to %s\n", len(blocks), opts.Output)
		return nil
	}

	if opts.Format == "json" {
		return formatter.Success(blocksOrEmpty(blocks))
	}
	return writeJSON(cmd.OutOrStdout(), blocksOrEmpty(blocks))
}

func blocksOrEmpty(blocks []ir.Block) []ir.Block {
	if blocks == nil {
		return []ir.Block{}
	}
	return blocks
}
