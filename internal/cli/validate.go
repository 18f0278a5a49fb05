package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                     `json:"valid"`
	Blocks int                      `json:"blocks,omitempty"`
	Errors []schema.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <blocks.json>",
		Short: "Check a JSON block document against the block schema",
		Long: `Validate a JSON array of block objects before sending it anywhere.

Checks that every block has a type and a matching payload, that rich text
runs are well formed, and that no text run exceeds the remote's length
limit. Nested children are checked too.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("file not found: %s", path), nil)
	}
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Validating %s (%d bytes)", path, len(data))

	if errs := schema.Validate(data); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	return outputValidateSuccess(formatter, countBlocks(data))
}

// countBlocks counts top-level entries of an already validated document.
func countBlocks(data []byte) int {
	var blocks []any
	if err := json.Unmarshal(data, &blocks); err != nil {
		return 0
	}
	return len(blocks)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, blocks int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Blocks: blocks})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d blocks valid\n", blocks)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []schema.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}
		if err := writeJSON(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		if err.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
