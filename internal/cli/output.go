package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario or validation failure, or a sync conflict
	ExitCommandError = 2 // Bad input, config, remote or database errors
)

// Error codes reported in text and JSON output.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeConfig      = "E002" // Config file missing or invalid
	ErrCodeParse       = "E003" // Input document could not be parsed
	ErrCodeRemote      = "E004" // Remote API error
	ErrCodeNotFound    = "E005" // Path, page or run not found
	ErrCodeStore       = "E006" // History database error
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeConflict    = "E008" // Page changed since last sync
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int    // ExitFailure or ExitCommandError
	Message string
	Err     error // optional cause
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an ExitError without a cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError creates an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure when err
// is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the envelope of every JSON output.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError is the error part of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"` // ErrCode* or a schema code such as "E202"
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output; falls back to Writer
	Verbose   bool
}

// newFormatter builds the formatter for a command. Verbose logs go to
// stderr so JSON output stays parseable.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// Success writes data. Text output prints it with fmt.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error. Text output shows details only when verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog writes a line to the diagnostic writer when verbose.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// commandError prints an error in the configured format and returns an
// ExitError carrying exitCode.
func commandError(f *OutputFormatter, exitCode int, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	_ = f.Error(code, message, details)
	return WrapExitError(exitCode, message, err)
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
