package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/docsync/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir|scenario.yaml>",
		Short: "Run sync scenarios",
		Long: `Run sync scenarios against an in-memory page.

Each scenario seeds a page with an existing document, syncs a desired
document into it and checks the assertions. When golden/<name>.golden
exists next to a scenario, the trace must also match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  docsync test ./scenarios
  docsync test ./scenarios --filter "replace-*"
  docsync test ./scenarios --update
  docsync test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(scenariosPath); os.IsNotExist(err) {
		return commandError(formatter, ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("scenarios path not found: %s", scenariosPath), nil)
	}

	scenarioFiles, err := findScenarioFiles(scenariosPath, opts.Filter)
	if err != nil {
		return commandError(formatter, ExitCommandError, ErrCodeGeneric, "failed to find scenarios", err)
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(cmd, TestResult{
				Scenarios: []ScenarioResult{},
				Total:     0,
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, opts, cmd)
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}

	return outputTestText(cmd, result)
}

// findScenarioFiles lists scenario files, keeping those whose base name
// (without extension) matches filter.
func findScenarioFiles(path string, filter string) ([]string, error) {
	files, err := harness.FindScenarios(path)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return files, nil
	}

	var matched []string
	for _, f := range files {
		base := filepath.Base(f)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		ok, err := filepath.Match(filter, name)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
		if ok {
			matched = append(matched, f)
		}
	}
	return matched, nil
}

// runScenario executes a single scenario and returns the result.
func runScenario(scenarioFile string, opts *TestOptions, cmd *cobra.Command) ScenarioResult {
	w := cmd.OutOrStdout()
	text := opts.Format != "json"

	fail := func(name string, errs ...string) ScenarioResult {
		if text {
			fmt.Fprintf(w, "✗ %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScenarioResult{Name: name, Pass: false, Errors: errs}
	}

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return fail(filepath.Base(scenarioFile), fmt.Sprintf("failed to load scenario: %v", err))
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("execution failed: %v", err))
	}

	current, err := snapshotOf(scenario, result).Marshal()
	if err != nil {
		return fail(scenario.Name, fmt.Sprintf("failed to marshal trace: %v", err))
	}

	goldenPath := goldenFilePath(scenarioFile)

	if opts.Update {
		if err := writeGoldenFile(goldenPath, current); err != nil {
			return fail(scenario.Name, fmt.Sprintf("failed to update golden file: %v", err))
		}
		if text {
			fmt.Fprintf(w, "✓ %s (golden updated)\n", scenario.Name)
		}
		return ScenarioResult{Name: scenario.Name, Pass: true}
	}

	// No golden file: assertions alone decide.
	golden, err := os.ReadFile(goldenPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return fail(scenario.Name, fmt.Sprintf("golden comparison failed: %v", err))
	case !bytes.Equal(golden, current):
		return fail(scenario.Name, "trace does not match golden file (run with --update to regenerate)")
	}

	if !result.Pass {
		return fail(scenario.Name, result.Errors...)
	}
	if text {
		fmt.Fprintf(w, "✓ %s\n", scenario.Name)
	}
	return ScenarioResult{Name: scenario.Name, Pass: true}
}

func snapshotOf(scenario *harness.Scenario, result *harness.Result) *harness.TraceSnapshot {
	return &harness.TraceSnapshot{
		ScenarioName: scenario.Name,
		Trace:        result.Trace,
		Outcome:      result.Outcome,
		Final:        result.Final,
	}
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func writeGoldenFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := writeJSON(cmd.OutOrStdout(), response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
