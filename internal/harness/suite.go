package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	TotalScenarios int               `json:"total_scenarios"`
	Passed         int               `json:"passed"`
	Failed         int               `json:"failed"`
	Failures       []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not load, did not run, or
// failed an assertion.
type ScenarioFailure struct {
	Name         string `json:"name,omitempty"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// FindScenarios returns every .yaml or .yml file directly under dir, sorted
// by name. A path to a single file is returned as is.
func FindScenarios(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to access %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(path, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario under path.
//
// For each scenario file:
// 1. Load and validate it
// 2. Run it via harness.Run
// 3. Collect failures
//
// Only an unreadable path is an error; scenario problems are failures in
// the summary.
func RunSuite(path string) (*SuiteResult, error) {
	files, err := FindScenarios(path)
	if err != nil {
		return nil, err
	}

	result := &SuiteResult{}
	for _, file := range files {
		result.TotalScenarios++

		scenario, err := LoadScenario(file)
		if err != nil {
			result.fail("", file, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			result.fail(scenario.Name, file, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		if !runResult.Pass {
			result.fail(scenario.Name, file, strings.Join(runResult.Errors, "\n"))
			continue
		}
		result.Passed++
	}
	return result, nil
}

func (r *SuiteResult) fail(name, path, msg string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Name: name, ScenarioPath: path, Error: msg})
}
