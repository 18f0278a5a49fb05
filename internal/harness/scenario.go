package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/markdown"
	"github.com/roach88/docsync/internal/testutil"
)

// DefaultPageID is the page scenarios sync when none is named.
const DefaultPageID = "page"

// Scenario defines one sync to replay against an in-memory page.
// The existing document is seeded, the desired one is synced over it, and
// the assertions are checked against the resulting trace and page.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Page is the page id to sync. Defaults to DefaultPageID.
	Page string `yaml:"page,omitempty"`

	// Existing is seeded into the page before the sync.
	Existing Document `yaml:"existing"`

	// Desired is the target document.
	Desired Document `yaml:"desired"`

	// Options tune the planner and executor.
	Options Options `yaml:"options,omitempty"`

	// Assertions validate the trace, the counts and the final page.
	Assertions []Assertion `yaml:"assertions"`
}

// Document is a block list given in exactly one of three forms.
type Document struct {
	// Markdown is converted with the markdown package.
	Markdown string `yaml:"markdown,omitempty"`

	// File is a Markdown file, relative to the scenario file.
	File string `yaml:"file,omitempty"`

	// Paragraphs is shorthand for one paragraph block per string.
	Paragraphs []string `yaml:"paragraphs,omitempty"`

	// Blocks are raw block objects.
	Blocks []map[string]any `yaml:"blocks,omitempty"`
}

// Options configures the sync under test.
type Options struct {
	Strategy      string   `yaml:"strategy,omitempty"`
	MinMatchRatio *float64 `yaml:"min_match_ratio,omitempty"`
	BatchSize     int      `yaml:"batch_size,omitempty"`
}

// Assertion validates one aspect of a scenario run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "op_types": the planned op types, in order
	// - "op_count": how many ops of one type were planned
	// - "result": executor counts (subset match)
	// - "remote_calls": how many mutations were issued, optionally of one method
	// - "call_order": the mutation methods, in order
	// - "final_text": the plain text of the page's blocks, in order
	// - "history": how many runs were recorded for the page
	Type string `yaml:"type"`

	// Ops lists op types (op_types).
	Ops []string `yaml:"ops,omitempty"`

	// Op is the op type to count (op_count).
	Op string `yaml:"op,omitempty"`

	// Method restricts remote_calls to one method.
	Method string `yaml:"method,omitempty"`

	// Methods lists mutation methods (call_order).
	Methods []string `yaml:"methods,omitempty"`

	// Count is the expected number (op_count, remote_calls, history).
	Count int `yaml:"count,omitempty"`

	// Expect holds expected result fields (result).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Texts lists expected block texts (final_text).
	Texts []string `yaml:"texts,omitempty"`
}

// Assertion type constants.
const (
	AssertOpTypes     = "op_types"
	AssertOpCount     = "op_count"
	AssertResult      = "result"
	AssertRemoteCalls = "remote_calls"
	AssertCallOrder   = "call_order"
	AssertFinalText   = "final_text"
	AssertHistory     = "history"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving document file paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for _, doc := range []*Document{&scenario.Existing, &scenario.Desired} {
		if doc.File != "" && !filepath.IsAbs(doc.File) && basePath != "" {
			doc.File = filepath.Join(basePath, doc.File)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if err := validateDocument("existing", &s.Existing); err != nil {
		return err
	}
	if err := validateDocument("desired", &s.Desired); err != nil {
		return err
	}

	switch ir.Strategy(s.Options.Strategy) {
	case "", ir.StrategyDiff, ir.StrategyOverwrite:
	default:
		return fmt.Errorf("options.strategy: unknown strategy %q", s.Options.Strategy)
	}
	if r := s.Options.MinMatchRatio; r != nil && (*r < 0 || *r > 1) {
		return fmt.Errorf("options.min_match_ratio must be between 0 and 1")
	}
	if s.Options.BatchSize < 0 {
		return fmt.Errorf("options.batch_size must not be negative")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateDocument allows at most one form; none means an empty page.
func validateDocument(field string, d *Document) error {
	forms := 0
	if d.Markdown != "" {
		forms++
	}
	if d.File != "" {
		forms++
		if _, err := os.Stat(d.File); err != nil {
			return fmt.Errorf("%s.file: %w", field, err)
		}
	}
	if len(d.Paragraphs) > 0 {
		forms++
	}
	if len(d.Blocks) > 0 {
		forms++
	}
	if forms > 1 {
		return fmt.Errorf("%s: use only one of markdown, file, paragraphs or blocks", field)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOpTypes:
		if a.Ops == nil {
			return fmt.Errorf("assertions[%d]: ops list is required for op_types", index)
		}
		for _, op := range a.Ops {
			if !validOpType(op) {
				return fmt.Errorf("assertions[%d]: unknown op type %q", index, op)
			}
		}
	case AssertOpCount:
		if !validOpType(a.Op) {
			return fmt.Errorf("assertions[%d]: op_count needs a valid op, got %q", index, a.Op)
		}
	case AssertResult:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for result", index)
		}
	case AssertRemoteCalls, AssertHistory:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must not be negative", index)
		}
	case AssertCallOrder:
		if a.Methods == nil {
			return fmt.Errorf("assertions[%d]: methods list is required for call_order", index)
		}
	case AssertFinalText:
		if a.Texts == nil {
			return fmt.Errorf("assertions[%d]: texts list is required for final_text", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func validOpType(op string) bool {
	switch ir.OpType(op) {
	case ir.OpKeep, ir.OpUpdate, ir.OpReplace, ir.OpInsert, ir.OpDelete:
		return true
	}
	return false
}

// Build converts the document to blocks. An empty document yields no
// blocks.
func (d Document) Build() ([]ir.Block, error) {
	switch {
	case d.Markdown != "":
		return markdown.Convert([]byte(d.Markdown))
	case d.File != "":
		src, err := os.ReadFile(d.File)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", d.File, err)
		}
		return markdown.Convert(src)
	case len(d.Paragraphs) > 0:
		return testutil.Paragraphs(d.Paragraphs...), nil
	case len(d.Blocks) > 0:
		// Round-trip through JSON so numbers read as json.Number, the
		// same as blocks fetched from the remote.
		data, err := json.Marshal(d.Blocks)
		if err != nil {
			return nil, fmt.Errorf("encode blocks: %w", err)
		}
		return ir.DecodeBlocks(data)
	default:
		return []ir.Block{}, nil
	}
}
