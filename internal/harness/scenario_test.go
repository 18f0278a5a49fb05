package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: update_middle
description: "A changed paragraph is patched in place"
existing:
  paragraphs: [A, X, B]
desired:
  paragraphs: [A, Y, B]
options:
  min_match_ratio: 0.5
  batch_size: 10
assertions:
  - type: op_types
    ops: [keep, update, keep]
  - type: result
    expect:
      kept: 2
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "update_middle", scenario.Name)
	assert.Equal(t, "A changed paragraph is patched in place", scenario.Description)
	assert.Equal(t, []string{"A", "X", "B"}, scenario.Existing.Paragraphs)
	assert.Equal(t, []string{"A", "Y", "B"}, scenario.Desired.Paragraphs)
	require.NotNil(t, scenario.Options.MinMatchRatio)
	assert.Equal(t, 0.5, *scenario.Options.MinMatchRatio)
	assert.Equal(t, 10, scenario.Options.BatchSize)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, []string{"keep", "update", "keep"}, scenario.Assertions[0].Ops)
	assert.Equal(t, 2, scenario.Assertions[1].Expect["kept"])
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, t.TempDir(), `
name: typo
description: "typo in a key"
desired:
  paragraphs: [A]
assertion:
  - type: op_types
    ops: [insert]
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_ResolvesFileRelativeToScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.md"), []byte("# Title\n\nBody\n"), 0o644))
	path := writeScenario(t, dir, `
name: from_file
description: "desired document read from a file"
desired:
  file: doc.md
assertions:
  - type: final_text
    texts: [Title, Body]
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "doc.md"), scenario.Desired.File)

	blocks, err := scenario.Desired.Build()
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "heading_1", blocks[0].Type())
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "missing name",
			content: "description: d\nassertions:\n  - type: history\n",
			errMsg:  "name is required",
		},
		{
			name:    "missing description",
			content: "name: n\nassertions:\n  - type: history\n",
			errMsg:  "description is required",
		},
		{
			name:    "no assertions",
			content: "name: n\ndescription: d\n",
			errMsg:  "assertions list is required",
		},
		{
			name:    "two document forms",
			content: "name: n\ndescription: d\ndesired:\n  markdown: x\n  paragraphs: [x]\nassertions:\n  - type: history\n",
			errMsg:  "desired: use only one of",
		},
		{
			name:    "missing document file",
			content: "name: n\ndescription: d\nexisting:\n  file: absent.md\nassertions:\n  - type: history\n",
			errMsg:  "existing.file",
		},
		{
			name:    "unknown strategy",
			content: "name: n\ndescription: d\noptions:\n  strategy: merge\nassertions:\n  - type: history\n",
			errMsg:  "unknown strategy",
		},
		{
			name:    "ratio out of range",
			content: "name: n\ndescription: d\noptions:\n  min_match_ratio: 2\nassertions:\n  - type: history\n",
			errMsg:  "min_match_ratio",
		},
		{
			name:    "unknown assertion type",
			content: "name: n\ndescription: d\nassertions:\n  - type: trace_contains\n",
			errMsg:  `unknown assertion type "trace_contains"`,
		},
		{
			name:    "assertion without type",
			content: "name: n\ndescription: d\nassertions:\n  - count: 1\n",
			errMsg:  "assertions[0]: type is required",
		},
		{
			name:    "unknown op in op_types",
			content: "name: n\ndescription: d\nassertions:\n  - type: op_types\n    ops: [keep, move]\n",
			errMsg:  `unknown op type "move"`,
		},
		{
			name:    "op_count without op",
			content: "name: n\ndescription: d\nassertions:\n  - type: op_count\n    count: 1\n",
			errMsg:  "op_count needs a valid op",
		},
		{
			name:    "result without expect",
			content: "name: n\ndescription: d\nassertions:\n  - type: result\n",
			errMsg:  "expect is required",
		},
		{
			name:    "call_order without methods",
			content: "name: n\ndescription: d\nassertions:\n  - type: call_order\n",
			errMsg:  "methods list is required",
		},
		{
			name:    "final_text without texts",
			content: "name: n\ndescription: d\nassertions:\n  - type: final_text\n",
			errMsg:  "texts list is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDocument_Build(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		blocks, err := Document{}.Build()
		require.NoError(t, err)
		assert.NotNil(t, blocks)
		assert.Empty(t, blocks)
	})

	t.Run("paragraphs", func(t *testing.T) {
		blocks, err := Document{Paragraphs: []string{"one", "two"}}.Build()
		require.NoError(t, err)
		require.Len(t, blocks, 2)
		assert.Equal(t, "paragraph", blocks[1].Type())
		assert.Equal(t, "two", blocks[1].PlainText())
	})

	t.Run("markdown", func(t *testing.T) {
		blocks, err := Document{Markdown: "- item\n\n---\n"}.Build()
		require.NoError(t, err)
		require.Len(t, blocks, 2)
		assert.Equal(t, "bulleted_list_item", blocks[0].Type())
		assert.Equal(t, "divider", blocks[1].Type())
	})

	t.Run("raw blocks", func(t *testing.T) {
		blocks, err := Document{Blocks: []map[string]any{
			{"type": "divider", "divider": map[string]any{}},
			{"type": "code", "code": map[string]any{"language": "go", "rich_text": []any{}}},
		}}.Build()
		require.NoError(t, err)
		require.Len(t, blocks, 2)
		assert.Equal(t, "divider", blocks[0].Type())
		assert.Equal(t, "go", blocks[1].TypeData()["language"])
	})
}
