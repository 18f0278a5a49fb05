package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/ir"
	"github.com/roach88/docsync/internal/memory"
	"github.com/roach88/docsync/internal/testutil"
)

func newTestTree() *memory.Tree {
	return memory.NewTree(
		memory.WithIDGenerator(ir.NewSequenceGenerator("b")),
		memory.WithClock(testutil.NewDeterministicClock().Now),
	)
}

// applyFixture runs apply against tree with a fresh database per test.
type applyFixture struct {
	tree *memory.Tree
	db   string
	dir  string
	runs ir.IDGenerator
}

func newApplyFixture(t *testing.T) *applyFixture {
	dir := t.TempDir()
	return &applyFixture{
		tree: newTestTree(),
		db:   filepath.Join(dir, "runs.db"),
		dir:  dir,
		runs: ir.NewSequenceGenerator("run"),
	}
}

func (f *applyFixture) run(format string, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	opts := &ApplyOptions{
		RootOptions: &RootOptions{Format: format},
		Remote:      f.tree,
		IDGenerator: f.runs,
	}
	cmd := newApplyCommand(opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--db", f.db))
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestApply_Diff(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("page", testutil.Paragraphs("A", "X", "B"))
	notes := writeFile(t, f.dir, "notes.md", "A\n\nY\n\nB\n")

	out, err := f.run("text", "page", notes)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ page <- ")
	assert.Contains(t, out, "2 kept, 1 inserted, 0 deleted, 0 replaced (diff)")
	assert.Equal(t, []string{"A", "Y", "B"}, f.tree.PlainTexts("page"))
}

func TestApply_JSON(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("page", testutil.Paragraphs("A"))
	notes := writeFile(t, f.dir, "notes.md", "A\n\nB\n")

	out, err := f.run("json", "page", notes)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []ApplyReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)

	r := resp.Data[0]
	assert.Equal(t, "page", r.PageID)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, int64(1), r.Seq)
	assert.Equal(t, 2, r.Ops)
	assert.Equal(t, ir.UpdateResult{Strategy: ir.StrategyDiff, Kept: 1, Inserted: 1}, r.Result)
}

func TestApply_DryRun(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("page", testutil.Paragraphs("A", "X"))
	notes := writeFile(t, f.dir, "notes.md", "A\n\nY\n")

	out, err := f.run("text", "page", notes, "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "~ page <- ")
	assert.Contains(t, out, "dry run: nothing written")
	assert.Equal(t, []string{"A", "X"}, f.tree.PlainTexts("page"))
	assert.Equal(t, 0, f.tree.MutationCount())
}

func TestApply_StrategyOverride(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("page", testutil.Paragraphs("A", "B"))
	notes := writeFile(t, f.dir, "notes.md", "A\n\nB\n")

	out, err := f.run("text", "page", notes, "--strategy", "overwrite")
	require.NoError(t, err)

	assert.Contains(t, out, "0 kept, 2 inserted, 2 deleted, 0 replaced (overwrite)")
	assert.Equal(t, []string{"A", "B"}, f.tree.PlainTexts("page"))
}

func TestApply_MultiplePages(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("one", testutil.Paragraphs("A"))
	f.tree.Seed("two", testutil.Paragraphs("B"))
	first := writeFile(t, f.dir, "one.md", "A\n\nA2\n")
	second := writeFile(t, f.dir, "two.json",
		`[{"type":"paragraph","paragraph":{"rich_text":[{"type":"text","text":{"content":"C"}}]}}]`)

	_, err := f.run("text", "one", first, "two", second)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "A2"}, f.tree.PlainTexts("one"))
	assert.Equal(t, []string{"C"}, f.tree.PlainTexts("two"))
}

func TestApply_Conflict(t *testing.T) {
	f := newApplyFixture(t)
	ids := f.tree.Seed("page", testutil.Paragraphs("A", "B"))
	notes := writeFile(t, f.dir, "notes.md", "A\n\nB\n")

	_, err := f.run("text", "page", notes)
	require.NoError(t, err)

	f.tree.Touch(ids[0])
	changed := writeFile(t, f.dir, "changed.md", "A\n\nC\n")

	out, err := f.run("text", "page", changed)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeConflict)
	assert.Equal(t, []string{"A", "B"}, f.tree.PlainTexts("page"))

	// Overwriting resolves it.
	_, err = f.run("text", "page", changed, "--on-conflict", "overwrite")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, f.tree.PlainTexts("page"))
}

func TestApply_RemoteError(t *testing.T) {
	f := newApplyFixture(t)
	notes := writeFile(t, f.dir, "notes.md", "A\n")

	// The page was never seeded, so listing it fails.
	out, err := f.run("text", "missing", notes)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [")
}

func TestApply_MetricsFile(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("page", testutil.Paragraphs("A"))
	notes := writeFile(t, f.dir, "notes.md", "A\n\nB\n")
	metrics := filepath.Join(f.dir, "docsync.prom")

	_, err := f.run("text", "page", notes, "--metrics-file", metrics)
	require.NoError(t, err)

	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), "docsync_diff_ops_total")
	assert.Contains(t, string(data), "docsync_diff_remote_calls_total")
}

func TestApply_InvalidArgs(t *testing.T) {
	f := newApplyFixture(t)

	_, err := f.run("text", "page")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pairs")

	_, err = f.run("text", "page", "a.md", "orphan")
	require.Error(t, err)
}

func TestApply_InvalidStrategy(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("page", testutil.Paragraphs("A"))
	notes := writeFile(t, f.dir, "notes.md", "A\n")

	out, err := f.run("text", "page", notes, "--strategy", "merge")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeConfig)
}

func TestApply_MissingDocument(t *testing.T) {
	f := newApplyFixture(t)
	f.tree.Seed("page", testutil.Paragraphs("A"))

	_, err := f.run("text", "page", filepath.Join(f.dir, "nope.md"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, 0, f.tree.MutationCount())
}

func TestApply_RequiresToken(t *testing.T) {
	t.Setenv("NOTION_TOKEN", "")
	dir := t.TempDir()
	notes := writeFile(t, dir, "notes.md", "A\n")

	buf := &bytes.Buffer{}
	cmd := NewApplyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"page", notes, "--db", filepath.Join(dir, "runs.db")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "missing API token")
}
