package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/docsync/internal/ir"
)

func convert(t *testing.T, src string) []ir.Block {
	t.Helper()
	blocks, err := Convert([]byte(src))
	require.NoError(t, err)
	return blocks
}

func types(blocks []ir.Block) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i] = b.Type()
	}
	return out
}

func TestConvert_Empty(t *testing.T) {
	blocks := convert(t, "")
	assert.NotNil(t, blocks)
	assert.Empty(t, blocks)
}

func TestConvert_BlockTypes(t *testing.T) {
	src := strings.Join([]string{
		"# One",
		"",
		"## Two",
		"",
		"### Three",
		"",
		"#### Four",
		"",
		"Body text.",
		"",
		"> Quoted",
		"",
		"---",
		"",
		"```go",
		"fmt.Println(1)",
		"```",
	}, "\n")

	blocks := convert(t, src)
	assert.Equal(t, []string{
		"heading_1", "heading_2", "heading_3", "heading_3",
		"paragraph", "quote", "divider", "code",
	}, types(blocks))

	assert.Equal(t, "Four", blocks[3].PlainText())
	assert.Equal(t, "Body text.", blocks[4].PlainText())
	assert.Equal(t, "Quoted", blocks[5].PlainText())
	assert.Equal(t, map[string]any{}, blocks[6].TypeData())
	assert.Equal(t, "fmt.Println(1)", blocks[7].PlainText())
	assert.Equal(t, "go", blocks[7].TypeData()["language"])
}

func TestConvert_NoIDs(t *testing.T) {
	blocks := convert(t, "# A\n\n- b\n  - c\n\n| x |\n|---|\n| y |\n")
	var walk func([]ir.Block)
	walk = func(bs []ir.Block) {
		for _, b := range bs {
			assert.NotContains(t, b, "id")
			walk(b.Children())
		}
	}
	walk(blocks)
}

func TestConvert_Lists(t *testing.T) {
	blocks := convert(t, "- a\n- b\n  - c\n\n1. one\n2. two\n")
	require.Equal(t, []string{
		"bulleted_list_item", "bulleted_list_item",
		"numbered_list_item", "numbered_list_item",
	}, types(blocks))

	assert.Empty(t, blocks[0].Children())
	children := blocks[1].Children()
	require.Len(t, children, 1)
	assert.Equal(t, "bulleted_list_item", children[0].Type())
	assert.Equal(t, "c", children[0].PlainText())
	assert.Equal(t, "two", blocks[3].PlainText())
}

func TestConvert_TaskItems(t *testing.T) {
	blocks := convert(t, "- [ ] open\n- [x] done\n- plain\n")
	require.Equal(t, []string{"to_do", "to_do", "bulleted_list_item"}, types(blocks))

	assert.Equal(t, false, blocks[0].TypeData()["checked"])
	assert.Equal(t, true, blocks[1].TypeData()["checked"])
	assert.Equal(t, "open", strings.TrimSpace(blocks[0].PlainText()))
	assert.NotContains(t, blocks[2].TypeData(), "checked")
}

func TestConvert_NestingDepthCapped(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(strings.Repeat("  ", i))
		sb.WriteString("- item\n")
	}
	blocks := convert(t, sb.String())

	var count func([]ir.Block) int
	count = func(bs []ir.Block) int {
		n := len(bs)
		for _, b := range bs {
			n += count(b.Children())
		}
		return n
	}
	var depth func([]ir.Block) int
	depth = func(bs []ir.Block) int {
		d := 0
		for _, b := range bs {
			d = max(d, depth(b.Children()))
		}
		if len(bs) == 0 {
			return 0
		}
		return d + 1
	}

	assert.Equal(t, 10, count(blocks), "no item is dropped")
	assert.Equal(t, MaxNestingDepth, depth(blocks))
}

func TestConvert_Table(t *testing.T) {
	blocks := convert(t, "| a | b |\n|---|---|\n| 1 | 2 |\n| 3 |\n")
	require.Len(t, blocks, 1)
	table := blocks[0]
	assert.Equal(t, "table", table.Type())

	data := table.TypeData()
	assert.Equal(t, 2, data["table_width"])
	assert.Equal(t, true, data["has_column_header"])
	assert.Equal(t, false, data["has_row_header"])

	rows := table.Children()
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, "table_row", row.Type())
		assert.Len(t, row.TypeData()["cells"], 2, "rows are padded to the header width")
	}

	cellText := func(row ir.Block, i int) string {
		cells := ir.ListOf(row.TypeData()["cells"])
		var sb strings.Builder
		for _, run := range ir.MapsOf(cells[i]) {
			sb.WriteString(ir.RunText(run))
		}
		return strings.TrimSpace(sb.String())
	}
	assert.Equal(t, "a", cellText(rows[0], 0))
	assert.Equal(t, "2", cellText(rows[1], 1))
	assert.Equal(t, "", cellText(rows[2], 1))
}

func TestConvert_Images(t *testing.T) {
	t.Run("remote image becomes image block", func(t *testing.T) {
		blocks := convert(t, "![diagram](https://example.com/d.png)\n")
		require.Len(t, blocks, 1)
		assert.Equal(t, "image", blocks[0].Type())

		data := blocks[0].TypeData()
		assert.Equal(t, "external", data["type"])
		assert.Equal(t, map[string]any{"url": "https://example.com/d.png"}, data["external"])
		require.Len(t, ir.MapsOf(data["caption"]), 1)
		assert.Equal(t, "diagram", ir.RunText(ir.MapsOf(data["caption"])[0]))
	})

	t.Run("local image keeps alt text", func(t *testing.T) {
		blocks := convert(t, "![diagram](./d.png)\n")
		require.Len(t, blocks, 1)
		assert.Equal(t, "paragraph", blocks[0].Type())
		assert.Equal(t, "diagram", blocks[0].PlainText())
	})
}

func TestConvert_InlineFormatting(t *testing.T) {
	blocks := convert(t, "plain **bold** *it* ~~gone~~ `code` [link](https://a.example)\n")
	require.Len(t, blocks, 1)
	runs := blocks[0].RichText()

	type run struct {
		text string
		ann  map[string]any
		link string
	}
	var got []run
	for _, r := range runs {
		link, _ := ir.MapOf(ir.MapOf(r["text"])["link"])["url"].(string)
		got = append(got, run{text: ir.RunText(r), ann: ir.MapOf(r["annotations"]), link: link})
	}

	assert.Equal(t, []run{
		{text: "plain "},
		{text: "bold", ann: map[string]any{"bold": true}},
		{text: " "},
		{text: "it", ann: map[string]any{"italic": true}},
		{text: " "},
		{text: "gone", ann: map[string]any{"strikethrough": true}},
		{text: " "},
		{text: "code", ann: map[string]any{"code": true}},
		{text: " "},
		{text: "link", link: "https://a.example"},
	}, got)
}

func TestConvert_NestedEmphasis(t *testing.T) {
	blocks := convert(t, "***both***\n")
	runs := blocks[0].RichText()
	require.Len(t, runs, 1)
	assert.Equal(t, map[string]any{"bold": true, "italic": true}, runs[0]["annotations"])
}

func TestConvert_Autolinks(t *testing.T) {
	blocks := convert(t, "see https://example.com now\n\n<me@example.com>\n")
	require.Len(t, blocks, 2)

	var links []string
	for _, b := range blocks {
		for _, r := range b.RichText() {
			if url, ok := ir.MapOf(ir.MapOf(r["text"])["link"])["url"].(string); ok {
				links = append(links, url)
			}
		}
	}
	assert.Equal(t, []string{"https://example.com", "mailto:me@example.com"}, links)
}

func TestConvert_SoftBreakAndEscapes(t *testing.T) {
	blocks := convert(t, "first\nsecond \\*literal\\*\n")
	require.Len(t, blocks, 1)
	assert.Equal(t, "first second *literal*", blocks[0].PlainText())
}

func TestConvert_SplitsLongRuns(t *testing.T) {
	long := strings.Repeat("a", 4500)
	blocks := convert(t, long+"\n")
	runs := blocks[0].RichText()
	require.Len(t, runs, 3)
	assert.Len(t, ir.RunText(runs[0]), 2000)
	assert.Len(t, ir.RunText(runs[1]), 2000)
	assert.Len(t, ir.RunText(runs[2]), 500)
	assert.Equal(t, long, blocks[0].PlainText())
}

func TestConverter_WithMaxTextLength(t *testing.T) {
	blocks, err := New(WithMaxTextLength(4)).Convert([]byte("héllo wörld\n"))
	require.NoError(t, err)

	var parts []string
	for _, r := range blocks[0].RichText() {
		parts = append(parts, ir.RunText(r))
	}
	assert.Equal(t, []string{"héll", "o wö", "rld"}, parts)
}

func TestConvert_CodeBlocks(t *testing.T) {
	tests := []struct {
		name, src, lang, text string
	}{
		{"fenced alias", "```py\nprint(1)\n```\n", "python", "print(1)"},
		{"fenced unknown", "```brainfuck\n+\n```\n", PlainText, "+"},
		{"fenced none", "```\nx\ny\n```\n", PlainText, "x\ny"},
		{"indented", "    indented\n", PlainText, "indented"},
		{"empty", "```go\n```\n", "go", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := convert(t, tt.src)
			require.Len(t, blocks, 1)
			assert.Equal(t, "code", blocks[0].Type())
			assert.Equal(t, tt.lang, blocks[0].TypeData()["language"])
			assert.Equal(t, tt.text, blocks[0].PlainText())
		})
	}
}

func TestConvert_QuoteWithParagraphsAndList(t *testing.T) {
	blocks := convert(t, "> one\n>\n> two\n>\n> - item\n")
	require.Len(t, blocks, 1)
	assert.Equal(t, "one\ntwo", blocks[0].PlainText())

	children := blocks[0].Children()
	require.Len(t, children, 1)
	assert.Equal(t, "bulleted_list_item", children[0].Type())
}
