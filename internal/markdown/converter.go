// Package markdown converts Markdown documents into block lists ready to be
// planned against a remote page.
//
// Parsing uses goldmark with the GFM extensions (tables, strikethrough, task
// lists, autolinks). Output blocks never carry ids; nested list items and
// table rows are placed under "children" inside the type payload, which is
// the form the append endpoint accepts.
package markdown

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"github.com/roach88/docsync/internal/ir"
)

// MaxNestingDepth caps how deep list children are nested. Deeper items are
// emitted as siblings of their parent.
const MaxNestingDepth = 8

// Converter turns Markdown source into blocks. A Converter is safe for
// concurrent use.
type Converter struct {
	md      goldmark.Markdown
	maxText int
}

// Option configures a Converter.
type Option func(*Converter)

// WithMaxTextLength sets the rune limit for a single rich-text run.
// Default: 2000 (MaxTextLength). Values below 1 are ignored.
func WithMaxTextLength(n int) Option {
	return func(c *Converter) {
		if n > 0 {
			c.maxText = n
		}
	}
}

// New creates a Converter.
func New(opts ...Option) *Converter {
	c := &Converter{
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		maxText: MaxTextLength,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert parses source with a default Converter.
func Convert(source []byte) ([]ir.Block, error) {
	return New().Convert(source)
}

// Convert parses source and returns its top-level blocks in document order.
// An empty document yields an empty, non-nil slice.
func (c *Converter) Convert(source []byte) ([]ir.Block, error) {
	root := c.md.Parser().Parse(text.NewReader(source))
	b := &builder{source: source, maxText: c.maxText}

	blocks := make([]ir.Block, 0, root.ChildCount())
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		out, err := b.block(n, 0)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, out...)
	}
	return blocks, nil
}

type builder struct {
	source  []byte
	maxText int
}

// block converts one block-level node. Some nodes expand to several blocks
// (over-deep list children) and some to none.
func (b *builder) block(n ast.Node, depth int) ([]ir.Block, error) {
	switch node := n.(type) {
	case *ast.Heading:
		level := min(max(node.Level, 1), 3)
		runs, err := b.inline(node)
		if err != nil {
			return nil, err
		}
		return one(newBlock(headingTypes[level-1], map[string]any{"rich_text": runs})), nil

	case *ast.Paragraph, *ast.TextBlock:
		if img, ok := standaloneImage(n); ok {
			return b.image(img)
		}
		runs, err := b.inline(n)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, nil
		}
		return one(newBlock("paragraph", map[string]any{"rich_text": runs})), nil

	case *ast.List:
		return b.list(node, depth)

	case *ast.FencedCodeBlock:
		lang := ""
		if node.Info != nil {
			lang = string(node.Language(b.source))
		}
		return one(b.code(n, lang)), nil

	case *ast.CodeBlock:
		return one(b.code(n, "")), nil

	case *ast.Blockquote:
		return b.quote(node, depth)

	case *ast.ThematicBreak:
		return one(newBlock("divider", map[string]any{})), nil

	case *extast.Table:
		return b.table(node)

	case *ast.HTMLBlock:
		content := strings.TrimRight(b.lines(n), "\n")
		if content == "" {
			return nil, nil
		}
		return one(newBlock("paragraph", map[string]any{
			"rich_text": b.split([]segment{{text: content}}),
		})), nil

	default:
		slog.Debug("skipping unsupported markdown node", "kind", n.Kind().String())
		return nil, nil
	}
}

var headingTypes = [3]string{"heading_1", "heading_2", "heading_3"}

func (b *builder) list(list *ast.List, depth int) ([]ir.Block, error) {
	blockType := "bulleted_list_item"
	if list.IsOrdered() {
		blockType = "numbered_list_item"
	}

	var out []ir.Block
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		itemType := blockType
		payload := map[string]any{"rich_text": []any{}}

		first := item.FirstChild()
		rest := first
		if first != nil && (first.Kind() == ast.KindTextBlock || first.Kind() == ast.KindParagraph) {
			if box := taskCheckBox(first); box != nil {
				itemType = "to_do"
				payload["checked"] = box.IsChecked
			}
			runs, err := b.inline(first)
			if err != nil {
				return nil, err
			}
			payload["rich_text"] = runs
			rest = first.NextSibling()
		}

		var nested []ir.Block
		for child := rest; child != nil; child = child.NextSibling() {
			blocks, err := b.block(child, depth+1)
			if err != nil {
				return nil, err
			}
			nested = append(nested, blocks...)
		}

		out = append(out, newBlock(itemType, payload))
		switch {
		case len(nested) == 0:
		case depth+1 < MaxNestingDepth:
			payload["children"] = nested
		default:
			out = append(out, nested...)
		}
	}
	return out, nil
}

func (b *builder) quote(q *ast.Blockquote, depth int) ([]ir.Block, error) {
	var segs []segment
	var nested []ir.Block
	for child := q.FirstChild(); child != nil; child = child.NextSibling() {
		if child.Kind() == ast.KindParagraph {
			s, err := b.segments(child)
			if err != nil {
				return nil, err
			}
			if len(segs) > 0 {
				segs = append(segs, segment{text: "\n"})
			}
			segs = append(segs, s...)
			continue
		}
		blocks, err := b.block(child, depth+1)
		if err != nil {
			return nil, err
		}
		nested = append(nested, blocks...)
	}

	payload := map[string]any{"rich_text": b.split(merge(segs))}
	if len(nested) > 0 {
		payload["children"] = nested
	}
	return one(newBlock("quote", payload)), nil
}

func (b *builder) code(n ast.Node, info string) ir.Block {
	content := strings.TrimSuffix(b.lines(n), "\n")
	runs := []any{}
	if content != "" {
		runs = b.split([]segment{{text: content}})
	}
	return newBlock("code", map[string]any{
		"rich_text": runs,
		"language":  NormalizeLanguage(info),
	})
}

func (b *builder) lines(n ast.Node) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		buf.Write(line.Value(b.source))
	}
	return buf.String()
}

func (b *builder) image(img *ast.Image) ([]ir.Block, error) {
	dest := string(img.Destination)
	alt, err := b.segments(img)
	if err != nil {
		return nil, err
	}

	if !isRemoteURL(dest) {
		// Local files would need an upload; keep the alt text instead.
		slog.Warn("image is not a remote url, emitting alt text", "src", dest)
		if len(alt) == 0 {
			alt = []segment{{text: dest}}
		}
		return one(newBlock("paragraph", map[string]any{"rich_text": b.split(merge(alt))})), nil
	}

	payload := map[string]any{
		"type":     "external",
		"external": map[string]any{"url": dest},
	}
	if len(alt) > 0 {
		payload["caption"] = b.split(merge(alt))
	}
	return one(newBlock("image", payload)), nil
}

func (b *builder) table(t *extast.Table) ([]ir.Block, error) {
	width := 0
	var rows []ir.Block
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []any
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			runs, err := b.inline(cell)
			if err != nil {
				return nil, err
			}
			cells = append(cells, runs)
		}
		if row.Kind() == extast.KindTableHeader || width == 0 {
			width = max(width, len(cells))
		}
		rows = append(rows, ir.Block{"type": "table_row", "table_row": map[string]any{"cells": cells}})
	}

	// Pad or trim every row to the header width.
	for _, row := range rows {
		data := row.TypeData()
		cells, _ := data["cells"].([]any)
		for len(cells) < width {
			cells = append(cells, []any{})
		}
		data["cells"] = cells[:width]
	}

	return one(newBlock("table", map[string]any{
		"table_width":       width,
		"has_column_header": true,
		"has_row_header":    false,
		"children":          rows,
	})), nil
}

// newBlock wraps payload as a block of blockType. payload gets the
// attributes the remote would report by default, so unchanged content
// matches its remote copy.
func newBlock(blockType string, payload map[string]any) ir.Block {
	ir.FillDefaults(blockType, payload)
	return ir.Block{
		"object":  "block",
		"type":    blockType,
		blockType: payload,
	}
}

func one(b ir.Block) []ir.Block {
	return []ir.Block{b}
}

// standaloneImage reports whether a paragraph holds a single image and
// nothing else.
func standaloneImage(n ast.Node) (*ast.Image, bool) {
	if n.ChildCount() != 1 {
		return nil, false
	}
	img, ok := n.FirstChild().(*ast.Image)
	return img, ok
}

func taskCheckBox(n ast.Node) *extast.TaskCheckBox {
	box, _ := n.FirstChild().(*extast.TaskCheckBox)
	return box
}

func isRemoteURL(s string) bool {
	return strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "http://")
}
