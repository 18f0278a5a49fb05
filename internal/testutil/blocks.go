package testutil

import (
	"fmt"

	"github.com/roach88/docsync/internal/ir"
)

// Text builds a plain rich-text run in the shape the remote returns.
func Text(content string) map[string]any {
	return map[string]any{
		"type":       "text",
		"text":       map[string]any{"content": content},
		"plain_text": content,
	}
}

// TextBlock builds a block whose payload is a single rich-text run plus the
// type's default attributes.
func TextBlock(blockType, content string) ir.Block {
	payload := map[string]any{"rich_text": []any{Text(content)}}
	ir.FillDefaults(blockType, payload)
	return ir.Block{
		"type":     blockType,
		blockType: payload,
	}
}

// Paragraph builds a paragraph block.
func Paragraph(content string) ir.Block {
	return TextBlock("paragraph", content)
}

// Heading builds a heading_1..heading_3 block.
func Heading(level int, content string) ir.Block {
	return TextBlock(fmt.Sprintf("heading_%d", level), content)
}

// Bullet builds a bulleted list item.
func Bullet(content string) ir.Block {
	return TextBlock("bulleted_list_item", content)
}

// Code builds a code block.
func Code(language, content string) ir.Block {
	b := TextBlock("code", content)
	b.TypeData()["language"] = language
	return b
}

// ToDo builds a checklist item.
func ToDo(content string, checked bool) ir.Block {
	b := TextBlock("to_do", content)
	b.TypeData()["checked"] = checked
	return b
}

// Divider builds a divider block.
func Divider() ir.Block {
	return ir.Block{"type": "divider", "divider": map[string]any{}}
}

// WithID returns a shallow copy of b carrying id, as if fetched from the
// remote.
func WithID(b ir.Block, id string) ir.Block {
	out := make(ir.Block, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out["id"] = id
	return out
}

// Existing assigns ids e0, e1, ... to blocks, modelling a fetched page.
func Existing(blocks ...ir.Block) []ir.Block {
	out := make([]ir.Block, len(blocks))
	for i, b := range blocks {
		out[i] = WithID(b, fmt.Sprintf("e%d", i))
	}
	return out
}

// Paragraphs builds one paragraph per content string.
func Paragraphs(contents ...string) []ir.Block {
	out := make([]ir.Block, len(contents))
	for i, c := range contents {
		out[i] = Paragraph(c)
	}
	return out
}
