package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Block is one node of a remote document in its wire shape:
//
//	{"id": "...", "type": "paragraph", "paragraph": {"rich_text": [...]}, "has_children": false}
//
// Blocks fetched from the remote carry an "id"; blocks produced locally
// (converter output) do not. Accessors never panic: absent or mistyped keys
// read as zero values.
type Block map[string]any

// UnknownType is the type reported for blocks without a usable "type" key.
const UnknownType = "unknown"

// ID returns the block's stable identifier, or "" when absent.
func (b Block) ID() string {
	return stringOf(b["id"])
}

// Type returns the block's type tag, or "" when absent.
func (b Block) Type() string {
	return stringOf(b["type"])
}

// TypeData returns the type-keyed payload (b[b.Type()]).
// Returns nil when the block has no type or the payload is not an object.
func (b Block) TypeData() map[string]any {
	t := b.Type()
	if t == "" {
		return nil
	}
	return MapOf(b[t])
}

// RichText returns the rich-text runs of the type payload.
// Entries that are not objects are skipped.
func (b Block) RichText() []map[string]any {
	return MapsOf(b.TypeData()["rich_text"])
}

// Children returns the nested child blocks carried inline, either under a
// top-level "children" key or inside the type payload (the append wire
// form). Remote blocks normally report nesting via has_children instead.
func (b Block) Children() []Block {
	raw := ListOf(b["children"])
	if len(raw) == 0 {
		raw = ListOf(b.TypeData()["children"])
	}
	if len(raw) == 0 {
		return nil
	}
	children := make([]Block, 0, len(raw))
	for _, c := range raw {
		if m := MapOf(c); m != nil {
			children = append(children, Block(m))
		}
	}
	return children
}

// HasChildren reports the remote has_children flag.
func (b Block) HasChildren() bool {
	v, _ := b["has_children"].(bool)
	return v
}

// LastEdited returns the last_edited_time marker, or "" when absent.
func (b Block) LastEdited() string {
	return stringOf(b["last_edited_time"])
}

// PlainText concatenates the plain text of every rich-text run.
func (b Block) PlainText() string {
	var sb strings.Builder
	for _, run := range b.RichText() {
		sb.WriteString(RunText(run))
	}
	return sb.String()
}

// RunText returns the rendered text of one rich-text run.
// Prefers the pre-rendered plain_text; falls back to text.content.
func RunText(run map[string]any) string {
	if s, ok := run["plain_text"].(string); ok {
		return s
	}
	return stringOf(MapOf(run["text"])["content"])
}

// DecodeBlocks decodes a JSON document into blocks.
//
// Accepts either a bare array of blocks or a list response object of the
// form {"results": [...]}. Numbers are kept as json.Number so that content
// hashes see the exact wire representation.
func DecodeBlocks(data []byte) ([]Block, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode blocks: %w", err)
	}

	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		results, ok := v["results"].([]any)
		if !ok {
			return nil, fmt.Errorf("decode blocks: object has no results array")
		}
		items = results
	default:
		return nil, fmt.Errorf("decode blocks: expected array or object, got %T", raw)
	}

	blocks := make([]Block, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decode blocks: item %d is %T, not an object", i, item)
		}
		blocks = append(blocks, Block(m))
	}
	return blocks, nil
}

// MapOf returns v as a JSON object, or nil if it is not one.
func MapOf(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case Block:
		return m
	default:
		return nil
	}
}

// ListOf returns v as a JSON array, or nil if it is not one.
func ListOf(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []Block:
		out := make([]any, len(l))
		for i, b := range l {
			out[i] = b
		}
		return out
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	default:
		return nil
	}
}

// MapsOf returns the object elements of a JSON array, skipping the rest.
func MapsOf(v any) []map[string]any {
	raw := ListOf(v)
	if len(raw) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, e := range raw {
		if m := MapOf(e); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
