package diff

import (
	"github.com/roach88/docsync/internal/ir"
)

// attrKeys lists the type-specific attributes that take part in the attrs
// hash. Types missing from the table contribute an empty object.
var attrKeys = map[string][]string{
	"code":               {"language"},
	"to_do":              {"checked"},
	"heading_1":          {"is_toggleable", "color"},
	"heading_2":          {"is_toggleable", "color"},
	"heading_3":          {"is_toggleable", "color"},
	"callout":            {"icon", "color"},
	"quote":              {"color"},
	"toggle":             {"color"},
	"bulleted_list_item": {"color"},
	"numbered_list_item": {"color"},
	"bookmark":           {"url"},
	"embed":              {"url"},
	"image":              {"type"},
	"equation":           {"expression"},
	"link_to_page":       {"type"},
	"table":              {"has_column_header", "has_row_header", "table_width"},
	"column_list":        {},
	"divider":            {},
}

// ComputeSignature computes the structural signature of a block.
//
// Equal content always yields an equal signature; the signature is the only
// equality test the planner uses. ComputeSignature is total: missing or
// mistyped fields read as empty values. depth is passed through unchanged
// (root children are depth 0).
func ComputeSignature(block ir.Block, depth int) ir.BlockSignature {
	blockType := block.Type()
	if blockType == "" {
		blockType = ir.UnknownType
	}

	return ir.BlockSignature{
		BlockType:      blockType,
		RichTextHash:   ir.ContentHash(ir.DomainRichText, richTextSummary(block)),
		StructuralHash: ir.ContentHash(ir.DomainStructure, childrenSummary(block)),
		AttrsHash:      ir.ContentHash(ir.DomainAttrs, typeAttrs(block, blockType)),
		NestingDepth:   depth,
	}
}

// Signatures computes depth-0 signatures for a block list.
func Signatures(blocks []ir.Block) []ir.BlockSignature {
	sigs := make([]ir.BlockSignature, len(blocks))
	for i, b := range blocks {
		sigs[i] = ComputeSignature(b, 0)
	}
	return sigs
}

// richTextSummary reduces each rich-text run to its rendered text plus any
// non-default annotations and link target.
func richTextSummary(block ir.Block) []any {
	runs := block.RichText()
	summary := make([]any, 0, len(runs))
	for _, run := range runs {
		item := map[string]any{"text": ir.RunText(run)}
		if ann := nonDefaultAnnotations(ir.MapOf(run["annotations"])); len(ann) > 0 {
			item["annotations"] = ann
		}
		if link := runLink(run); link != "" {
			item["link"] = link
		}
		summary = append(summary, item)
	}
	return summary
}

// nonDefaultAnnotations drops false flags and the "default" color so that a
// fully populated remote annotation object equals a sparse local one.
func nonDefaultAnnotations(ann map[string]any) map[string]any {
	out := make(map[string]any, len(ann))
	for k, v := range ann {
		switch val := v.(type) {
		case bool:
			if val {
				out[k] = true
			}
		case string:
			if val != "" && val != "default" {
				out[k] = val
			}
		case nil:
		default:
			out[k] = val
		}
	}
	return out
}

func runLink(run map[string]any) string {
	if url, ok := ir.MapOf(ir.MapOf(run["text"])["link"])["url"].(string); ok && url != "" {
		return url
	}
	href, _ := run["href"].(string)
	return href
}

func childrenSummary(block ir.Block) map[string]any {
	children := block.Children()
	if len(children) == 0 {
		return map[string]any{
			"child_count":  0,
			"has_children": block.HasChildren(),
		}
	}

	types := make([]any, len(children))
	for i, c := range children {
		t := c.Type()
		if t == "" {
			t = ir.UnknownType
		}
		types[i] = t
	}
	return map[string]any{
		"child_count": len(children),
		"child_types": types,
	}
}

func typeAttrs(block ir.Block, blockType string) map[string]any {
	data := block.TypeData()
	attrs := make(map[string]any)
	for _, key := range attrKeys[blockType] {
		if v, ok := data[key]; ok {
			attrs[key] = v
		}
	}

	switch blockType {
	case "equation":
		expr, _ := data["expression"].(string)
		attrs["expression"] = expr
	case "image":
		imgType, _ := data["type"].(string)
		attrs["image_type"] = imgType
		switch imgType {
		case "external", "file":
			url, _ := ir.MapOf(data[imgType])["url"].(string)
			attrs["url"] = url
		}
	}
	return attrs
}
