package markdown

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/docsync/internal/ir"
)

// Policies for blocks that have no Markdown form.
const (
	UnsupportedComment = "comment" // HTML comment marker plus any text
	UnsupportedSkip    = "skip"
	UnsupportedError   = "error"
)

// UnsupportedBlockError reports a block the renderer cannot express under
// the UnsupportedError policy.
type UnsupportedBlockError struct {
	BlockID   string
	BlockType string
}

func (e *UnsupportedBlockError) Error() string {
	if e.BlockID == "" {
		return fmt.Sprintf("cannot render block type %q", e.BlockType)
	}
	return fmt.Sprintf("cannot render block %s of type %q", e.BlockID, e.BlockType)
}

// Renderer turns blocks back into Markdown. A Renderer is safe for
// concurrent use.
type Renderer struct {
	unsupported string
}

// RenderOption configures a Renderer.
type RenderOption func(*Renderer)

// WithUnsupported sets the policy for blocks without a Markdown form.
// Default: UnsupportedComment.
func WithUnsupported(policy string) RenderOption {
	return func(r *Renderer) { r.unsupported = policy }
}

// NewRenderer creates a Renderer.
func NewRenderer(opts ...RenderOption) *Renderer {
	r := &Renderer{unsupported: UnsupportedComment}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render renders blocks with a default Renderer.
func Render(blocks []ir.Block) (string, error) {
	return NewRenderer().Render(blocks)
}

// Render renders blocks in order. Nested children are read from the
// block's "children" (top level or inside the payload), as attached by
// FetchTree or produced by Convert. Under UnsupportedError the first
// unsupported block fails the whole render.
func (r *Renderer) Render(blocks []ir.Block) (string, error) {
	s := &renderState{policy: r.unsupported}
	out := s.list(blocks, 0)
	if s.err != nil {
		return "", s.err
	}
	return out, nil
}

// renderState carries the first error of one Render call.
type renderState struct {
	policy string
	err    error
}

// list renders siblings. Numbered items are counted per run of
// consecutive numbered siblings.
func (s *renderState) list(blocks []ir.Block, depth int) string {
	var sb strings.Builder
	n := 0
	for _, b := range blocks {
		if b.Type() == "numbered_list_item" {
			n++
			sb.WriteString(s.item(b, depth, strconv.Itoa(n)+". "))
			continue
		}
		n = 0
		sb.WriteString(s.block(b, depth))
	}
	return sb.String()
}

func (s *renderState) block(b ir.Block, depth int) string {
	data := b.TypeData()
	text := renderRichText(ir.MapsOf(data["rich_text"]))

	switch blockType := b.Type(); blockType {
	case "heading_1", "heading_2", "heading_3":
		level := int(blockType[len(blockType)-1] - '0')
		return strings.Repeat("#", level) + " " + text + "\n\n"

	case "paragraph":
		return indent(depth) + text + "\n\n" + s.list(b.Children(), depth+1)

	case "quote":
		prefix := "> "
		if depth > 0 {
			prefix = strings.Repeat("> ", depth+1)
		}
		return s.quoted(text, b, depth, prefix)

	case "callout":
		if icon := calloutIcon(ir.MapOf(data["icon"])); icon != "" {
			text = icon + " " + text
		}
		return s.quoted(text, b, depth, "> ")

	case "bulleted_list_item", "toggle":
		return s.item(b, depth, "- ")

	case "numbered_list_item":
		return s.item(b, depth, "1. ")

	case "to_do":
		box := "[ ] "
		if checked, _ := data["checked"].(bool); checked {
			box = "[x] "
		}
		return s.item(b, depth, "- "+box)

	case "code":
		lang := stringOf(data["language"])
		if lang == PlainText {
			lang = ""
		}
		var code strings.Builder
		for _, run := range ir.MapsOf(data["rich_text"]) {
			code.WriteString(ir.RunText(run))
		}
		return "```" + lang + "\n" + code.String() + "\n```\n\n"

	case "divider":
		return "---\n\n"

	case "equation":
		return "$$\n" + stringOf(data["expression"]) + "\n$$\n\n"

	case "table":
		return renderTable(b)

	case "image":
		caption := renderRichText(ir.MapsOf(data["caption"]))
		return "![" + caption + "](" + escapeURL(fileURL(data)) + ")\n\n"

	case "child_page", "child_database":
		label := "Page"
		if blockType == "child_database" {
			label = "Database"
		}
		title := stringOf(data["title"])
		if title == "" {
			title = "Untitled"
		}
		url := "https://notion.so/" + strings.ReplaceAll(b.ID(), "-", "")
		return "[" + label + ": " + escapeInline(title) + "](" + url + ")\n\n"

	case "embed":
		return "[Embed](" + escapeURL(stringOf(data["url"])) + ")\n\n"

	case "bookmark", "link_preview":
		url := stringOf(data["url"])
		out := "[" + url + "](" + escapeURL(url) + ")"
		if caption := renderRichText(ir.MapsOf(data["caption"])); caption != "" {
			out += "\n> " + caption
		}
		return out + "\n\n"

	case "file":
		url := fileURL(data)
		name := stringOf(data["name"])
		if caption := renderRichText(ir.MapsOf(data["caption"])); caption != "" {
			name = caption
		}
		if name == "" {
			name = fileName(url)
		}
		return "[" + name + "](" + escapeURL(url) + ")\n\n"

	case "video", "audio", "pdf":
		return "[" + mediaLabels[blockType] + "](" + escapeURL(fileURL(data)) + ")\n\n"

	case "column_list", "column", "synced_block", "template":
		return s.list(b.Children(), depth)

	case "breadcrumb", "table_of_contents":
		return ""

	default:
		return s.unsupportedBlock(b)
	}
}

var mediaLabels = map[string]string{"video": "Video", "audio": "Audio", "pdf": "PDF"}

// item renders a list-like block with marker, followed by its children one
// level deeper.
func (s *renderState) item(b ir.Block, depth int, marker string) string {
	text := renderRichText(b.RichText())
	return indent(depth) + marker + text + "\n" + s.list(b.Children(), depth+1)
}

// quoted prefixes every line of text, and of the rendered children, with
// prefix.
func (s *renderState) quoted(text string, b ir.Block, depth int, prefix string) string {
	var sb strings.Builder
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(prefix + line)
	}

	children := b.Children()
	if len(children) == 0 {
		sb.WriteString("\n\n")
		return sb.String()
	}

	sb.WriteString("\n")
	nested := strings.TrimRight(s.list(children, depth+1), "\n")
	for _, line := range strings.Split(nested, "\n") {
		if strings.TrimSpace(line) == "" {
			sb.WriteString(strings.TrimRight(prefix, " ") + "\n")
			continue
		}
		sb.WriteString(prefix + line + "\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func (s *renderState) unsupportedBlock(b ir.Block) string {
	blockType := b.Type()
	if blockType == "" {
		blockType = ir.UnknownType
	}
	switch s.policy {
	case UnsupportedSkip:
		return ""
	case UnsupportedError:
		if s.err == nil {
			s.err = &UnsupportedBlockError{BlockID: b.ID(), BlockType: blockType}
		}
		return ""
	}
	if text := b.PlainText(); text != "" {
		return "<!-- unsupported block: " + blockType + " -->\n" + text + "\n\n"
	}
	return "<!-- unsupported block: " + blockType + " -->\n\n"
}

// renderTable renders table_row children as a GFM table. The first row is
// always followed by the separator, since GFM needs a header row.
func renderTable(b ir.Block) string {
	width := intOf(b.TypeData()["table_width"])

	var lines []string
	for _, row := range b.Children() {
		if row.Type() != "table_row" {
			continue
		}
		var cells []string
		for _, cell := range ir.ListOf(row.TypeData()["cells"]) {
			cells = append(cells, renderRichText(ir.MapsOf(cell)))
		}
		for len(cells) < width {
			cells = append(cells, "")
		}
		lines = append(lines, "| "+strings.Join(cells, " | ")+" |")
		if len(lines) == 1 {
			lines = append(lines, "|"+strings.Repeat("---|", width))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n\n"
}

// renderRichText renders runs with annotations applied innermost first:
// code, bold, italic, strikethrough, underline, then the link.
func renderRichText(runs []map[string]any) string {
	var sb strings.Builder
	for _, run := range runs {
		ann := ir.MapOf(run["annotations"])
		href := runHref(run)

		if stringOf(run["type"]) == "equation" {
			text := "$" + stringOf(ir.MapOf(run["equation"])["expression"]) + "$"
			if href != "" {
				text = "[" + text + "](" + escapeURL(href) + ")"
			}
			sb.WriteString(text)
			continue
		}

		plain := ir.RunText(run)
		var text string
		if flag(ann, "code") {
			text = "`" + plain + "`"
		} else {
			text = escapeInline(plain)
			if flag(ann, "bold") {
				text = "**" + text + "**"
			}
			if flag(ann, "italic") {
				text = "_" + text + "_"
			}
			if flag(ann, "strikethrough") {
				text = "~~" + text + "~~"
			}
			if flag(ann, "underline") {
				text = "<u>" + text + "</u>"
			}
		}
		if href != "" {
			text = "[" + text + "](" + escapeURL(href) + ")"
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// runHref prefers the remote's rendered href and falls back to the link of
// a locally built run.
func runHref(run map[string]any) string {
	if href, ok := run["href"].(string); ok && href != "" {
		return href
	}
	return stringOf(ir.MapOf(ir.MapOf(run["text"])["link"])["url"])
}

var inlineSpecial = regexp.MustCompile("([\\\\`*_{}\\[\\]()#+\\-.!|])")

func escapeInline(s string) string {
	return inlineSpecial.ReplaceAllString(s, `\$1`)
}

var urlEscaper = strings.NewReplacer("(", "%28", ")", "%29")

func escapeURL(s string) string {
	return urlEscaper.Replace(s)
}

func calloutIcon(icon map[string]any) string {
	switch stringOf(icon["type"]) {
	case "emoji":
		return stringOf(icon["emoji"])
	case "external":
		return stringOf(ir.MapOf(icon["external"])["url"])
	}
	return ""
}

// fileURL reads the url of an external or hosted file payload.
func fileURL(data map[string]any) string {
	switch kind := stringOf(data["type"]); kind {
	case "external", "file":
		return stringOf(ir.MapOf(data[kind])["url"])
	}
	return ""
}

func fileName(url string) string {
	if url == "" {
		return "File"
	}
	name := url[strings.LastIndex(url, "/")+1:]
	if i := strings.Index(name, "?"); i >= 0 {
		name = name[:i]
	}
	return name
}

func indent(depth int) string {
	return strings.Repeat("  ", depth)
}

func flag(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
