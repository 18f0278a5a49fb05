package markdown

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark/ast"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/util"
)

// MaxTextLength is the remote limit on characters per rich-text run.
const MaxTextLength = 2000

// style is the formatting shared by a run of text.
type style struct {
	bold, italic, strike, code bool
	link                       string
}

type segment struct {
	text string
	style
}

// inline renders the inline children of n as rich-text runs.
func (b *builder) inline(n ast.Node) ([]any, error) {
	segs, err := b.segments(n)
	if err != nil {
		return nil, err
	}
	return b.split(merge(segs)), nil
}

// segments flattens the inline subtree of n into styled text segments.
func (b *builder) segments(n ast.Node) ([]segment, error) {
	var (
		segs        []segment
		cur         style
		links       []string
		boldDepth   int
		italicDepth int
	)
	emit := func(s string) {
		if s != "" {
			segs = append(segs, segment{text: s, style: cur})
		}
	}

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if node == n {
			return ast.WalkContinue, nil
		}

		switch node := node.(type) {
		case *ast.Text:
			if !entering {
				return ast.WalkContinue, nil
			}
			value := node.Segment.Value(b.source)
			if !node.IsRaw() {
				value = util.ResolveEntityNames(util.ResolveNumericReferences(util.UnescapePunctuations(value)))
			}
			emit(string(value))
			switch {
			case node.HardLineBreak():
				emit("\n")
			case node.SoftLineBreak():
				emit(" ")
			}

		case *ast.String:
			if entering {
				emit(string(node.Value))
			}

		case *ast.CodeSpan:
			if !entering {
				return ast.WalkContinue, nil
			}
			prev := cur.code
			cur.code = true
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				switch t := c.(type) {
				case *ast.Text:
					emit(string(t.Segment.Value(b.source)))
				case *ast.String:
					emit(string(t.Value))
				}
			}
			cur.code = prev
			return ast.WalkSkipChildren, nil

		case *ast.Emphasis:
			delta := 1
			if !entering {
				delta = -1
			}
			if node.Level >= 2 {
				boldDepth += delta
			} else {
				italicDepth += delta
			}
			cur.bold = boldDepth > 0
			cur.italic = italicDepth > 0

		case *extast.Strikethrough:
			cur.strike = entering

		case *ast.Link:
			if entering {
				links = append(links, cur.link)
				cur.link = string(node.Destination)
			} else {
				cur.link, links = links[len(links)-1], links[:len(links)-1]
			}

		case *ast.AutoLink:
			if !entering {
				return ast.WalkContinue, nil
			}
			url := string(node.URL(b.source))
			if node.AutoLinkType == ast.AutoLinkEmail {
				url = "mailto:" + url
			}
			prev := cur.link
			cur.link = url
			emit(string(node.Label(b.source)))
			cur.link = prev
			return ast.WalkSkipChildren, nil

		case *ast.Image:
			// Inline images keep their alt text, linked to the source.
			if entering {
				links = append(links, cur.link)
				cur.link = string(node.Destination)
			} else {
				cur.link, links = links[len(links)-1], links[:len(links)-1]
			}

		case *ast.RawHTML:
			if !entering {
				return ast.WalkContinue, nil
			}
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				emit(string(seg.Value(b.source)))
			}
			return ast.WalkSkipChildren, nil

		case *extast.TaskCheckBox:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	}

	if err := ast.Walk(n, walker); err != nil {
		return nil, err
	}
	return segs, nil
}

// merge joins adjacent segments with identical style, drops empty ones and
// trims trailing line breaks.
func merge(segs []segment) []segment {
	out := make([]segment, 0, len(segs))
	for _, s := range segs {
		if s.text == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].style == s.style {
			out[n-1].text += s.text
			continue
		}
		out = append(out, s)
	}

	// A trailing line break carries no content.
	for n := len(out); n > 0; n = len(out) {
		out[n-1].text = strings.TrimRight(out[n-1].text, " \n")
		if out[n-1].text != "" {
			break
		}
		out = out[:n-1]
	}
	return out
}

// split renders segments as rich-text runs, breaking any run longer than
// the text limit into consecutive runs with the same style.
func (b *builder) split(segs []segment) []any {
	runs := make([]any, 0, len(segs))
	for _, s := range segs {
		for _, chunk := range chunkRunes(s.text, b.maxText) {
			runs = append(runs, richText(chunk, s.style))
		}
	}
	return runs
}

func chunkRunes(s string, limit int) []string {
	if utf8.RuneCountInString(s) <= limit {
		return []string{s}
	}
	var chunks []string
	for s != "" {
		n, i := 0, 0
		for i < len(s) && n < limit {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			n++
		}
		chunks = append(chunks, s[:i])
		s = s[i:]
	}
	return chunks
}

func richText(content string, st style) map[string]any {
	textObj := map[string]any{"content": content}
	if st.link != "" {
		textObj["link"] = map[string]any{"url": st.link}
	}
	run := map[string]any{
		"type": "text",
		"text": textObj,
	}

	ann := map[string]any{}
	if st.bold {
		ann["bold"] = true
	}
	if st.italic {
		ann["italic"] = true
	}
	if st.strike {
		ann["strikethrough"] = true
	}
	if st.code {
		ann["code"] = true
	}
	if len(ann) > 0 {
		run["annotations"] = ann
	}
	return run
}
