package render

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockListItem
	blockRule
	blockCode
)

// span is a run of inline text sharing one font style.
type span struct {
	Text   string
	Bold   bool
	Italic bool
}

// block is the layout unit handed to the PDF writer.
type block struct {
	Kind   blockKind
	Level  int    // heading level, or nesting depth for list items
	Marker string // "• " or "3. " for list items
	Spans  []span
}

func (b block) plain() string {
	var sb strings.Builder
	for _, s := range b.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

var mdParser = goldmark.New().Parser()

const maxHeadingLevel = 4

// parseBlocks flattens a Markdown document into a sequence of blocks.
func parseBlocks(markdown string) []block {
	src := []byte(markdown)
	doc := mdParser.Parse(text.NewReader(src))
	var out []block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		out = appendBlock(out, n, src, 0)
	}
	return out
}

func appendBlock(out []block, n ast.Node, src []byte, depth int) []block {
	switch v := n.(type) {
	case *ast.Heading:
		if v.Level > maxHeadingLevel {
			// deeper headings print as the plain source line
			spans := append([]span{{Text: strings.Repeat("#", v.Level) + " "}}, inlineSpans(v, src)...)
			return appendNonEmpty(out, block{Kind: blockParagraph, Spans: spans})
		}
		return appendNonEmpty(out, block{Kind: blockHeading, Level: v.Level, Spans: inlineSpans(v, src)})
	case *ast.Paragraph, *ast.TextBlock:
		return appendNonEmpty(out, block{Kind: blockParagraph, Spans: inlineSpans(v, src)})
	case *ast.ThematicBreak:
		return append(out, block{Kind: blockRule})
	case *ast.List:
		return appendList(out, v, src, depth)
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		code := strings.TrimRight(linesText(n, src), "\n")
		if code == "" {
			return out
		}
		return append(out, block{Kind: blockCode, Spans: []span{{Text: code}}})
	case *ast.Blockquote:
		for c := v.FirstChild(); c != nil; c = c.NextSibling() {
			out = appendBlock(out, c, src, depth)
		}
		return out
	case *ast.HTMLBlock:
		return appendNonEmpty(out, block{Kind: blockParagraph, Spans: []span{{Text: strings.TrimSpace(linesText(n, src))}}})
	}
	return out
}

func appendList(out []block, l *ast.List, src []byte, depth int) []block {
	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		marker := "• "
		if l.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}
		first := true
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				b := block{Kind: blockListItem, Level: depth, Spans: inlineSpans(c, src)}
				if first {
					b.Marker = marker
					first = false
				}
				out = append(out, b)
			case *ast.List:
				out = appendList(out, c.(*ast.List), src, depth+1)
			default:
				out = appendBlock(out, c, src, depth+1)
			}
		}
		if first {
			out = append(out, block{Kind: blockListItem, Level: depth, Marker: marker})
		}
	}
	return out
}

func appendNonEmpty(out []block, b block) []block {
	if strings.TrimSpace(b.plain()) == "" {
		return out
	}
	return append(out, b)
}

func linesText(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

// inlineSpans collects the inline children of n, tracking **bold** and *italic*.
func inlineSpans(n ast.Node, src []byte) []span {
	var spans []span
	add := func(s string, bold, italic bool) {
		if s == "" {
			return
		}
		if k := len(spans) - 1; k >= 0 && spans[k].Bold == bold && spans[k].Italic == italic {
			spans[k].Text += s
			return
		}
		spans = append(spans, span{Text: s, Bold: bold, Italic: italic})
	}

	var walk func(n ast.Node, bold, italic bool)
	walk = func(n ast.Node, bold, italic bool) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch v := c.(type) {
			case *ast.Text:
				add(string(v.Segment.Value(src)), bold, italic)
				if v.HardLineBreak() {
					add("\n", bold, italic)
				} else if v.SoftLineBreak() {
					add(" ", bold, italic)
				}
			case *ast.String:
				add(string(v.Value), bold, italic)
			case *ast.Emphasis:
				if v.Level >= 2 {
					walk(v, true, italic)
				} else {
					walk(v, bold, true)
				}
			case *ast.AutoLink:
				add(string(v.Label(src)), bold, italic)
			case *ast.RawHTML:
				// dropped
			default:
				// code spans, links and image alt text keep their inner text
				walk(c, bold, italic)
			}
		}
	}
	walk(n, false, false)
	return spans
}
