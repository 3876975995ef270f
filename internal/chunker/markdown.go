package chunker

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"repoquery/internal/walker"
)

// MarkdownExtractor splits Markdown files into heading-led sections. A
// section runs from its heading line to the line before the next
// heading at any level, wherever that heading sits in the block tree;
// content before the first heading is left to the registry's gap
// filler. Headings inside fenced code blocks are not section starts
// because the parser sees them as code, which is the reason for using a
// real Markdown parser here instead of scanning for "#" prefixes.
type MarkdownExtractor struct {
	md goldmark.Markdown
}

func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{md: goldmark.New()}
}

// headingInfo is one heading occurrence: its level, text, and the
// 1-indexed line it starts on.
type headingInfo struct {
	level int
	title string
	line  int
}

func (e *MarkdownExtractor) Extract(file walker.SourceFile) ([]Boundary, error) {
	src := []byte(file.Text)
	doc := e.md.Parser().Parse(gmtext.NewReader(src))

	lineStarts := buildLineStarts(file.Text)
	total := len(splitLines(file.Text))

	// Walk the whole tree: headings nested in blockquotes or list items
	// still start sections. Fenced code never produces Heading nodes.
	var headings []headingInfo
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		headings = append(headings, headingInfo{
			level: h.Level,
			title: headingText(h, src),
			line:  lineOfOffset(lineStarts, h.Lines().At(0).Start),
		})
		return ast.WalkSkipChildren, nil
	})

	if len(headings) == 0 {
		return nil, nil // whole file becomes one block
	}

	// A stack of enclosing headings gives each section its path, e.g.
	// "Installation/From source".
	var bounds []Boundary
	var stack []headingInfo
	for i, h := range headings {
		for len(stack) > 0 && stack[len(stack)-1].level >= h.level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, h)

		parts := make([]string, len(stack))
		for j, s := range stack {
			parts[j] = s.title
		}

		end := total
		if i+1 < len(headings) {
			end = headings[i+1].line - 1
		}
		bounds = append(bounds, Boundary{
			StartLine:     h.line,
			EndLine:       end,
			Kind:          KindHeading,
			QualifiedName: strings.Join(parts, "/"),
		})
	}

	return bounds, nil
}

// headingText flattens a heading's inline children to plain text.
func headingText(h *ast.Heading, src []byte) string {
	var sb strings.Builder
	for c := h.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			sb.Write(t.Segment.Value(src))
		}
	}
	return strings.TrimSpace(sb.String())
}

// buildLineStarts returns the byte offset of each line's first byte.
func buildLineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOfOffset converts a byte offset to a 1-indexed line number.
func lineOfOffset(lineStarts []int, offset int) int {
	lo, hi := 0, len(lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
