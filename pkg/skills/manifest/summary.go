package manifest

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const maxSummaryLength = 200

// Summary returns the first paragraph of the instructions as plain text,
// falling back to the description when the body has no paragraph.
func (m *Manifest) Summary() string {
	source := []byte(m.Instructions)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var summary string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		p, ok := n.(*ast.Paragraph)
		if !ok {
			return ast.WalkContinue, nil
		}
		lines := p.Lines()
		parts := make([]string, 0, lines.Len())
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			parts = append(parts, strings.TrimSpace(string(seg.Value(source))))
		}
		summary = strings.Join(parts, " ")
		return ast.WalkStop, nil
	})

	if summary == "" {
		summary = m.Description
	}
	if r := []rune(summary); len(r) > maxSummaryLength {
		summary = string(r[:maxSummaryLength-3]) + "..."
	}
	return summary
}
