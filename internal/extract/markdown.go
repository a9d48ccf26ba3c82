package extract

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Markdown returns the bodies of the CommonMark fenced code blocks in doc
// whose info string language equals tag, in document order.
//
// Unlike Blocks, the body excludes the newline that ends the opening fence
// line, indented fences are honoured, and an unterminated fence runs to the
// end of the document as CommonMark specifies.
func Markdown(doc, tag string) []string {
	source := []byte(doc)
	root := goldmark.New().Parser().Parse(text.NewReader(source))

	out := []string{}
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if string(block.Language(source)) != tag {
			return ast.WalkSkipChildren, nil
		}

		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
		out = append(out, buf.String())
		return ast.WalkSkipChildren, nil
	})
	return out
}

// Mode selects an extraction strategy by name.
type Mode string

const (
	// ModeRegex is the non-greedy pattern scan (Blocks).
	ModeRegex Mode = "regex"
	// ModeMarkdown is CommonMark parsing (Markdown).
	ModeMarkdown Mode = "markdown"
)

// Extract dispatches to the strategy named by mode. Unknown modes use the
// pattern scan.
func Extract(doc string, f Fence, mode Mode) []string {
	if mode == ModeMarkdown {
		return Markdown(doc, f.Tag)
	}
	return All(doc, f)
}
