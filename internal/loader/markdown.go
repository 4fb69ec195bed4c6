package loader

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

var markdownParser = goldmark.New()

// flattenMarkdown strips markup and returns the plain text and the first heading.
// Block boundaries become newlines so statute articles stay on separate lines.
func flattenMarkdown(source []byte) (string, string) {
	doc := markdownParser.Parser().Parse(text.NewReader(source))

	var title string
	if tree, err := toc.Inspect(doc, source, toc.MinDepth(1), toc.MaxDepth(6), toc.Compact(true)); err == nil && len(tree.Items) > 0 {
		title = strings.TrimSpace(string(tree.Items[0].Title))
	}

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument && !endsWithNewline(&buf) {
				buf.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.URL(source))
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				segment := lines.At(i)
				buf.Write(segment.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String()), title
}

func endsWithNewline(buf *bytes.Buffer) bool {
	b := buf.Bytes()
	return len(b) == 0 || b[len(b)-1] == '\n'
}
