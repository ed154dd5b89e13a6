package parse

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type CodeBlock struct {
	Code     string
	Language string
}

// ExtractCodeBlocks returns the fenced code blocks of a markdown document in order.
// An unterminated fence runs to the end of the document.
func ExtractCodeBlocks(markdownText string) []CodeBlock {
	var blocks []CodeBlock
	source := []byte(markdownText)

	document := goldmark.DefaultParser().Parse(text.NewReader(source))

	_ = ast.Walk(document, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		v, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		var buf bytes.Buffer
		lines := v.Lines()
		for i := 0; i < lines.Len(); i++ {
			segment := lines.At(i)
			buf.Write(segment.Value(source))
		}
		blocks = append(blocks, CodeBlock{
			Code:     buf.String(),
			Language: strings.ToLower(string(v.Language(source))),
		})
		return ast.WalkSkipChildren, nil
	})

	return blocks
}
