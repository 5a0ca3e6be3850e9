package source

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is one fenced code block from markdown input.
type CodeBlock struct {
	// Hint is the paragraph immediately preceding the block.
	Hint    string
	Lang    string
	Content string
}

// ExtractCodeBlocks walks the markdown AST and returns every fenced code
// block with its preceding paragraph.
func ExtractCodeBlocks(source []byte) ([]CodeBlock, error) {
	var blocks []CodeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var block CodeBlock
		block.Lang = string(fenced.Language(source))

		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}
		block.Content = content.String()

		if p, ok := fenced.PreviousSibling().(*ast.Paragraph); ok {
			block.Hint = strings.TrimSpace(string(p.Text(source)))
		}
		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}
	return blocks, nil
}

// diffHeaders are the line prefixes that open a segment in any dialect.
var diffHeaders = []string{"diff --git ", "Index: ", "--- "}

// LooksLikeDiff reports whether the first non-blank line of s opens a patch.
func LooksLikeDiff(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		for _, h := range diffHeaders {
			if strings.HasPrefix(line, h) {
				return true
			}
		}
		return false
	}
	return false
}

// Unwrap returns raw unchanged when it already reads as a patch. Otherwise it
// treats raw as markdown and joins every fenced block tagged diff or patch,
// or whose body reads as a patch. When nothing qualifies raw is returned as
// is so the parser reports the format error.
func Unwrap(raw []byte) []byte {
	if LooksLikeDiff(string(raw)) {
		return raw
	}
	blocks, err := ExtractCodeBlocks(raw)
	if err != nil {
		return raw
	}
	var out bytes.Buffer
	for _, b := range blocks {
		lang := strings.ToLower(b.Lang)
		if lang != "diff" && lang != "patch" && !LooksLikeDiff(b.Content) {
			continue
		}
		out.WriteString(b.Content)
		if !strings.HasSuffix(b.Content, "\n") {
			out.WriteByte('\n')
		}
	}
	if out.Len() == 0 {
		return raw
	}
	return out.Bytes()
}
