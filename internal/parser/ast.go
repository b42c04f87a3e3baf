// Package parser finds fenced code blocks in markdown so their bodies can be
// selected and rewritten in place.
package parser

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/sokinpui/llmr/internal/editor"
)

// CodeBlock is a fenced code block found in markdown content.
type CodeBlock struct {
	// Hint is the content of the paragraph immediately preceding the code block.
	Hint string
	// Lang is the info string's language identifier (e.g., "go", "python").
	Lang string
	// Body spans the block's lines in the source, without the fences and
	// without the final line break.
	Body editor.Range
	// Contiguous is false when the body lines are interleaved with
	// container markup such as blockquote markers or list indentation.
	Contiguous bool
}

// ExtractCodeBlocks walks the markdown AST and returns every fenced code
// block that has at least one line, in document order.
func ExtractCodeBlocks(source []byte) ([]CodeBlock, error) {
	var blocks []CodeBlock
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		fencedCodeBlock, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		lines := fencedCodeBlock.Lines()
		if lines.Len() == 0 {
			return ast.WalkSkipChildren, nil
		}

		block := CodeBlock{Contiguous: true}
		if fencedCodeBlock.Info != nil {
			block.Lang = string(fencedCodeBlock.Language(source))
		}

		first, last := lines.At(0), lines.At(lines.Len()-1)
		for i := 1; i < lines.Len(); i++ {
			if lines.At(i).Start != lines.At(i-1).Stop {
				block.Contiguous = false
				break
			}
		}
		block.Body = editor.Range{From: first.Start, To: trimLineBreak(source, first.Start, last.Stop)}

		if prev := fencedCodeBlock.PreviousSibling(); prev != nil {
			if p, ok := prev.(*ast.Paragraph); ok {
				block.Hint = strings.TrimSpace(string(p.Lines().Value(source)))
			}
		}

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil, err
	}

	return blocks, nil
}

// CodeBlockSelection returns one range per rewritable code block body.
func CodeBlockSelection(source []byte) (editor.Selection, error) {
	blocks, err := ExtractCodeBlocks(source)
	if err != nil {
		return nil, err
	}
	return Selection(blocks), nil
}

// Rewritable reports whether b's body can be replaced as one range.
// Blocks whose body is only a line break are skipped along with
// non-contiguous ones.
func (b CodeBlock) Rewritable() bool {
	return b.Contiguous && !b.Body.IsEmpty()
}

// Selection returns the bodies of the rewritable blocks, in order.
func Selection(blocks []CodeBlock) editor.Selection {
	sel := make(editor.Selection, 0, len(blocks))
	for _, b := range blocks {
		if b.Rewritable() {
			sel = append(sel, b.Body)
		}
	}
	return sel
}

func trimLineBreak(source []byte, from, to int) int {
	if to > from && source[to-1] == '\n' {
		to--
	}
	if to > from && source[to-1] == '\r' {
		to--
	}
	return to
}
