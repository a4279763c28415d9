package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/alnah/go-mdpress/internal/visual"
)

// Sentinel errors for the markdown stage.
var (
	ErrHTMLConversion    = errors.New("HTML conversion failed")
	ErrNoDiagramRenderer = errors.New("no diagram renderer configured")
)

// KindDiagramBlock is the node kind substituted for diagram fences.
var KindDiagramBlock = ast.NewNodeKind("DiagramBlock")

// KindBlankParagraph is the node kind substituted for blank-paragraph
// placeholders.
var KindBlankParagraph = ast.NewNodeKind("BlankParagraph")

// DiagramBlock replaces a fenced diagram in the goldmark tree. Its HTML is a
// placeholder that Preview.HTML fills with the slot's current content.
type DiagramBlock struct {
	ast.BaseBlock
	Index int
	Slot  *visual.Diagram
}

// Kind implements ast.Node.
func (n *DiagramBlock) Kind() ast.NodeKind { return KindDiagramBlock }

// Dump implements ast.Node.
func (n *DiagramBlock) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Index":  strconv.Itoa(n.Index),
		"Source": n.Slot.Source(),
	}, nil)
}

// BlankParagraph is a paragraph that must stay visible although it is empty.
type BlankParagraph struct {
	ast.BaseBlock
}

// Kind implements ast.Node.
func (n *BlankParagraph) Kind() ast.NodeKind { return KindBlankParagraph }

// Dump implements ast.Node.
func (n *BlankParagraph) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, nil, nil)
}

// diagramPlaceholder marks where slot index's content is spliced.
func diagramPlaceholder(index int) string {
	return "<!--mdpress:diagram:" + strconv.Itoa(index) + "-->"
}

// previewRenderer overrides goldmark's renderers for the preview node kinds.
type previewRenderer struct{}

// RegisterFuncs implements renderer.NodeRenderer.
func (r *previewRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindParagraph, r.renderParagraph)
	reg.Register(KindBlankParagraph, r.renderBlankParagraph)
	reg.Register(KindDiagramBlock, r.renderDiagram)
}

func (r *previewRenderer) renderParagraph(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(`<p class="preview-paragraph">`)
	} else {
		_, _ = w.WriteString("</p>\n")
	}
	return ast.WalkContinue, nil
}

func (r *previewRenderer) renderBlankParagraph(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString(`<p class="preview-paragraph empty-paragraph">&nbsp;</p>` + "\n")
	}
	return ast.WalkSkipChildren, nil
}

func (r *previewRenderer) renderDiagram(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkSkipChildren, nil
	}
	d := n.(*DiagramBlock)
	_, _ = fmt.Fprintf(w, `<div class="mermaid-diagram" data-diagram="%d">`, d.Index)
	_, _ = w.WriteString(diagramPlaceholder(d.Index))
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

// GoldmarkConverter parses and renders markdown with goldmark (pure Go).
type GoldmarkConverter struct {
	md goldmark.Markdown
}

// NewGoldmarkConverter creates a GoldmarkConverter with syntax highlighting
// for regular fenced code and the preview node renderers.
func NewGoldmarkConverter() *GoldmarkConverter {
	md := goldmark.New(
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true), // CSS classes, styled by the preview stylesheet
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithXHTML(),
			renderer.WithNodeRenderers(util.Prioritized(&previewRenderer{}, 100)),
		),
	)
	return &GoldmarkConverter{md: md}
}

// Parse returns the goldmark tree of src.
func (c *GoldmarkConverter) Parse(src []byte) ast.Node {
	return c.md.Parser().Parse(text.NewReader(src))
}

// Render writes the HTML fragment of doc.
// Supports context cancellation via goroutine + select pattern since
// Goldmark doesn't natively support context.
func (c *GoldmarkConverter) Render(ctx context.Context, src []byte, doc ast.Node) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	type result struct {
		html string
		err  error
	}

	done := make(chan result, 1)

	go func() {
		var buf bytes.Buffer
		if err := c.md.Renderer().Render(&buf, src, doc); err != nil {
			done <- result{err: fmt.Errorf("%w: %v", ErrHTMLConversion, err)}
			return
		}
		done <- result{html: buf.String()}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.html, r.err
	}
}
