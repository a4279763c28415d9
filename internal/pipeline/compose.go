package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/util"

	"github.com/alnah/go-mdpress/internal/visual"
)

// bullet prefixes unordered list items in the visual tree.
const bullet = "•"

// Composer wires the preprocessor, goldmark and the diagram renderer into a
// Preview.
type Composer struct {
	preprocessor MarkdownPreprocessor
	converter    *GoldmarkConverter
	renderer     DiagramRenderer
	logger       *slog.Logger
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithPreprocessor replaces the default ParagraphPreprocessor.
func WithPreprocessor(p MarkdownPreprocessor) ComposerOption {
	return func(c *Composer) {
		c.preprocessor = p
	}
}

// WithLogger sets the logger used for diagram failures.
func WithLogger(logger *slog.Logger) ComposerOption {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewComposer returns a Composer rendering diagrams with renderer.
func NewComposer(renderer DiagramRenderer, opts ...ComposerOption) *Composer {
	c := &Composer{
		preprocessor: &ParagraphPreprocessor{},
		converter:    NewGoldmarkConverter(),
		renderer:     renderer,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose normalizes raw, parses it and starts one render task per diagram.
// It returns without waiting for diagrams; call Preview.Wait before reading
// diagram slots.
func (c *Composer) Compose(ctx context.Context, raw string) (*Preview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := []byte(c.preprocessor.PreprocessMarkdown(ctx, raw))
	doc := c.converter.Parse(src)

	renderCtx, cancel := context.WithCancel(ctx)
	b := &treeBuilder{
		src:   src,
		tasks: NewTasks(renderCtx, c.renderer, c.logger),
	}
	root := &visual.Container{Role: visual.RoleDocument}
	b.blocks(doc, root, 0)

	p := &Preview{
		Root:   root,
		slots:  b.slots,
		tasks:  b.tasks,
		cancel: cancel,
	}

	fragment, err := c.converter.Render(ctx, src, doc)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.fragment = fragment
	return p, nil
}

// Preview is a composed document: the owned visual tree plus the goldmark
// HTML with diagram placeholders.
type Preview struct {
	Root *visual.Container

	fragment string
	slots    []*visual.Diagram
	tasks    *Tasks
	cancel   context.CancelFunc
	release  sync.Once
}

// Wait blocks until every diagram render has settled or ctx ends.
func (p *Preview) Wait(ctx context.Context) error {
	return p.tasks.Wait(ctx)
}

// Diagrams returns the diagram slots in document order.
func (p *Preview) Diagrams() []*visual.Diagram {
	return p.slots
}

// HTML returns the HTML fragment with every diagram slot's current content.
func (p *Preview) HTML() string {
	if len(p.slots) == 0 {
		return p.fragment
	}
	pairs := make([]string, 0, 2*len(p.slots))
	for i, slot := range p.slots {
		pairs = append(pairs, diagramPlaceholder(i), DiagramHTML(slot))
	}
	return strings.NewReplacer(pairs...).Replace(p.fragment)
}

// Release unmounts every slot and cancels in-flight renders. Late results
// are dropped. Safe to call more than once.
func (p *Preview) Release() {
	p.release.Do(func() {
		for _, slot := range p.slots {
			slot.Unmount()
		}
		p.cancel()
	})
}

// treeBuilder walks the goldmark tree once, substituting preview nodes and
// building the visual tree.
type treeBuilder struct {
	src   []byte
	tasks *Tasks
	slots []*visual.Diagram
}

func (b *treeBuilder) blocks(parent ast.Node, into *visual.Container, indent int) {
	for n := parent.FirstChild(); n != nil; {
		next := n.NextSibling()

		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			source := linesText(node, b.src)
			if IsDiagramFence(string(node.Language(b.src))) {
				slot := visual.NewDiagram(source)
				slot.Indent = indent
				parent.ReplaceChild(parent, n, &DiagramBlock{Index: len(b.slots), Slot: slot})
				b.slots = append(b.slots, slot)
				b.tasks.Go(slot)
				into.Append(slot)
				break
			}
			into.Append(codeText(source, indent))
		case *ast.CodeBlock:
			into.Append(codeText(linesText(node, b.src), indent))
		case *ast.Paragraph:
			if isBlankPlaceholder(node, b.src) {
				parent.ReplaceChild(parent, n, &BlankParagraph{})
				into.Append(&visual.Text{Style: visual.TextStyle{Blank: true, Indent: indent}})
				break
			}
			b.text(node, into, visual.TextStyle{Indent: indent})
		case *ast.TextBlock:
			b.text(node, into, visual.TextStyle{Indent: indent})
		case *ast.Heading:
			b.text(node, into, visual.TextStyle{Level: node.Level, Indent: indent})
		case *ast.List:
			into.Append(b.list(node, indent))
		case *ast.Blockquote:
			quote := &visual.Container{Role: visual.RoleQuote}
			b.blocks(node, quote, indent+1)
			into.Append(quote)
		case *ast.ThematicBreak, *ast.HTMLBlock:
			// no text content
		default:
			b.blocks(node, into, indent)
		}

		n = next
	}
}

func (b *treeBuilder) text(n ast.Node, into *visual.Container, style visual.TextStyle) {
	var buf bytes.Buffer
	writeInline(&buf, n, b.src)
	s := trimLines(buf.String())
	if s == "" {
		return
	}
	into.Append(&visual.Text{Text: s, Style: style})
}

func (b *treeBuilder) list(node *ast.List, indent int) *visual.Container {
	list := &visual.Container{Role: visual.RoleList}
	number := node.Start
	if number == 0 {
		number = 1
	}
	for item := node.FirstChild(); item != nil; item = item.NextSibling() {
		li := &visual.Container{Role: visual.RoleListItem}
		b.blocks(item, li, indent+1)

		marker := bullet
		if node.IsOrdered() {
			marker = strconv.Itoa(number) + "."
			number++
		}
		prefixMarker(li, marker)
		list.Append(li)
	}
	return list
}

// prefixMarker puts the list marker in front of the item's first text run.
func prefixMarker(li *visual.Container, marker string) {
	if len(li.Children) > 0 {
		if t, ok := li.Children[0].(*visual.Text); ok && !t.Style.Blank && !t.Style.Code {
			t.Text = marker + " " + t.Text
			return
		}
	}
	indent := 0
	if len(li.Children) > 0 {
		if t, ok := li.Children[0].(*visual.Text); ok {
			indent = t.Style.Indent
		}
	}
	li.Children = append([]visual.Block{&visual.Text{Text: marker, Style: visual.TextStyle{Indent: indent}}}, li.Children...)
}

func codeText(source string, indent int) *visual.Text {
	return &visual.Text{
		Text:  strings.TrimRight(source, "\n"),
		Style: visual.TextStyle{Code: true, Indent: indent},
	}
}

// linesText returns the raw lines of a block node.
func linesText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}

func isBlankPlaceholder(p *ast.Paragraph, src []byte) bool {
	return strings.TrimSpace(linesText(p, src)) == BlankParagraphText
}

// writeInline appends the plain text of n's inline children to buf.
func writeInline(buf *bytes.Buffer, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			v := t.Segment.Value(src)
			if t.HardLineBreak() {
				v = bytes.TrimRight(v, " \\")
			}
			buf.Write(resolveText(v))
			switch {
			case t.HardLineBreak():
				buf.WriteByte('\n')
			case t.SoftLineBreak():
				buf.WriteByte(' ')
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.CodeSpan:
			for cc := t.FirstChild(); cc != nil; cc = cc.NextSibling() {
				if s, ok := cc.(*ast.Text); ok {
					buf.Write(s.Segment.Value(src))
				}
			}
		case *ast.AutoLink:
			buf.Write(t.Label(src))
		case *ast.RawHTML:
			// dropped, as in the safe HTML renderer
		default:
			writeInline(buf, c, src)
		}
	}
}

// resolveText applies markdown escapes and character references.
func resolveText(v []byte) []byte {
	v = util.UnescapePunctuations(v)
	v = util.ResolveNumericReferences(v)
	return util.ResolveEntityNames(v)
}

// trimLines drops trailing spaces on every line and surrounding blank space.
func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
