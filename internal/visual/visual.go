// Package visual defines the owned visual tree produced by the preview
// composer and consumed by the pagination engine.
//
// The tree is a closed set of block kinds: text runs, diagram slots and
// containers. Containers carry no geometry of their own; pagination walks
// them depth-first in document order.
package visual

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrEmptyArtifact is recorded when a renderer reports success without markup.
var ErrEmptyArtifact = errors.New("diagram renderer returned empty markup")

// Block is one node of the visual tree.
type Block interface {
	block()
}

// TextStyle selects how a text run is measured and drawn.
type TextStyle struct {
	Level  int  // 0 body, 1-6 heading
	Code   bool // monospaced
	Blank  bool // visually empty paragraph
	Indent int  // nesting depth of lists and quotes
}

// Text is a run of plain text. Hard line breaks are kept as "\n".
type Text struct {
	Text  string
	Style TextStyle
}

// Role names the structural meaning of a container.
type Role string

// Container roles.
const (
	RoleDocument Role = "document"
	RoleList     Role = "list"
	RoleListItem Role = "list-item"
	RoleQuote    Role = "quote"
)

// Container groups child blocks.
type Container struct {
	Role     Role
	Children []Block
}

// Append adds children in document order.
func (c *Container) Append(blocks ...Block) {
	c.Children = append(c.Children, blocks...)
}

// VectorImage is the vector markup produced for one diagram render.
type VectorImage struct {
	ID     string
	Markup string
}

// DiagramState is the lifecycle state of a diagram slot.
type DiagramState int

// Diagram slot states.
const (
	DiagramPending DiagramState = iota
	DiagramRendered
	DiagramFailed
)

func (s DiagramState) String() string {
	switch s {
	case DiagramRendered:
		return "rendered"
	case DiagramFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Diagram is the slot hosting one diagram block. Every render attempt gets a
// fresh identity and only the result carrying the current identity of a
// mounted slot is applied.
type Diagram struct {
	mu       sync.Mutex
	source   string
	renderID string
	state    DiagramState
	artifact VectorImage
	err      error
	mounted  bool
	Indent   int
}

// NewDiagram returns a mounted slot for source. No render is started.
func NewDiagram(source string) *Diagram {
	return &Diagram{source: source, mounted: true}
}

// Begin starts a new render attempt for source and returns its render id.
// Results of earlier attempts become stale.
func (d *Diagram) Begin(source string) string {
	id := "diagram-" + uuid.NewString()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.source = source
	d.renderID = id
	d.state = DiagramPending
	d.artifact = VectorImage{}
	d.err = nil
	return id
}

// Resolve applies the outcome of the render attempt renderID. It returns false
// and leaves the slot untouched when the slot is unmounted or renderID is no
// longer current.
func (d *Diagram) Resolve(renderID, markup string, renderErr error) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.mounted || renderID == "" || renderID != d.renderID {
		return false
	}
	if renderErr == nil && markup == "" {
		renderErr = ErrEmptyArtifact
	}
	if renderErr != nil {
		d.state = DiagramFailed
		d.err = renderErr
		return true
	}
	d.state = DiagramRendered
	d.artifact = VectorImage{ID: renderID, Markup: markup}
	return true
}

// Unmount detaches the slot from its host. Pending results are dropped.
func (d *Diagram) Unmount() {
	d.mu.Lock()
	d.mounted = false
	d.mu.Unlock()
}

// Mounted reports whether the slot still accepts results.
func (d *Diagram) Mounted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mounted
}

// Source returns the diagram source of the current attempt.
func (d *Diagram) Source() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.source
}

// RenderID returns the identity of the current attempt.
func (d *Diagram) RenderID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renderID
}

// State returns the slot state.
func (d *Diagram) State() DiagramState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Artifact returns the rendered vector image, if any.
func (d *Diagram) Artifact() (VectorImage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.artifact, d.state == DiagramRendered
}

// Failed reports whether the current attempt degraded to the source fallback.
func (d *Diagram) Failed() bool {
	return d.State() == DiagramFailed
}

// Err returns the failure of the current attempt.
func (d *Diagram) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (*Text) block()      {}
func (*Container) block() {}
func (*Diagram) block()   {}

// Walk visits b and its descendants depth-first in document order.
// Returning an error from fn stops the walk.
func Walk(b Block, fn func(Block) error) error {
	if b == nil {
		return nil
	}
	if err := fn(b); err != nil {
		return err
	}
	if c, ok := b.(*Container); ok {
		for _, child := range c.Children {
			if err := Walk(child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// Diagrams returns every diagram slot under b in document order.
func Diagrams(b Block) []*Diagram {
	var out []*Diagram
	_ = Walk(b, func(b Block) error {
		if d, ok := b.(*Diagram); ok {
			out = append(out, d)
		}
		return nil
	})
	return out
}
