// Package layout paginates the visual tree into fixed-size pages.
//
// Paginate walks the tree depth-first in document order and keeps a single
// cursor. Every block is measured first; when it would cross the bottom
// margin a new page is started before the block is placed. The result is a
// list of pages of positioned primitives that a serializer draws as-is.
package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/alnah/go-mdpress/internal/visual"
)

// Layout constants, in millimetres unless noted.
const (
	DefaultScale = 2.0  // supersampling factor for diagram rasterization
	TextGap      = 5.0  // space after a text block
	DiagramGap   = 10.0 // space after a diagram image
	IndentStep   = 6.0  // horizontal offset per nesting level
)

// epsilon absorbs float noise when comparing against the bottom edge.
const epsilon = 1e-6

// Sentinel errors for pagination.
var (
	ErrInvalidGeometry = errors.New("invalid page geometry")
	ErrNoDocumentRoot  = errors.New("no document root")
)

// Config is the page geometry of one export.
type Config struct {
	PageWidth  float64
	PageHeight float64
	Margin     float64
	FontName   string
	Scale      float64 // rasterization scale, DefaultScale when zero
}

// Validate rejects geometry that leaves no content area.
func (c Config) Validate() error {
	if c.PageWidth <= 0 || c.PageHeight <= 0 {
		return fmt.Errorf("%w: page size %gx%g must be positive", ErrInvalidGeometry, c.PageWidth, c.PageHeight)
	}
	if c.Margin < 0 {
		return fmt.Errorf("%w: margin %g must not be negative", ErrInvalidGeometry, c.Margin)
	}
	if c.ContentWidth() <= 0 || c.UsableHeight() <= 0 {
		return fmt.Errorf("%w: margin %g leaves no content area", ErrInvalidGeometry, c.Margin)
	}
	if c.Scale < 0 {
		return fmt.Errorf("%w: scale %g must not be negative", ErrInvalidGeometry, c.Scale)
	}
	return nil
}

// ContentWidth is the width between the side margins.
func (c Config) ContentWidth() float64 { return c.PageWidth - 2*c.Margin }

// UsableHeight is the height between the top and bottom margins.
func (c Config) UsableHeight() float64 { return c.PageHeight - 2*c.Margin }

// Bottom is the lowest y a placed item may reach.
func (c Config) Bottom() float64 { return c.PageHeight - c.Margin }

func (c Config) scale() float64 {
	if c.Scale == 0 {
		return DefaultScale
	}
	return c.Scale
}

// Measurer wraps and measures text with the export font table.
// Lines returned by WrapText are in the measurer's own encoding and are drawn
// back by the same engine unchanged.
type Measurer interface {
	WrapText(text string, style visual.TextStyle, width float64) []string
	LineHeight(style visual.TextStyle) float64
}

// Bitmap is a rasterized diagram.
type Bitmap struct {
	PNG    []byte
	Width  int // pixels
	Height int // pixels
}

// Rasterizer turns vector markup into a bitmap at scale times its intrinsic size.
type Rasterizer interface {
	Rasterize(ctx context.Context, img visual.VectorImage, scale float64) (*Bitmap, error)
}

// ItemKind tells text runs from images.
type ItemKind int

// Item kinds.
const (
	ItemText ItemKind = iota
	ItemImage
)

// Item is one positioned primitive.
type Item struct {
	Kind       ItemKind
	X, Y       float64
	Width      float64
	Height     float64
	Lines      []string // ItemText
	LineHeight float64  // ItemText
	Style      visual.TextStyle
	Image      *Bitmap // ItemImage
}

// Bottom returns the y of the item's lower edge.
func (it Item) Bottom() float64 { return it.Y + it.Height }

// Page is an ordered list of placed items.
type Page struct {
	Items []Item
}

// State is the transient export state. It is built by Paginate and read by
// the serializer.
type State struct {
	Config
	Pages   []*Page
	CursorY float64

	// Skipped counts diagrams dropped because rasterization failed.
	Skipped int

	measurer   Measurer
	rasterizer Rasterizer
	logger     *slog.Logger
}

// Paginate lays root out on pages of cfg's geometry.
func Paginate(ctx context.Context, root visual.Block, cfg Config, m Measurer, r Rasterizer, logger *slog.Logger) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNoDocumentRoot
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &State{
		Config:     cfg,
		measurer:   m,
		rasterizer: r,
		logger:     logger,
	}
	s.newPage()

	if err := s.walk(ctx, root); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *State) walk(ctx context.Context, b visual.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch v := b.(type) {
	case *visual.Text:
		s.placeText(v.Text, v.Style)
	case *visual.Diagram:
		s.placeDiagram(ctx, v)
	case *visual.Container:
		for _, child := range v.Children {
			if err := s.walk(ctx, child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *State) page() *Page { return s.Pages[len(s.Pages)-1] }

func (s *State) newPage() {
	s.Pages = append(s.Pages, &Page{})
	s.CursorY = s.Margin
}

// atTop reports whether the cursor sits at the top margin.
func (s *State) atTop() bool {
	return s.CursorY <= s.Margin+epsilon
}

// fits reports whether height fits between the cursor and the bottom margin.
func (s *State) fits(height float64) bool {
	return s.CursorY+height <= s.Bottom()+epsilon
}

// advance moves the cursor by gap without crossing the bottom margin.
func (s *State) advance(gap float64) {
	s.CursorY = math.Min(s.CursorY+gap, s.Bottom())
}

func (s *State) indent(level int) (x, width float64) {
	offset := float64(level) * IndentStep
	if offset > s.ContentWidth()/2 {
		offset = s.ContentWidth() / 2
	}
	return s.Margin + offset, s.ContentWidth() - offset
}

func (s *State) placeText(text string, style visual.TextStyle) {
	x, width := s.indent(style.Indent)
	lh := s.measurer.LineHeight(style)
	if lh <= 0 {
		return
	}

	if style.Blank {
		if !s.fits(lh) && !s.atTop() {
			s.newPage()
		}
		s.CursorY += lh
		s.advance(TextGap)
		return
	}

	lines := s.measurer.WrapText(text, style, width)
	if len(lines) == 0 {
		return
	}

	// Move the whole block to a fresh page when it fits there.
	total := float64(len(lines)) * lh
	if !s.fits(total) && !s.atTop() && total <= s.UsableHeight()+epsilon {
		s.newPage()
	}

	// Taller than a page: split at line boundaries.
	for len(lines) > 0 {
		room := int(math.Floor((s.Bottom()-s.CursorY)/lh + epsilon))
		if room < 1 {
			if !s.atTop() {
				s.newPage()
				continue
			}
			room = 1
		}
		n := min(room, len(lines))
		s.page().Items = append(s.page().Items, Item{
			Kind:       ItemText,
			X:          x,
			Y:          s.CursorY,
			Width:      width,
			Height:     float64(n) * lh,
			Lines:      lines[:n],
			LineHeight: lh,
			Style:      style,
		})
		s.CursorY += float64(n) * lh
		lines = lines[n:]
		if len(lines) > 0 {
			s.newPage()
		}
	}
	s.advance(TextGap)
}

func (s *State) placeDiagram(ctx context.Context, d *visual.Diagram) {
	if d.Failed() {
		s.placeText(strings.TrimRight(d.Source(), "\n"), visual.TextStyle{Code: true, Indent: d.Indent})
		return
	}

	art, ok := d.Artifact()
	if !ok {
		s.logger.Warn("skipping unsettled diagram", "diagram_id", d.RenderID(), "state", d.State().String())
		s.Skipped++
		return
	}
	if s.rasterizer == nil {
		s.logger.Warn("skipping diagram, no rasterizer", "diagram_id", art.ID)
		s.Skipped++
		return
	}

	bmp, err := s.rasterizer.Rasterize(ctx, art, s.scale())
	if err == nil && (bmp == nil || bmp.Width <= 0 || bmp.Height <= 0) {
		err = errors.New("empty bitmap")
	}
	if err != nil {
		s.logger.Warn("diagram rasterization failed, skipping", "diagram_id", art.ID, "error", err)
		s.Skipped++
		return
	}

	x, width := s.indent(d.Indent)
	height := width * float64(bmp.Height) / float64(bmp.Width)
	if height > s.UsableHeight() {
		height = s.UsableHeight()
		width = height * float64(bmp.Width) / float64(bmp.Height)
	}

	if !s.fits(height) && !s.atTop() {
		s.newPage()
	}
	s.page().Items = append(s.page().Items, Item{
		Kind:   ItemImage,
		X:      x,
		Y:      s.CursorY,
		Width:  width,
		Height: height,
		Image:  bmp,
	})
	s.CursorY += height
	s.advance(DiagramGap)
}
