package mdpress

import (
	"fmt"
	"strings"
	"time"
)

// Page size constants.
const (
	PageSizeA4     = "a4"
	PageSizeLetter = "letter"
	PageSizeLegal  = "legal"
)

// Orientation constants.
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Margin bounds in millimetres.
const (
	MinMargin     = 5.0
	MaxMargin     = 75.0
	DefaultMargin = 10.0
)

// Custom page bounds in millimetres.
const (
	MinPageSide = 50.0
	MaxPageSide = 1200.0
)

// DefaultFileName names the exported artifact.
const DefaultFileName = "document.pdf"

// pageSizes holds portrait dimensions in millimetres.
var pageSizes = map[string][2]float64{
	PageSizeA4:     {210, 297},
	PageSizeLetter: {215.9, 279.4},
	PageSizeLegal:  {215.9, 355.6},
}

// PageSettings configures page geometry. Zero fields select defaults:
// A4, portrait, DefaultMargin.
type PageSettings struct {
	Size        string  // "a4", "letter", "legal"
	Orientation string  // "portrait", "landscape"
	Margin      float64 // mm, applied to all sides

	// Width and Height override Size when both are set (mm, portrait or
	// landscape as given; Orientation is ignored).
	Width  float64
	Height float64
}

// DefaultPageSettings returns page settings with default values.
func DefaultPageSettings() *PageSettings {
	return &PageSettings{
		Size:        PageSizeA4,
		Orientation: OrientationPortrait,
		Margin:      DefaultMargin,
	}
}

// Validate checks that page settings are valid.
// Returns nil if p is nil (nil means use defaults).
func (p *PageSettings) Validate() error {
	if p == nil {
		return nil
	}

	custom := p.Width != 0 || p.Height != 0
	if custom {
		if p.Width < MinPageSide || p.Width > MaxPageSide || p.Height < MinPageSide || p.Height > MaxPageSide {
			return fmt.Errorf("%w: %gx%g mm (each side must be between %g and %g)",
				ErrInvalidDimensions, p.Width, p.Height, MinPageSide, MaxPageSide)
		}
	} else if _, ok := pageSizes[normalize(p.Size, PageSizeA4)]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPageSize, p.Size)
	}

	switch normalize(p.Orientation, OrientationPortrait) {
	case OrientationPortrait, OrientationLandscape:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidOrientation, p.Orientation)
	}

	if p.Margin != 0 && (p.Margin < MinMargin || p.Margin > MaxMargin) {
		return fmt.Errorf("%w: %.1f (must be between %.1f and %.1f)", ErrInvalidMargin, p.Margin, MinMargin, MaxMargin)
	}

	w, h := p.Dimensions()
	if 2*p.margin() >= min(w, h) {
		return fmt.Errorf("%w: %.1f leaves no content area on %gx%g mm", ErrInvalidMargin, p.margin(), w, h)
	}
	return nil
}

// Dimensions returns the page width and height in millimetres.
// Call Validate first; unknown sizes fall back to A4.
func (p *PageSettings) Dimensions() (width, height float64) {
	if p == nil {
		p = DefaultPageSettings()
	}
	if p.Width != 0 && p.Height != 0 {
		return p.Width, p.Height
	}
	size, ok := pageSizes[normalize(p.Size, PageSizeA4)]
	if !ok {
		size = pageSizes[PageSizeA4]
	}
	if normalize(p.Orientation, OrientationPortrait) == OrientationLandscape {
		return size[1], size[0]
	}
	return size[0], size[1]
}

func (p *PageSettings) margin() float64 {
	if p == nil || p.Margin == 0 {
		return DefaultMargin
	}
	return p.Margin
}

func normalize(value, fallback string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return fallback
	}
	return v
}

// Footer configures the line drawn inside the bottom margin.
type Footer struct {
	Position       string // "left", "center", "right" (default: "right")
	ShowPageNumber bool
	Date           string // literal, "auto" or "auto:FORMAT"
	Text           string
}

// Validate checks that footer settings are valid.
// Returns nil if f is nil (nil means no footer).
func (f *Footer) Validate() error {
	if f == nil {
		return nil
	}
	switch strings.ToLower(f.Position) {
	case "", "left", "center", "right":
		return nil
	default:
		return fmt.Errorf("%w: %q (must be left, center, or right)", ErrInvalidFooterPosition, f.Position)
	}
}

// Input contains export parameters.
type Input struct {
	Markdown string        // Markdown content (required)
	Title    string        // PDF title metadata (optional)
	FontName string        // Custom body font, fetched from /assets/fonts/<name>.ttf (optional)
	Page     *PageSettings // Page settings (optional, nil = defaults)
	Footer   *Footer       // Footer config (optional)
}

// ExportResult is the outcome of one export.
type ExportResult struct {
	PDF      []byte
	FileName string
	Pages    int

	// FontFallback is set when the requested font could not be installed
	// and the built-in face was used instead.
	FontFallback bool

	// FailedDiagrams counts diagrams that fell back to their source text.
	FailedDiagrams int

	// SkippedDiagrams counts rendered diagrams that could not be rasterized.
	SkippedDiagrams int
}

// Document is an editable markdown document. An empty ID means the
// document has never been persisted.
type Document struct {
	ID       string
	Name     string
	Markdown string
	FontName string
}

// DocumentSummary is a document list entry.
type DocumentSummary struct {
	ID        string
	Name      string
	UpdatedAt time.Time
}
