package raster

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"math"
	"testing"

	"github.com/alnah/go-mdpress/internal/visual"
)

const redBox = `<svg xmlns="http://www.w3.org/2000/svg" width="40" height="20" viewBox="0 0 40 20">` +
	`<rect x="0" y="0" width="40" height="20" fill="#ff0000"/></svg>`

// ---------------------------------------------------------------------------
// TestSVGSize - Intrinsic size parsing
// ---------------------------------------------------------------------------

func TestSVGSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		markup string
		wantW  float64
		wantH  float64
		wantOK bool
	}{
		{name: "width and height", markup: `<svg width="40" height="20"></svg>`, wantW: 40, wantH: 20, wantOK: true},
		{name: "px units", markup: `<svg width="40px" height="20px"/>`, wantW: 40, wantH: 20, wantOK: true},
		{name: "pt units", markup: `<svg width="30pt" height="15pt"/>`, wantW: 40, wantH: 20, wantOK: true},
		{name: "viewBox only", markup: `<svg viewBox="0 0 300 150"></svg>`, wantW: 300, wantH: 150, wantOK: true},
		{name: "viewBox with commas", markup: `<svg viewBox="0,0,300,150"></svg>`, wantW: 300, wantH: 150, wantOK: true},
		{name: "percent width uses viewBox", markup: `<svg width="100%" viewBox="0 0 300 150" style="max-width: 300px;"></svg>`, wantW: 300, wantH: 150, wantOK: true},
		{name: "width with viewBox ratio", markup: `<svg width="600" viewBox="0 0 300 150"></svg>`, wantW: 600, wantH: 300, wantOK: true},
		{name: "height with viewBox ratio", markup: `<svg height="75" viewBox="0 0 300 150"></svg>`, wantW: 150, wantH: 75, wantOK: true},
		{name: "xml prolog", markup: `<?xml version="1.0"?><svg width="10" height="5"/>`, wantW: 10, wantH: 5, wantOK: true},
		{name: "no size", markup: `<svg></svg>`},
		{name: "not svg", markup: `<div>hello</div>`},
		{name: "garbage viewBox", markup: `<svg viewBox="a b c d"></svg>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w, h, ok := SVGSize(tt.markup)
			if ok != tt.wantOK {
				t.Fatalf("SVGSize() ok = %v, want %v", ok, tt.wantOK)
			}
			if math.Abs(w-tt.wantW) > 1e-9 || math.Abs(h-tt.wantH) > 1e-9 {
				t.Errorf("SVGSize() = %gx%g, want %gx%g", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestPixelSize(t *testing.T) {
	t.Parallel()

	if w, h := pixelSize(40, 20, 2, 0); w != 80 || h != 40 {
		t.Errorf("pixelSize() = %dx%d, want 80x40", w, h)
	}
	w, h := pixelSize(4000, 4000, 2, 1_000_000)
	if w*h > 1_000_000+2*w {
		t.Errorf("pixelSize() = %dx%d exceeds cap", w, h)
	}
	if w != h {
		t.Errorf("pixelSize() = %dx%d, aspect ratio lost", w, h)
	}
}

// ---------------------------------------------------------------------------
// TestSVG - Pure Go rasterizer
// ---------------------------------------------------------------------------

func TestSVG_Rasterize(t *testing.T) {
	t.Parallel()

	r := &SVG{}
	bmp, err := r.Rasterize(context.Background(), visual.VectorImage{ID: "d1", Markup: redBox}, 2)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if bmp.Width != 80 || bmp.Height != 40 {
		t.Fatalf("bitmap = %dx%d, want 80x40", bmp.Width, bmp.Height)
	}

	img, err := png.Decode(bytes.NewReader(bmp.PNG))
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if got := img.Bounds().Dx(); got != 80 {
		t.Errorf("decoded width = %d, want 80", got)
	}
	r8, g8, b8, _ := img.At(40, 20).RGBA()
	if r8>>8 < 200 || g8>>8 > 50 || b8>>8 > 50 {
		t.Errorf("center pixel = (%d,%d,%d), want red", r8>>8, g8>>8, b8>>8)
	}
}

func TestSVG_PixelCap(t *testing.T) {
	t.Parallel()

	r := &SVG{MaxPixels: 200}
	bmp, err := r.Rasterize(context.Background(), visual.VectorImage{ID: "d1", Markup: redBox}, 2)
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if bmp.Width*bmp.Height > 220 {
		t.Errorf("bitmap = %dx%d, want at most ~200 pixels", bmp.Width, bmp.Height)
	}
}

func TestSVG_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		markup  string
		wantErr error
	}{
		{name: "no size", markup: `<svg xmlns="http://www.w3.org/2000/svg"></svg>`, wantErr: ErrInvalidSVG},
		{name: "not markup", markup: "lexical error on line 1", wantErr: ErrInvalidSVG},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := (&SVG{}).Rasterize(context.Background(), visual.VectorImage{ID: "x", Markup: tt.markup}, 2)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Rasterize() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSVG_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := (&SVG{}).Rasterize(ctx, visual.VectorImage{Markup: redBox}, 2); !errors.Is(err, context.Canceled) {
		t.Errorf("Rasterize() error = %v, want %v", err, context.Canceled)
	}
}

func TestChrome_CancelledContextSkipsLaunch(t *testing.T) {
	t.Parallel()

	c := NewChrome(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Rasterize(ctx, visual.VectorImage{Markup: redBox}, 2); !errors.Is(err, context.Canceled) {
		t.Errorf("Rasterize() error = %v, want %v", err, context.Canceled)
	}
	if c.browser != nil {
		t.Error("browser launched for cancelled context")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
