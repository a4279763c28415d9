package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/alnah/go-mdpress/internal/layout"
	"github.com/alnah/go-mdpress/internal/visual"
)

// SVG rasterizes markup in-process with oksvg.
// oksvg ignores <foreignObject>, so diagrams must be rendered with SVG text
// labels for their text to show.
type SVG struct {
	// MaxPixels caps the bitmap area; DefaultMaxPixels when zero.
	MaxPixels int
	// Background fills the canvas before drawing; white when nil.
	Background color.Color
}

var _ layout.Rasterizer = (*SVG)(nil)

// Rasterize implements layout.Rasterizer.
func (s *SVG) Rasterize(ctx context.Context, img visual.VectorImage, scale float64) (bmp *layout.Bitmap, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}

	// oksvg panics on some malformed path data.
	defer func() {
		if r := recover(); r != nil {
			bmp, err = nil, fmt.Errorf("%w: %s: %v", ErrRasterize, img.ID, r)
		}
	}()

	icon, err := oksvg.ReadIconStream(strings.NewReader(img.Markup), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSVG, img.ID, err)
	}

	w, h, ok := SVGSize(img.Markup)
	if !ok {
		w, h = icon.ViewBox.W, icon.ViewBox.H
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %s: no intrinsic size", ErrInvalidSVG, img.ID)
	}

	maxPixels := s.MaxPixels
	if maxPixels == 0 {
		maxPixels = DefaultMaxPixels
	}
	pw, ph := pixelSize(w, h, scale, maxPixels)

	bg := s.Background
	if bg == nil {
		bg = color.White
	}
	rgba := image.NewRGBA(image.Rect(0, 0, pw, ph))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	icon.SetTarget(0, 0, float64(pw), float64(ph))
	scanner := rasterx.NewScannerGV(pw, ph, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(pw, ph, scanner), 1)

	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, fmt.Errorf("%w: %s: encoding PNG: %v", ErrRasterize, img.ID, err)
	}
	return &layout.Bitmap{PNG: buf.Bytes(), Width: pw, Height: ph}, nil
}
