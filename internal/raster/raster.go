// Package raster turns diagram SVG markup into PNG bitmaps for pagination.
//
// Two backends implement layout.Rasterizer: SVG is pure Go (oksvg) and needs
// no external process; Chrome screenshots the markup in headless Chrome and
// supports everything a browser renders, including HTML labels.
package raster

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Sentinel errors for rasterization.
var (
	ErrInvalidSVG     = errors.New("invalid SVG markup")
	ErrRasterize      = errors.New("rasterization failed")
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrPageCreate     = errors.New("failed to create browser page")
	ErrScreenshot     = errors.New("failed to capture screenshot")
)

// DefaultMaxPixels caps the bitmap area of one diagram.
const DefaultMaxPixels = 16_000_000

// SVGSize returns the intrinsic size of the root <svg> element in CSS
// pixels. Absolute width and height attributes win; otherwise the viewBox
// is used. ok is false when neither yields a positive size.
func SVGSize(markup string) (width, height float64, ok bool) {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return 0, 0, false
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.Data != "svg" {
				continue
			}
			return svgAttrSize(tok.Attr)
		}
	}
}

func svgAttrSize(attrs []html.Attribute) (float64, float64, bool) {
	var w, h float64
	var vbW, vbH float64
	for _, a := range attrs {
		// the tokenizer lowercases attribute names
		switch a.Key {
		case "width":
			w = parseLength(a.Val)
		case "height":
			h = parseLength(a.Val)
		case "viewbox":
			vbW, vbH = parseViewBox(a.Val)
		}
	}

	switch {
	case w > 0 && h > 0:
		return w, h, true
	case vbW > 0 && vbH > 0 && w > 0:
		return w, w * vbH / vbW, true
	case vbW > 0 && vbH > 0 && h > 0:
		return h * vbW / vbH, h, true
	case vbW > 0 && vbH > 0:
		return vbW, vbH, true
	}
	return 0, 0, false
}

// parseLength converts an absolute SVG length to CSS pixels. Relative units
// yield 0.
func parseLength(s string) float64 {
	s = strings.TrimSpace(s)
	factor := 1.0
	for _, u := range []struct {
		suffix string
		factor float64
	}{
		{"px", 1},
		{"pt", 4.0 / 3.0},
		{"mm", 96 / 25.4},
		{"cm", 96 / 2.54},
		{"in", 96},
	} {
		if v, ok := strings.CutSuffix(s, u.suffix); ok {
			s, factor = v, u.factor
			break
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return v * factor
}

func parseViewBox(s string) (float64, float64) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	if len(fields) != 4 {
		return 0, 0
	}
	w, errW := strconv.ParseFloat(fields[2], 64)
	h, errH := strconv.ParseFloat(fields[3], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0
	}
	return w, h
}

// pixelSize scales a CSS size by scale and shrinks it to fit maxPixels.
func pixelSize(w, h, scale float64, maxPixels int) (int, int) {
	pw, ph := w*scale, h*scale
	if maxPixels > 0 && pw*ph > float64(maxPixels) {
		f := math.Sqrt(float64(maxPixels) / (pw * ph))
		pw, ph = pw*f, ph*f
	}
	return max(1, int(math.Round(pw))), max(1, int(math.Round(ph)))
}
