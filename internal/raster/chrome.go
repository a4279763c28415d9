package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png" // DecodeConfig of screenshots
	"math"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/alnah/go-mdpress/internal/layout"
	"github.com/alnah/go-mdpress/internal/visual"
)

// DefaultChromeTimeout bounds one screenshot when the context has no deadline.
const DefaultChromeTimeout = 30 * time.Second

// Fallback viewport for markup without an intrinsic size.
const (
	fallbackWidth  = 800
	fallbackHeight = 600
)

// screenshotPage hosts the markup with no margins so the element box is the
// SVG box.
const screenshotPage = `<!DOCTYPE html><html><head><meta charset="utf-8">` +
	`<style>html,body{margin:0;padding:0;background:#fff}svg{display:block}</style>` +
	`</head><body>%s</body></html>`

// Chrome rasterizes markup by screenshotting it in headless Chrome.
// The browser is launched lazily on first use and shared by all calls.
// Rod downloads Chromium on first run if none is found.
type Chrome struct {
	timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

var _ layout.Rasterizer = (*Chrome)(nil)

// NewChrome returns a Chrome rasterizer; timeout <= 0 selects DefaultChromeTimeout.
func NewChrome(timeout time.Duration) *Chrome {
	if timeout <= 0 {
		timeout = DefaultChromeTimeout
	}
	return &Chrome{timeout: timeout}
}

// ensureBrowser lazily connects to the browser. Callers hold c.mu.
func (c *Chrome) ensureBrowser() error {
	if c.browser != nil {
		return nil
	}

	l := launcher.New()

	// Use pre-installed browser if specified (Docker/containerized environments)
	if bin := os.Getenv("ROD_BROWSER_BIN"); bin != "" {
		l = l.Bin(bin)
	}

	// NoSandbox required for CI and containerized environments
	if os.Getenv("CI") == "true" || os.Getenv("ROD_BROWSER_BIN") != "" {
		l = l.NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}

	c.browser = rod.New().ControlURL(u)
	if err := c.browser.Connect(); err != nil {
		c.browser = nil
		return fmt.Errorf("%w: %v", ErrBrowserConnect, err)
	}
	return nil
}

// Close releases browser resources.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		err := c.browser.Close()
		c.browser = nil
		return err
	}
	return nil
}

// Rasterize implements layout.Rasterizer. The viewport is the SVG's
// intrinsic size and scale is applied as the device scale factor.
func (c *Chrome) Rasterize(ctx context.Context, img visual.VectorImage, scale float64) (*layout.Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scale <= 0 {
		scale = 1
	}

	c.mu.Lock()
	err := c.ensureBrowser()
	browser := c.browser
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageCreate, err)
	}
	defer page.Close()
	page = page.Timeout(timeout)

	w, h, ok := SVGSize(img.Markup)
	if !ok {
		w, h = fallbackWidth, fallbackHeight
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(math.Ceil(w)),
		Height:            int(math.Ceil(h)),
		DeviceScaleFactor: scale,
	}); err != nil {
		return nil, fmt.Errorf("%w: %s: viewport: %v", ErrRasterize, img.ID, err)
	}

	if err := page.SetDocumentContent(fmt.Sprintf(screenshotPage, img.Markup)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRasterize, img.ID, err)
	}

	el, err := page.Element("svg")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: no <svg> element: %v", ErrInvalidSVG, img.ID, err)
	}
	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrScreenshot, img.ID, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: decoding screenshot: %v", ErrScreenshot, img.ID, err)
	}
	return &layout.Bitmap{PNG: data, Width: cfg.Width, Height: cfg.Height}, nil
}
