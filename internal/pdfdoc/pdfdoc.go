// Package pdfdoc serializes paginated layouts to PDF with fpdf.
//
// A Document is three things for one export: the font table the font
// installer registers faces into, the Measurer the pagination engine wraps
// text with, and the writer that draws the resulting pages. Measuring and
// drawing go through the same fpdf instance so wrapped lines always fit.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"codeberg.org/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/alnah/go-mdpress/internal/layout"
	"github.com/alnah/go-mdpress/internal/visual"
)

// Built-in faces used when no custom font is installed.
const (
	DefaultFamily = "Helvetica"
	CodeFamily    = "Courier"
)

// Font sizes in points.
const (
	BodySize   = 12.0
	CodeSize   = 10.0
	FooterSize = 8.0
)

// headingSizes maps heading levels 1-6 to point sizes.
var headingSizes = [...]float64{24, 20, 16, 14, 12, 12}

// mmPerPoint converts a point size to a line height: 12pt body lines are 7mm.
const mmPerPoint = 7.0 / 12.0

// Sentinel errors for PDF serialization.
var (
	ErrFontData     = errors.New("font data not in virtual file system")
	ErrFontRegister = errors.New("font registration failed")
	ErrRender       = errors.New("PDF rendering failed")
	ErrOptimize     = errors.New("PDF optimization failed")
)

// Footer configures the line drawn inside the bottom margin of every page.
type Footer struct {
	Position       string // "left", "center", "right" (default: "right")
	ShowPageNumber bool
	Date           string // already formatted
	Text           string
}

// Options configures a Document.
type Options struct {
	PageWidth  float64 // mm
	PageHeight float64 // mm
	Margin     float64 // mm
	Title      string
	Creator    string
	Now        func() time.Time
	Footer     *Footer
}

// Document is an fpdf document plus the font table of one export.
type Document struct {
	mu     sync.Mutex
	pdf    *fpdf.Fpdf
	opts   Options
	vfs    map[string][]byte
	faces  map[string]bool // family + "|" + fpdf style
	family string          // body family
	utf8   bool            // current font is a UTF-8 font
	toCP   func(string) string
}

var _ layout.Measurer = (*Document)(nil)

// New returns an empty document of the given geometry.
func New(opts Options) *Document {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "mm",
		Size:    fpdf.SizeType{Wd: opts.PageWidth, Ht: opts.PageHeight},
	})
	pdf.SetMargins(opts.Margin, opts.Margin, opts.Margin)
	pdf.SetAutoPageBreak(false, 0)
	if opts.Title != "" {
		pdf.SetTitle(opts.Title, true)
	}
	if opts.Creator != "" {
		pdf.SetCreator(opts.Creator, true)
	}
	if opts.Now != nil {
		now := opts.Now()
		pdf.SetCreationDate(now)
		pdf.SetModificationDate(now)
	}

	d := &Document{
		pdf:    pdf,
		opts:   opts,
		vfs:    make(map[string][]byte),
		faces:  make(map[string]bool),
		family: DefaultFamily,
		toCP:   pdf.UnicodeTranslatorFromDescriptor(""),
	}
	if opts.Footer != nil {
		pdf.AliasNbPages("")
		pdf.SetFooterFunc(d.drawFooter)
	}
	return d
}

// AddFileToVFS stores font bytes under fileName.
func (d *Document) AddFileToVFS(fileName string, data []byte) error {
	if fileName == "" || len(data) == 0 {
		return fmt.Errorf("%w: %q is empty", ErrFontData, fileName)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vfs[fileName] = data
	return nil
}

// AddFont registers the VFS file fileName as face (family, style).
// style is one of "normal", "bold", "italic", "bolditalic".
func (d *Document) AddFont(fileName, family, style string) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, ok := d.vfs[fileName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFontData, fileName)
	}
	fpdfStyle := styleCode(style)

	// fpdf only logs a non-TrueType payload and keeps the face, which then
	// panics on first use.
	if !isTrueType(data) {
		return fmt.Errorf("%w: %s: not a TrueType font", ErrFontRegister, family)
	}

	// The TTF parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			d.pdf.ClearError()
			err = fmt.Errorf("%w: %s: %v", ErrFontRegister, family, r)
		}
	}()

	d.pdf.AddUTF8FontFromBytes(family, fpdfStyle, data)
	if d.pdf.Err() {
		cause := d.pdf.Error()
		d.pdf.ClearError()
		return fmt.Errorf("%w: %s: %v", ErrFontRegister, family, cause)
	}
	d.faces[faceKey(family, fpdfStyle)] = true
	return nil
}

// isTrueType checks the sfnt version tag: 0x00010000 or "true".
func isTrueType(data []byte) bool {
	return len(data) >= 12 &&
		(bytes.HasPrefix(data, []byte{0x00, 0x01, 0x00, 0x00}) || bytes.HasPrefix(data, []byte("true")))
}

// UseFont selects family as the body font. It returns false, leaving the
// built-in default in place, when no regular face of family is registered.
func (d *Document) UseFont(family string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.faces[faceKey(family, "")] {
		return false
	}
	d.family = family
	return true
}

// Family returns the body font family in use.
func (d *Document) Family() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.family
}

// LineHeight implements layout.Measurer.
func (d *Document) LineHeight(style visual.TextStyle) float64 {
	return fontSize(style) * mmPerPoint
}

// WrapText implements layout.Measurer. Hard line breaks are kept; every
// paragraph is split to fit width with the font selected for style.
func (d *Document) WrapText(text string, style visual.TextStyle, width float64) []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.setStyle(style)
	text = d.prepare(text, style)

	var out []string
	for _, para := range strings.Split(text, "\n") {
		if para == "" {
			out = append(out, "")
			continue
		}
		if d.utf8 {
			out = append(out, d.pdf.SplitText(para, width)...)
			continue
		}
		for _, line := range d.pdf.SplitLines([]byte(d.toCP(para)), width) {
			out = append(out, string(line))
		}
	}
	return out
}

// prepare normalizes text for the current font.
func (d *Document) prepare(text string, style visual.TextStyle) string {
	if style.Code {
		text = strings.ReplaceAll(text, "\t", "    ")
	}
	if !d.utf8 {
		return text
	}
	// fpdf width tables stop at the Basic Multilingual Plane.
	return strings.Map(func(r rune) rune {
		if r > 0xFFFF {
			return ' '
		}
		return r
	}, text)
}

// setStyle selects the fpdf font for style. Callers hold d.mu.
func (d *Document) setStyle(style visual.TextStyle) {
	size := fontSize(style)

	if style.Code {
		d.pdf.SetFont(CodeFamily, "", size)
		d.utf8 = false
		return
	}

	fpdfStyle := ""
	if style.Level > 0 {
		fpdfStyle = "B"
	}

	if d.family == DefaultFamily {
		d.pdf.SetFont(DefaultFamily, fpdfStyle, size)
		d.utf8 = false
		return
	}

	if !d.faces[faceKey(d.family, fpdfStyle)] {
		fpdfStyle = ""
	}
	d.pdf.SetFont(d.family, fpdfStyle, size)
	d.utf8 = true
}

// Render draws every page of state and writes the PDF to w.
func (d *Document) Render(state *layout.State, w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for p, page := range state.Pages {
		d.pdf.AddPage()
		for i, item := range page.Items {
			switch item.Kind {
			case layout.ItemText:
				d.drawText(item)
			case layout.ItemImage:
				d.drawImage(fmt.Sprintf("diagram-%d-%d", p, i), item)
			}
		}
	}

	if d.pdf.Err() {
		return fmt.Errorf("%w: %v", ErrRender, d.pdf.Error())
	}
	if err := d.pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}

func (d *Document) drawText(item layout.Item) {
	d.setStyle(item.Style)
	for j, line := range item.Lines {
		d.pdf.SetXY(item.X, item.Y+float64(j)*item.LineHeight)
		d.pdf.CellFormat(item.Width, item.LineHeight, line, "", 0, "L", false, 0, "")
	}
}

func (d *Document) drawImage(name string, item layout.Item) {
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	d.pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(item.Image.PNG))
	d.pdf.ImageOptions(name, item.X, item.Y, item.Width, item.Height, false, opts, 0, "")
}

// drawFooter is called by fpdf when a page is closed.
func (d *Document) drawFooter() {
	f := d.opts.Footer
	var parts []string
	if f.Text != "" {
		parts = append(parts, f.Text)
	}
	if f.Date != "" {
		parts = append(parts, f.Date)
	}
	if f.ShowPageNumber {
		parts = append(parts, fmt.Sprintf("%d/{nb}", d.pdf.PageNo()))
	}
	if len(parts) == 0 {
		return
	}

	align := "R"
	switch f.Position {
	case "left":
		align = "L"
	case "center":
		align = "C"
	}

	text := strings.Join(parts, " - ")
	if d.family != DefaultFamily {
		d.pdf.SetFont(d.family, "", FooterSize)
	} else {
		d.pdf.SetFont(DefaultFamily, "", FooterSize)
		text = d.toCP(text)
	}
	height := FooterSize * mmPerPoint
	y := d.opts.PageHeight - d.opts.Margin/2 - height/2
	d.pdf.SetTextColor(110, 110, 110)
	d.pdf.SetXY(d.opts.Margin, y)
	d.pdf.CellFormat(d.opts.PageWidth-2*d.opts.Margin, height, text, "", 0, align, false, 0, "")
	d.pdf.SetTextColor(0, 0, 0)
}

// Optimize rewrites a PDF with pdfcpu, dropping redundant objects.
func Optimize(pdf []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(pdf), &out, model.NewDefaultConfiguration()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptimize, err)
	}
	return out.Bytes(), nil
}

func fontSize(style visual.TextStyle) float64 {
	switch {
	case style.Code:
		return CodeSize
	case style.Level >= 1 && style.Level <= len(headingSizes):
		return headingSizes[style.Level-1]
	default:
		return BodySize
	}
}

// styleCode maps a style name to fpdf's style string.
func styleCode(style string) string {
	switch strings.ToLower(style) {
	case "bold", "b":
		return "B"
	case "italic", "i":
		return "I"
	case "bolditalic", "bi":
		return "BI"
	default:
		return ""
	}
}

func faceKey(family, fpdfStyle string) string {
	return strings.ToLower(family) + "|" + fpdfStyle
}
