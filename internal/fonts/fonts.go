// Package fonts fetches TrueType fonts and registers them in an export's
// font table.
//
// Installation is soft: every failure is logged and reported as false so the
// caller can continue with the built-in default face.
package fonts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/alnah/go-mdpress/internal/assets"
)

// PathPrefix is where fonts are served from.
const PathPrefix = "/assets/fonts/"

// DefaultStyle is the face style fonts are registered with.
const DefaultStyle = "normal"

// MaxFontSize caps the bytes read from a font source.
const MaxFontSize = 32 << 20

// DefaultFetchTimeout bounds one HTTP font download.
const DefaultFetchTimeout = 15 * time.Second

// Sentinel errors for font fetching and registration.
var (
	ErrFetch       = errors.New("font fetch failed")
	ErrFetchStatus = errors.New("font fetch returned error status")
	ErrEmptyFont   = errors.New("font payload is empty")
	ErrNotFont     = errors.New("font payload is not a font")
	ErrTooLarge    = errors.New("font payload too large")
	ErrSourcePath  = errors.New("invalid font source path")
)

// FontTable is the export engine's font table.
type FontTable interface {
	AddFileToVFS(fileName string, data []byte) error
	AddFont(fileName, family, style string) error
}

// Fetcher loads font bytes from a source path such as "/assets/fonts/Inter.ttf".
type Fetcher interface {
	Fetch(ctx context.Context, sourcePath string) ([]byte, error)
}

// SourcePath returns the conventional source path of a font.
func SourcePath(name string) string {
	return PathPrefix + FileName(name)
}

// FileName returns the virtual file name a font is stored under.
func FileName(name string) string {
	return assets.FontFile(name)
}

// NameFromPath extracts the font name from a source path.
func NameFromPath(sourcePath string) (string, error) {
	name, ok := strings.CutPrefix(sourcePath, PathPrefix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSourcePath, sourcePath)
	}
	name, ok = strings.CutSuffix(name, ".ttf")
	if !ok || name == "" {
		return "", fmt.Errorf("%w: %q", ErrSourcePath, sourcePath)
	}
	return name, nil
}

// ---------------------------------------------------------------------------
// Fetchers
// ---------------------------------------------------------------------------

// HTTPFetcher downloads fonts from BaseURL + sourcePath.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourcePath string) ([]byte, error) {
	url := strings.TrimRight(f.BaseURL, "/") + sourcePath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s", ErrFetchStatus, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFontSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetch, err)
	}
	if len(data) > MaxFontSize {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, MaxFontSize)
	}
	return data, nil
}

// AssetFetcher resolves source paths against an asset loader's fonts directory.
type AssetFetcher struct {
	Loader assets.AssetLoader
}

// Fetch implements Fetcher.
func (f *AssetFetcher) Fetch(ctx context.Context, sourcePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := NameFromPath(sourcePath)
	if err != nil {
		return nil, err
	}
	data, err := f.Loader.LoadFont(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	return data, nil
}

// Compile-time interface checks.
var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*AssetFetcher)(nil)
)

// ---------------------------------------------------------------------------
// Installer
// ---------------------------------------------------------------------------

// Record is the cached outcome of one (name, style) installation.
type Record struct {
	Name      string
	Style     string
	Data      []byte
	Installed bool
}

// Option configures an Installer.
type Option func(*Installer)

// WithLogger sets the logger for installation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(i *Installer) {
		if l != nil {
			i.logger = l
		}
	}
}

// Installer fetches fonts once and registers them into font tables.
// A failed fetch is remembered for the Installer's lifetime.
type Installer struct {
	fetcher Fetcher
	logger  *slog.Logger

	mu      sync.Mutex
	records map[string]*Record
}

// NewInstaller returns an Installer reading fonts from fetcher.
func NewInstaller(fetcher Fetcher, opts ...Option) *Installer {
	i := &Installer{
		fetcher: fetcher,
		logger:  slog.New(slog.DiscardHandler),
		records: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Install fetches the font at sourcePath and registers it in table as
// (name, style). It returns false on any failure and never panics.
func (i *Installer) Install(ctx context.Context, table FontTable, name, sourcePath, style string) bool {
	if style == "" {
		style = DefaultStyle
	}
	log := i.logger.With("font", name, "style", style, "source", sourcePath)

	rec, err := i.record(ctx, name, sourcePath, style)
	if err != nil {
		log.Warn("font fetch failed", "error", err)
		return false
	}
	if rec == nil {
		log.Debug("font previously failed, skipping")
		return false
	}

	if err := register(table, rec); err != nil {
		log.Warn("font registration failed", "error", err)
		i.mu.Lock()
		rec.Installed = false
		i.mu.Unlock()
		return false
	}

	i.mu.Lock()
	rec.Installed = true
	i.mu.Unlock()
	log.Debug("font installed", "bytes", len(rec.Data))
	return true
}

// Record returns the cached record of (name, style).
func (i *Installer) Record(name, style string) (Record, bool) {
	if style == "" {
		style = DefaultStyle
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.records[recordKey(name, style)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// record returns the cached record, fetching it on first use. A nil record
// with a nil error means an earlier attempt failed.
func (i *Installer) record(ctx context.Context, name, sourcePath, style string) (*Record, error) {
	key := recordKey(name, style)

	i.mu.Lock()
	rec, ok := i.records[key]
	i.mu.Unlock()
	if ok {
		if rec.Data == nil {
			return nil, nil
		}
		return rec, nil
	}

	data, err := i.fetch(ctx, sourcePath)
	rec = &Record{Name: name, Style: style, Data: data}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		rec.Data = nil
		i.records[key] = rec
		return nil, err
	}
	i.records[key] = rec
	return rec, nil
}

func (i *Installer) fetch(ctx context.Context, sourcePath string) ([]byte, error) {
	if i.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetch)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	data, err := i.fetcher.Fetch(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	if err := validate(data); err != nil {
		return nil, err
	}
	return data, nil
}

// validate rejects payloads the PDF writer cannot embed: an HTML error page
// served with a 200 status, a WOFF2 saved as .ttf, an image. Only TrueType
// outlines are accepted.
func validate(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyFont
	}
	mt := mimetype.Detect(data)
	if !mt.Is("font/ttf") && !bytes.HasPrefix(data, appleTrueType) {
		return fmt.Errorf("%w: detected %s", ErrNotFont, mt.String())
	}
	return nil
}

// appleTrueType is the sfnt version tag of older Mac TrueType files, which
// mimetype does not report as font/ttf.
var appleTrueType = []byte("true")

// register adds rec to table, turning a panicking table into an error.
func register(table FontTable, rec *Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("font table panic: %v", r)
		}
	}()

	fileName := FileName(rec.Name)
	if err := table.AddFileToVFS(fileName, rec.Data); err != nil {
		return err
	}
	return table.AddFont(fileName, rec.Name, rec.Style)
}

func recordKey(name, style string) string {
	return strings.ToLower(name) + "|" + strings.ToLower(style)
}
