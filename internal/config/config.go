package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/goccy/go-yaml/ast"
	"github.com/goccy/go-yaml/parser"

	"github.com/alnah/go-mdpress/internal/fileutil"
	"github.com/alnah/go-mdpress/internal/store"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Field length limits for multi-tenant safety.
const (
	MaxPathLength        = 4096
	MaxURLLength         = 2048 // Browser limit
	MaxDSNLength         = 2048
	MaxDateLength        = 30  // "2025-12-31" or "auto:MMMM D, YYYY"
	MaxTextLength        = 500 // Footer free-form text
	MaxFontNameLength    = 100
	MaxPageSizeLength    = 10 // "letter", "a4", "legal"
	MaxOrientationLength = 10 // "portrait", "landscape"
	MaxThemeLength       = 20
	MaxAddrLength        = 255
)

// Defaults.
const (
	DefaultAutoSaveDelay = "2s"
	DefaultExportTimeout = "2m"
	DefaultServerAddr    = ":8080"
	DefaultStorageDriver = "sqlite"
	DefaultStorageDSN    = "mdpress.db"
	DefaultMaxBodyBytes  = 4 << 20
	DefaultRasterizer    = RasterizerSVG
)

// Rasterizer names.
const (
	RasterizerSVG    = "svg"
	RasterizerChrome = "chrome"
)

// configDirName is the directory under os.UserConfigDir searched for configs.
const configDirName = "mdpress"

// Config holds all configuration for the CLI and the server.
type Config struct {
	Output   OutputConfig   `yaml:"output"`
	Page     PageConfig     `yaml:"page"`
	Font     FontConfig     `yaml:"font"`
	Diagram  DiagramConfig  `yaml:"diagram"`
	Export   ExportConfig   `yaml:"export"`
	AutoSave AutoSaveConfig `yaml:"autosave"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Assets   AssetsConfig   `yaml:"assets"`
	Footer   FooterConfig   `yaml:"footer"`
}

// OutputConfig defines output destination options.
type OutputConfig struct {
	DefaultDir string `yaml:"defaultDir"` // Empty = next to the source
}

// PageConfig defines page geometry in millimetres.
type PageConfig struct {
	Size        string  `yaml:"size"`        // "a4", "letter", "legal" (default: "a4")
	Orientation string  `yaml:"orientation"` // "portrait", "landscape" (default: "portrait")
	Margin      float64 `yaml:"margin"`      // mm (default: 10)
	Width       float64 `yaml:"width"`       // mm, custom size (with height)
	Height      float64 `yaml:"height"`      // mm, custom size (with width)
}

// FontConfig selects the body font.
type FontConfig struct {
	Name    string `yaml:"name"`    // Empty = built-in Helvetica
	BaseURL string `yaml:"baseURL"` // Fetch /assets/fonts/<name>.ttf from here instead of assets
}

// DiagramConfig configures mermaid rendering and rasterization.
type DiagramConfig struct {
	Command     string  `yaml:"command"`     // mmdc executable (default: "mmdc")
	Theme       string  `yaml:"theme"`       // mermaid theme
	Rasterizer  string  `yaml:"rasterizer"`  // "svg" or "chrome"
	Concurrency int     `yaml:"concurrency"` // concurrent mmdc processes
	Scale       float64 `yaml:"scale"`       // rasterization scale (default: 2)
}

// ExportConfig bounds exports.
type ExportConfig struct {
	Timeout  string `yaml:"timeout"`  // Go duration (default: "2m")
	Optimize bool   `yaml:"optimize"` // run pdfcpu's optimizer
	Workers  int    `yaml:"workers"`  // concurrent exports, 0 = auto
}

// AutoSaveConfig configures editing-session auto-save.
type AutoSaveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Delay   string `yaml:"delay"` // Go duration (default: "2s")
}

// StorageConfig selects the document database.
type StorageConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `yaml:"dsn"`    // file path for sqlite, URL for postgres
}

// ServerConfig configures mdpressd.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes"`
}

// AssetsConfig defines asset loading options.
type AssetsConfig struct {
	BasePath string `yaml:"basePath"` // Empty = embedded styles, no fonts
}

// FooterConfig defines page footer options.
type FooterConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Position       string `yaml:"position"` // "left", "center", "right" (default: "right")
	ShowPageNumber bool   `yaml:"showPageNumber"`
	Date           string `yaml:"date"` // literal, "auto" or "auto:FORMAT"
	Text           string `yaml:"text"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Export:   ExportConfig{Timeout: DefaultExportTimeout},
		AutoSave: AutoSaveConfig{Enabled: true, Delay: DefaultAutoSaveDelay},
		Storage:  StorageConfig{Driver: DefaultStorageDriver, DSN: DefaultStorageDSN},
		Server:   ServerConfig{Addr: DefaultServerAddr, MaxBodyBytes: DefaultMaxBodyBytes},
		Diagram:  DiagramConfig{Rasterizer: DefaultRasterizer},
	}
}

// Validate checks field lengths and enumerations.
// Called automatically by LoadConfig and ApplyEnv, but available for
// consumers who construct Config manually.
func (c *Config) Validate() error {
	lengths := []struct {
		field string
		value string
		max   int
	}{
		{"output.defaultDir", c.Output.DefaultDir, MaxPathLength},
		{"page.size", c.Page.Size, MaxPageSizeLength},
		{"page.orientation", c.Page.Orientation, MaxOrientationLength},
		{"font.name", c.Font.Name, MaxFontNameLength},
		{"font.baseURL", c.Font.BaseURL, MaxURLLength},
		{"diagram.command", c.Diagram.Command, MaxPathLength},
		{"diagram.theme", c.Diagram.Theme, MaxThemeLength},
		{"storage.dsn", c.Storage.DSN, MaxDSNLength},
		{"server.addr", c.Server.Addr, MaxAddrLength},
		{"assets.basePath", c.Assets.BasePath, MaxPathLength},
		{"footer.date", c.Footer.Date, MaxDateLength},
		{"footer.text", c.Footer.Text, MaxTextLength},
	}
	for _, l := range lengths {
		if err := validateFieldLength(l.field, l.value, l.max); err != nil {
			return err
		}
	}

	if err := oneOf("page.size", c.Page.Size, "a4", "letter", "legal"); err != nil {
		return err
	}
	if err := oneOf("page.orientation", c.Page.Orientation, "portrait", "landscape"); err != nil {
		return err
	}
	if err := oneOf("footer.position", c.Footer.Position, "left", "center", "right"); err != nil {
		return err
	}
	if err := oneOf("diagram.rasterizer", c.Diagram.Rasterizer, RasterizerSVG, RasterizerChrome); err != nil {
		return err
	}

	if c.Font.BaseURL != "" && !fileutil.IsURL(c.Font.BaseURL) {
		return fmt.Errorf("%w: font.baseURL %q must be an http(s) URL", ErrInvalidValue, c.Font.BaseURL)
	}

	if c.Page.Margin < 0 || c.Page.Width < 0 || c.Page.Height < 0 {
		return fmt.Errorf("%w: page dimensions must not be negative", ErrInvalidValue)
	}
	if c.Diagram.Concurrency < 0 || c.Diagram.Scale < 0 || c.Export.Workers < 0 || c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: counts and sizes must not be negative", ErrInvalidValue)
	}

	if _, err := parseDuration("export.timeout", c.Export.Timeout); err != nil {
		return err
	}
	if _, err := parseDuration("autosave.delay", c.AutoSave.Delay); err != nil {
		return err
	}
	if _, err := store.ParseDialect(c.Storage.Driver); err != nil {
		return fmt.Errorf("storage.driver: %w", err)
	}
	return nil
}

// ExportTimeout returns the parsed export timeout; zero when unset.
func (c *Config) ExportTimeout() time.Duration {
	d, _ := parseDuration("", c.Export.Timeout)
	return d
}

// AutoSaveDelay returns the parsed auto-save delay; zero disables auto-save.
func (c *Config) AutoSaveDelay() time.Duration {
	if !c.AutoSave.Enabled {
		return 0
	}
	d, _ := parseDuration("", c.AutoSave.Delay)
	return d
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// oneOf accepts empty values and case-insensitive members of allowed.
func oneOf(field, value string, allowed ...string) error {
	if value == "" || slices.Contains(allowed, strings.ToLower(value)) {
		return nil
	}
	return fmt.Errorf("%w: %s %q (must be one of %s)", ErrInvalidValue, field, value, strings.Join(allowed, ", "))
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s %q is not a non-negative duration", ErrInvalidValue, field, value)
	}
	return d, nil
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Values absent from the file keep their DefaultConfig value.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	configPath := nameOrPath
	if !fileutil.IsFilePath(nameOrPath) {
		var err error
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, configPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// maxConfigSize bounds the config file read into memory.
const maxConfigSize = 1 << 20

// decode strictly unmarshals a YAML config over DefaultConfig.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func decode(data []byte) (*Config, error) {
	if len(data) > maxConfigSize {
		return nil, fmt.Errorf("file is %d bytes (max %d)", len(data), maxConfigSize)
	}
	cfg := DefaultConfig()
	empty, err := isEmptyYAML(data)
	if err != nil {
		return nil, err
	}
	if empty {
		return cfg, nil
	}
	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.Strict()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// isEmptyYAML reports whether every document in data is blank, comments
// only, or an explicit null. Decoding such a document zeroes the target.
func isEmptyYAML(data []byte) (bool, error) {
	file, err := parser.ParseBytes(data, 0)
	if err != nil {
		return false, err
	}
	for _, doc := range file.Docs {
		switch doc.Body.(type) {
		case nil, *ast.NullNode, *ast.CommentGroupNode:
		default:
			return false, nil
		}
	}
	return true, nil
}

// EnvVars lists the MDPRESS_* variables understood by ApplyEnv.
var EnvVars = []string{
	"MDPRESS_OUTPUT_DIR",
	"MDPRESS_PAGE_SIZE",
	"MDPRESS_MARGIN",
	"MDPRESS_FONT",
	"MDPRESS_FONT_BASE_URL",
	"MDPRESS_MMDC",
	"MDPRESS_DIAGRAM_THEME",
	"MDPRESS_RASTERIZER",
	"MDPRESS_TIMEOUT",
	"MDPRESS_WORKERS",
	"MDPRESS_AUTOSAVE_DELAY",
	"MDPRESS_STORAGE_DRIVER",
	"MDPRESS_DATABASE_URL",
	"MDPRESS_ADDR",
	"MDPRESS_ASSETS",
}

// ApplyEnv overrides c with MDPRESS_* values from lookup, then validates.
// Unset and empty variables leave the field alone.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *float64) {
		if v, ok := lookup(name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, v))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, v))
				return
			}
			*dst = n
		}
	}

	str("MDPRESS_OUTPUT_DIR", &c.Output.DefaultDir)
	str("MDPRESS_PAGE_SIZE", &c.Page.Size)
	num("MDPRESS_MARGIN", &c.Page.Margin)
	str("MDPRESS_FONT", &c.Font.Name)
	str("MDPRESS_FONT_BASE_URL", &c.Font.BaseURL)
	str("MDPRESS_MMDC", &c.Diagram.Command)
	str("MDPRESS_DIAGRAM_THEME", &c.Diagram.Theme)
	str("MDPRESS_RASTERIZER", &c.Diagram.Rasterizer)
	str("MDPRESS_TIMEOUT", &c.Export.Timeout)
	integer("MDPRESS_WORKERS", &c.Export.Workers)
	str("MDPRESS_AUTOSAVE_DELAY", &c.AutoSave.Delay)
	str("MDPRESS_STORAGE_DRIVER", &c.Storage.Driver)
	str("MDPRESS_DATABASE_URL", &c.Storage.DSN)
	str("MDPRESS_ADDR", &c.Server.Addr)
	str("MDPRESS_ASSETS", &c.Assets.BasePath)

	if err := errors.Join(errs...); err != nil {
		return err
	}
	return c.Validate()
}

// SearchPaths lists the files a config name resolves to, in lookup order.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, <user config dir>/mdpress/
func SearchPaths(name string) []string {
	extensions := []string{".yaml", ".yml"}
	paths := make([]string, 0, len(extensions)*2)
	for _, ext := range extensions {
		paths = append(paths, name+ext)
	}
	if userConfigDir, err := os.UserConfigDir(); err == nil {
		for _, ext := range extensions {
			paths = append(paths, filepath.Join(userConfigDir, configDirName, name+ext))
		}
	}
	return paths
}

// resolveConfigPath returns the first existing file of SearchPaths(name).
func resolveConfigPath(name string) (string, error) {
	paths := SearchPaths(name)
	for _, p := range paths {
		if fileutil.FileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(paths, ", "))
}
