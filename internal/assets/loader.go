package assets

import (
	"fmt"
	"strings"
)

// DefaultStyleName is the built-in preview style.
const DefaultStyleName = "preview"

const (
	stylesDir = "styles"
	fontsDir  = "fonts"
	styleExt  = ".css"
	fontExt   = ".ttf"
)

// AssetLoader loads styles and fonts by name, without extension.
type AssetLoader interface {
	// LoadStyle returns ErrStyleNotFound when the style is absent.
	LoadStyle(name string) (string, error)

	// LoadFont returns ErrFontNotFound when the font is absent.
	LoadFont(name string) ([]byte, error)

	// Fonts lists the font names LoadFont can serve, sorted.
	Fonts() ([]string, error)
}

// FontFile returns the file name a font is stored under.
func FontFile(name string) string {
	return name + fontExt
}

// ValidateAssetName rejects empty names and names that could select a
// different file: separators, dots and NUL. Spaces are allowed so families
// like "Noto Sans" resolve directly.
func ValidateAssetName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidAssetName)
	}
	if strings.ContainsAny(name, "/\\.\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidAssetName, name)
	}
	return nil
}
