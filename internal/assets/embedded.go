package assets

import (
	"embed"
	"fmt"
	"path"
)

//go:embed styles/*.css
var styles embed.FS

// EmbeddedLoader serves the styles compiled into the binary. Fonts are
// licensed separately and never embedded.
type EmbeddedLoader struct{}

var _ AssetLoader = EmbeddedLoader{}

// NewEmbeddedLoader returns the embedded loader.
func NewEmbeddedLoader() EmbeddedLoader { return EmbeddedLoader{} }

func (EmbeddedLoader) LoadStyle(name string) (string, error) {
	if err := ValidateAssetName(name); err != nil {
		return "", err
	}
	data, err := styles.ReadFile(path.Join(stylesDir, name+styleExt))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrStyleNotFound, name)
	}
	return string(data), nil
}

func (EmbeddedLoader) LoadFont(name string) ([]byte, error) {
	if err := ValidateAssetName(name); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %q", ErrFontNotFound, name)
}

func (EmbeddedLoader) Fonts() ([]string, error) { return nil, nil }
