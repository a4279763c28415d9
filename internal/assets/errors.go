package assets

import "errors"

var (
	ErrStyleNotFound    = errors.New("style not found")
	ErrFontNotFound     = errors.New("font not found")
	ErrInvalidAssetName = errors.New("invalid asset name")
	ErrInvalidBasePath  = errors.New("invalid asset directory")
	ErrAssetRead        = errors.New("failed to read asset")

	// ErrPathTraversal is returned when a symlink inside the asset
	// directory points outside of it.
	ErrPathTraversal = errors.New("path escapes asset directory")
)

// IsNotFound reports whether err means the asset is absent, as opposed to
// unreadable or invalid.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStyleNotFound) || errors.Is(err, ErrFontNotFound)
}
