package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FilesystemLoader serves assets from a directory laid out as
//
//	{base}/styles/{name}.css
//	{base}/fonts/{name}.ttf
//
// Every read goes through an os.Root opened on base, so files are picked up
// as soon as they are dropped in and symlinks cannot escape the directory.
type FilesystemLoader struct {
	base string
}

var _ AssetLoader = (*FilesystemLoader)(nil)

// NewFilesystemLoader checks that base is a readable directory.
func NewFilesystemLoader(base string) (*FilesystemLoader, error) {
	if base == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidBasePath)
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	}
	info, err := os.Stat(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidBasePath, abs)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidBasePath, abs)
	}
	if _, err := os.ReadDir(abs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBasePath, err)
	}
	return &FilesystemLoader{base: abs}, nil
}

// Base returns the absolute asset directory.
func (f *FilesystemLoader) Base() string { return f.base }

func (f *FilesystemLoader) LoadStyle(name string) (string, error) {
	data, err := f.read(stylesDir, name, styleExt, ErrStyleNotFound)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *FilesystemLoader) LoadFont(name string) ([]byte, error) {
	return f.read(fontsDir, name, fontExt, ErrFontNotFound)
}

// Fonts lists fonts/*.ttf. A missing fonts directory is an empty catalog.
func (f *FilesystemLoader) Fonts() ([]string, error) {
	root, err := os.OpenRoot(f.base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetRead, err)
	}
	defer func() { _ = root.Close() }()

	entries, err := fs.ReadDir(root.FS(), fontsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		if isSymlink(root, fontsDir) {
			return nil, fmt.Errorf("%w: %s", ErrPathTraversal, fontsDir)
		}
		return nil, fmt.Errorf("%w: %v", ErrAssetRead, err)
	}

	var names []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), fontExt)
		if !ok || e.IsDir() || ValidateAssetName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (f *FilesystemLoader) read(dir, name, ext string, notFound error) ([]byte, error) {
	if err := ValidateAssetName(name); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(f.base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssetRead, err)
	}
	defer func() { _ = root.Close() }()

	rel := filepath.Join(dir, name+ext)
	data, err := root.ReadFile(rel)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %q", notFound, name)
	case isSymlink(root, dir) || isSymlink(root, rel):
		return nil, fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	default:
		return nil, fmt.Errorf("%w: %v", ErrAssetRead, err)
	}
}

// isSymlink reports whether name itself is a symlink, without following it.
func isSymlink(root *os.Root, name string) bool {
	info, err := root.Lstat(name)
	return err == nil && info.Mode()&fs.ModeSymlink != 0
}
