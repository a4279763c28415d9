// Package fileutil holds small file and path helpers shared by the CLI,
// config loading and the mermaid renderer.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrScratchName = errors.New("scratch file name must be a single path element")

// Scratch is a private temp directory for one external tool run. Close
// removes it with everything inside.
type Scratch struct {
	dir string
}

// NewScratch creates a directory named prefix-<random> under os.TempDir.
func NewScratch(prefix string) (*Scratch, error) {
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

func (s *Scratch) Dir() string { return s.dir }

// Path returns where name lives inside the scratch directory, for outputs
// a tool writes itself.
func (s *Scratch) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrScratchName, name)
	}
	return filepath.Join(s.dir, name), nil
}

// Write stores data as name, readable only by us, and returns its path.
func (s *Scratch) Write(name string, data []byte) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

// Close removes the directory. It is safe to call more than once.
func (s *Scratch) Close() error {
	return os.RemoveAll(s.dir)
}

// FileExists reports whether path names an existing non-directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// IsFilePath tells config names ("work") from config paths ("./work.yaml",
// `C:\cfg\work.yaml`): anything holding a separator is a path.
func IsFilePath(s string) bool {
	return strings.ContainsAny(s, `/\`)
}

// IsURL reports an http or https URL prefix.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
