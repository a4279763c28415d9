package assets

// Notes:
// - Symlink cases are skipped where the platform refuses os.Symlink.
// - Links are relative: os.Root rejects absolute links for a different
//   reason than an escape.

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// writeTree creates files under a fresh directory and returns its path.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func symlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

// ---------------------------------------------------------------------------
// TestNewFilesystemLoader - Base directory checks
// ---------------------------------------------------------------------------

func TestNewFilesystemLoader(t *testing.T) {
	t.Parallel()

	dir := writeTree(t, map[string]string{"notes.md": "# Notes"})

	tests := []struct {
		name    string
		base    string
		wantErr bool
	}{
		{"directory", dir, false},
		{"empty", "", true},
		{"missing", filepath.Join(dir, "nope"), true},
		{"regular file", filepath.Join(dir, "notes.md"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			l, err := NewFilesystemLoader(tt.base)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBasePath) {
					t.Errorf("NewFilesystemLoader(%q) error = %v, want %v", tt.base, err, ErrInvalidBasePath)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFilesystemLoader(%q) error = %v", tt.base, err)
			}
			if !filepath.IsAbs(l.Base()) {
				t.Errorf("Base() = %q, want absolute", l.Base())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestFilesystemLoader_Load - Styles and fonts by name
// ---------------------------------------------------------------------------

func TestFilesystemLoader_Load(t *testing.T) {
	t.Parallel()

	dir := writeTree(t, map[string]string{
		"styles/preview.css":  "body { color: navy; }",
		"fonts/Inter.ttf":     "inter",
		"fonts/Noto Sans.ttf": "noto",
	})
	l, err := NewFilesystemLoader(dir)
	if err != nil {
		t.Fatal(err)
	}

	css, err := l.LoadStyle("preview")
	if err != nil || css != "body { color: navy; }" {
		t.Errorf("LoadStyle(preview) = %q, %v", css, err)
	}

	tests := []struct {
		name    string
		font    string
		want    string
		wantErr error
	}{
		{"font", "Inter", "inter", nil},
		{"font with space", "Noto Sans", "noto", nil},
		{"missing", "Roboto", "", ErrFontNotFound},
		{"traversal", "../styles/preview", "", ErrInvalidAssetName},
		{"extension", "Inter.ttf", "", ErrInvalidAssetName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := l.LoadFont(tt.font)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("LoadFont(%q) error = %v, want %v", tt.font, err, tt.wantErr)
			}
			if string(got) != tt.want {
				t.Errorf("LoadFont(%q) = %q, want %q", tt.font, got, tt.want)
			}
		})
	}

	if _, err := l.LoadStyle("print"); !errors.Is(err, ErrStyleNotFound) {
		t.Errorf("LoadStyle(print) error = %v, want %v", err, ErrStyleNotFound)
	}
}

func TestFilesystemLoader_PicksUpNewFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	l, err := NewFilesystemLoader(dir)
	if err != nil {
		t.Fatal(err)
	}
	if names, err := l.Fonts(); err != nil || len(names) != 0 {
		t.Fatalf("Fonts() before install = %v, %v", names, err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "fonts"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fonts", "Inter.ttf"), []byte("inter"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.LoadFont("Inter"); err != nil {
		t.Errorf("LoadFont() after install error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// TestFilesystemLoader_Fonts - Catalog listing
// ---------------------------------------------------------------------------

func TestFilesystemLoader_Fonts(t *testing.T) {
	t.Parallel()

	dir := writeTree(t, map[string]string{
		"fonts/Noto Sans.ttf":   "",
		"fonts/Inter.ttf":       "",
		"fonts/Inter.otf":       "",
		"fonts/LICENSE":         "",
		"fonts/Inter.Bold.ttf":  "",
		"fonts/nested/Deep.ttf": "",
		"styles/NotAFont.ttf":   "",
	})
	l, err := NewFilesystemLoader(dir)
	if err != nil {
		t.Fatal(err)
	}

	got, err := l.Fonts()
	if err != nil {
		t.Fatalf("Fonts() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Inter", "Noto Sans"}, got); diff != "" {
		t.Errorf("Fonts() mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// TestFilesystemLoader_Symlinks - Links inside and outside the base
// ---------------------------------------------------------------------------

func TestFilesystemLoader_Symlinks(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	outside := filepath.Join(parent, "outside")
	base := filepath.Join(parent, "assets")
	for _, d := range []string{outside, filepath.Join(base, "fonts")} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(outside, "secret.ttf"), []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "fonts", "Inter.ttf"), []byte("inter"), 0o644); err != nil {
		t.Fatal(err)
	}
	symlink(t, "Inter.ttf", filepath.Join(base, "fonts", "Alias.ttf"))
	symlink(t, filepath.Join("..", "..", "outside", "secret.ttf"), filepath.Join(base, "fonts", "Escape.ttf"))

	l, err := NewFilesystemLoader(base)
	if err != nil {
		t.Fatal(err)
	}

	if got, err := l.LoadFont("Alias"); err != nil || string(got) != "inter" {
		t.Errorf("LoadFont(Alias) = %q, %v; want link inside base to resolve", got, err)
	}
	if got, err := l.LoadFont("Escape"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("LoadFont(Escape) = %q, %v; want %v", got, err, ErrPathTraversal)
	}
}

func TestFilesystemLoader_SymlinkedFontsDir(t *testing.T) {
	t.Parallel()

	parent := t.TempDir()
	outside := filepath.Join(parent, "outside")
	base := filepath.Join(parent, "assets")
	for _, d := range []string{outside, base} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(outside, "Inter.ttf"), []byte("inter"), 0o644); err != nil {
		t.Fatal(err)
	}
	symlink(t, filepath.Join("..", "outside"), filepath.Join(base, "fonts"))

	l, err := NewFilesystemLoader(base)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := l.LoadFont("Inter"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("LoadFont() error = %v, want %v", err, ErrPathTraversal)
	}
	if _, err := l.Fonts(); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("Fonts() error = %v, want %v", err, ErrPathTraversal)
	}
}
