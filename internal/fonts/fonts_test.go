package fonts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/alnah/go-mdpress/internal/assets"
	"github.com/alnah/go-mdpress/internal/pdfdoc"
)

// fontBytes starts with the TrueType magic so it is sniffed as a font.
var fontBytes = []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x0a, 0x00, 0x80, 0x00, 0x03, 0x00, 0x20}

// fakeTable records registrations.
type fakeTable struct {
	mu       sync.Mutex
	vfs      map[string][]byte
	faces    []string
	vfsErr   error
	fontErr  error
	panicMsg string
}

func newFakeTable() *fakeTable { return &fakeTable{vfs: make(map[string][]byte)} }

func (f *fakeTable) AddFileToVFS(fileName string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vfsErr != nil {
		return f.vfsErr
	}
	f.vfs[fileName] = data
	return nil
}

func (f *fakeTable) AddFont(fileName, family, style string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.fontErr != nil {
		return f.fontErr
	}
	f.faces = append(f.faces, fileName+":"+family+":"+style)
	return nil
}

// fontServer serves body with status for every request and counts hits.
func fontServer(t *testing.T, status int, body []byte) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// ---------------------------------------------------------------------------
// TestSourcePath - Path conventions
// ---------------------------------------------------------------------------

func TestSourcePath(t *testing.T) {
	t.Parallel()

	if got := SourcePath("Inter"); got != "/assets/fonts/Inter.ttf" {
		t.Errorf("SourcePath() = %q", got)
	}
	if got := FileName("Inter"); got != "Inter.ttf" {
		t.Errorf("FileName() = %q", got)
	}
}

func TestNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "conventional path", path: "/assets/fonts/Inter.ttf", want: "Inter"},
		{name: "name with space", path: "/assets/fonts/Noto Sans.ttf", want: "Noto Sans"},
		{name: "wrong prefix", path: "/fonts/Inter.ttf", wantErr: ErrSourcePath},
		{name: "wrong extension", path: "/assets/fonts/Inter.otf", wantErr: ErrSourcePath},
		{name: "empty name", path: "/assets/fonts/.ttf", wantErr: ErrSourcePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NameFromPath(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NameFromPath() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NameFromPath() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestInstall - Success and soft failures
// ---------------------------------------------------------------------------

func TestInstall_Success(t *testing.T) {
	t.Parallel()

	srv, _ := fontServer(t, http.StatusOK, fontBytes)
	table := newFakeTable()
	inst := NewInstaller(&HTTPFetcher{BaseURL: srv.URL, Client: srv.Client()})

	if !inst.Install(context.Background(), table, "Inter", SourcePath("Inter"), "") {
		t.Fatal("Install() = false, want true")
	}
	if diff := cmp.Diff([]string{"Inter.ttf:Inter:normal"}, table.faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(fontBytes, table.vfs["Inter.ttf"]); diff != "" {
		t.Errorf("vfs mismatch (-want +got):\n%s", diff)
	}

	rec, ok := inst.Record("Inter", "normal")
	if !ok || !rec.Installed {
		t.Errorf("Record() = %+v, %v, want installed", rec, ok)
	}
}

func TestInstall_SoftFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   []byte
		table  func() *fakeTable
	}{
		{name: "not found", status: http.StatusNotFound, body: []byte("missing")},
		{name: "server error", status: http.StatusInternalServerError, body: fontBytes},
		{name: "empty body", status: http.StatusOK, body: nil},
		{name: "html error page", status: http.StatusOK, body: []byte("<!DOCTYPE html><html><body>Not here</body></html>")},
		{name: "woff2 payload", status: http.StatusOK, body: append([]byte("wOF2\x00\x01\x00\x00"), make([]byte, 64)...)},
		{name: "png payload", status: http.StatusOK, body: append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)},
		{
			name: "vfs rejects", status: http.StatusOK, body: fontBytes,
			table: func() *fakeTable { f := newFakeTable(); f.vfsErr = errors.New("vfs full"); return f },
		},
		{
			name: "registration error", status: http.StatusOK, body: fontBytes,
			table: func() *fakeTable { f := newFakeTable(); f.fontErr = errors.New("bad ttf"); return f },
		},
		{
			name: "registration panic", status: http.StatusOK, body: fontBytes,
			table: func() *fakeTable { f := newFakeTable(); f.panicMsg = "index out of range"; return f },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv, _ := fontServer(t, tt.status, tt.body)
			table := newFakeTable()
			if tt.table != nil {
				table = tt.table()
			}
			inst := NewInstaller(&HTTPFetcher{BaseURL: srv.URL})

			if inst.Install(context.Background(), table, "Inter", SourcePath("Inter"), "normal") {
				t.Error("Install() = true, want false")
			}
			if len(table.faces) != 0 {
				t.Errorf("faces = %v, want none", table.faces)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"truetype", fontBytes, nil},
		{"apple truetype", append([]byte("true"), make([]byte, 16)...), nil},
		{"empty", nil, ErrEmptyFont},
		{"html", []byte("<html><body>404</body></html>"), ErrNotFont},
		{"woff2", append([]byte("wOF2\x00\x01\x00\x00"), make([]byte, 64)...), ErrNotFont},
		{"opentype cff", append([]byte("OTTO"), make([]byte, 64)...), ErrNotFont},
		{"png", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...), ErrNotFont},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if err := validate(tt.data); !errors.Is(err, tt.wantErr) {
				t.Errorf("validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstall_TransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	inst := NewInstaller(&HTTPFetcher{BaseURL: url})
	if inst.Install(context.Background(), newFakeTable(), "Inter", SourcePath("Inter"), "") {
		t.Error("Install() = true with closed server")
	}
}

func TestInstall_FailureCachedForLifetime(t *testing.T) {
	t.Parallel()

	srv, hits := fontServer(t, http.StatusNotFound, nil)
	inst := NewInstaller(&HTTPFetcher{BaseURL: srv.URL})

	for range 3 {
		if inst.Install(context.Background(), newFakeTable(), "Inter", SourcePath("Inter"), "") {
			t.Fatal("Install() = true, want false")
		}
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	rec, ok := inst.Record("Inter", "")
	if !ok || rec.Installed {
		t.Errorf("Record() = %+v, %v, want cached failure", rec, ok)
	}
}

func TestInstall_SuccessCachedAcrossTables(t *testing.T) {
	t.Parallel()

	srv, hits := fontServer(t, http.StatusOK, fontBytes)
	inst := NewInstaller(&HTTPFetcher{BaseURL: srv.URL})

	a, b := newFakeTable(), newFakeTable()
	if !inst.Install(context.Background(), a, "Inter", SourcePath("Inter"), "") ||
		!inst.Install(context.Background(), b, "Inter", SourcePath("Inter"), "") {
		t.Fatal("Install() = false, want true")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	if len(b.faces) != 1 {
		t.Errorf("second table faces = %v, want one", b.faces)
	}
}

func TestInstall_CancelledContext(t *testing.T) {
	t.Parallel()

	srv, hits := fontServer(t, http.StatusOK, fontBytes)
	inst := NewInstaller(&HTTPFetcher{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if inst.Install(ctx, newFakeTable(), "Inter", SourcePath("Inter"), "") {
		t.Error("Install() = true with cancelled context")
	}
	if hits.Load() != 0 {
		t.Error("fetch issued with cancelled context")
	}
}

func TestInstall_NilFetcher(t *testing.T) {
	t.Parallel()

	if NewInstaller(nil).Install(context.Background(), newFakeTable(), "Inter", SourcePath("Inter"), "") {
		t.Error("Install() = true without fetcher")
	}
}

func TestInstall_GarbageIntoPDFDocument(t *testing.T) {
	t.Parallel()

	srv, _ := fontServer(t, http.StatusOK, append([]byte{0x00, 0x01, 0x00, 0x00}, make([]byte, 64)...))
	doc := pdfdoc.New(pdfdoc.Options{PageWidth: 210, PageHeight: 297, Margin: 10})
	inst := NewInstaller(&HTTPFetcher{BaseURL: srv.URL})

	if inst.Install(context.Background(), doc, "Broken", SourcePath("Broken"), "") {
		t.Fatal("Install() = true for truncated font")
	}
	if doc.UseFont("Broken") {
		t.Error("UseFont() = true after failed install")
	}
}

// ---------------------------------------------------------------------------
// TestAssetFetcher - Local asset directory
// ---------------------------------------------------------------------------

func TestAssetFetcher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "fonts"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fonts", "Inter.ttf"), fontBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	loader, err := assets.NewFilesystemLoader(dir)
	if err != nil {
		t.Fatalf("NewFilesystemLoader() error = %v", err)
	}
	f := &AssetFetcher{Loader: loader}

	t.Run("existing font", func(t *testing.T) {
		t.Parallel()

		got, err := f.Fetch(context.Background(), SourcePath("Inter"))
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if diff := cmp.Diff(fontBytes, got); diff != "" {
			t.Errorf("Fetch() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing font", func(t *testing.T) {
		t.Parallel()

		if _, err := f.Fetch(context.Background(), SourcePath("Missing")); !errors.Is(err, ErrFetch) {
			t.Errorf("Fetch() error = %v, want %v", err, ErrFetch)
		}
	})

	t.Run("bad path", func(t *testing.T) {
		t.Parallel()

		if _, err := f.Fetch(context.Background(), "/etc/passwd"); !errors.Is(err, ErrSourcePath) {
			t.Errorf("Fetch() error = %v, want %v", err, ErrSourcePath)
		}
	})

	t.Run("installs through installer", func(t *testing.T) {
		t.Parallel()

		table := newFakeTable()
		if !NewInstaller(f).Install(context.Background(), table, "Inter", SourcePath("Inter"), "") {
			t.Error("Install() = false, want true")
		}
	})
}
