package server

// Notes:
// - exporters are real mdpress exporters with a fake diagram renderer, so the
//   tests run without mmdc or Chrome
// - documents go through the SQL store on an in-memory SQLite database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	mdpress "github.com/alnah/go-mdpress"
	"github.com/alnah/go-mdpress/internal/assets"
	"github.com/alnah/go-mdpress/internal/store"
)

type fakeRenderer struct{}

func (fakeRenderer) RenderDiagram(ctx context.Context, id, source string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.Contains(source, "broken") {
		return "", errors.New("parse error")
	}
	return fmt.Sprintf(`<svg id="%s" xmlns="http://www.w3.org/2000/svg" width="60" height="30" viewBox="0 0 60 30">`+
		`<rect width="60" height="30" fill="#2266cc"/></svg>`, id), nil
}

func newTestPool(t *testing.T) *mdpress.ExporterPool {
	t.Helper()
	pool := mdpress.NewExporterPool(2, mdpress.WithDiagramRenderer(fakeRenderer{}))
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func newTestStore(t *testing.T) *mdpress.SQLStore {
	t.Helper()
	st, err := mdpress.OpenStore(context.Background(), "sqlite", ":memory:", nil)
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	return New(newTestPool(t), newTestStore(t), opts...)
}

func do(t *testing.T, h http.Handler, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(t), http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeJSON[map[string]string](t, rec); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

// ---------------------------------------------------------------------------
// TestExport - POST /api/export
// ---------------------------------------------------------------------------

func TestExport_JSON(t *testing.T) {
	t.Parallel()

	body := `{"markdown":"# Title\n\nSome text.\n\n` + "```mermaid\\ngraph TD; A-->B\\n```" + `\n","title":"Report","page":{"size":"letter"}}`
	rec := do(t, newTestServer(t), http.MethodPost, "/api/export", "application/json", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	h := rec.Header()
	if got := h.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := h.Get("Content-Disposition"); got != `attachment; filename=document.pdf` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := h.Get("X-Mdpress-Pages"); got != "1" {
		t.Errorf("X-Mdpress-Pages = %q, want 1", got)
	}
	if got := h.Get("X-Mdpress-Failed-Diagrams"); got != "0" {
		t.Errorf("X-Mdpress-Failed-Diagrams = %q, want 0", got)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("body is not a PDF")
	}
}

func TestExport_RawMarkdown(t *testing.T) {
	t.Parallel()

	md := "Intro\n\n```mermaid\nbroken\n```\n"
	rec := do(t, newTestServer(t), http.MethodPost, "/api/export?title=Raw&font=Missing", "text/markdown; charset=utf-8", md)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Mdpress-Failed-Diagrams"); got != "1" {
		t.Errorf("X-Mdpress-Failed-Diagrams = %q, want 1", got)
	}
	if got := rec.Header().Get("X-Mdpress-Font-Fallback"); got != "true" {
		t.Errorf("X-Mdpress-Font-Fallback = %q, want true", got)
	}
}

func TestExport_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		opts        []Option
		wantStatus  int
	}{
		{"empty markdown", "application/json", `{"markdown":"  \n"}`, nil, http.StatusBadRequest},
		{"invalid page size", "application/json", `{"markdown":"x","page":{"size":"a0"}}`, nil, http.StatusBadRequest},
		{"invalid footer date", "application/json", `{"markdown":"x","footer":{"date":"auto:"}}`, nil, http.StatusBadRequest},
		{"malformed json", "application/json", `{"markdown":`, nil, http.StatusBadRequest},
		{"unknown field", "application/json", `{"markdown":"x","colour":"red"}`, nil, http.StatusBadRequest},
		{"unsupported content type", "application/xml", `<md/>`, nil, http.StatusUnsupportedMediaType},
		{"body too large", "text/plain", strings.Repeat("a", 200), []Option{WithMaxBodyBytes(64)}, http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, newTestServer(t, tt.opts...), http.MethodPost, "/api/export", tt.contentType, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if got := decodeJSON[map[string]string](t, rec); got["error"] == "" {
				t.Error("missing error message")
			}
		})
	}
}

func TestExport_ClosedPool(t *testing.T) {
	t.Parallel()

	pool := mdpress.NewExporterPool(1, mdpress.WithDiagramRenderer(fakeRenderer{}))
	_ = pool.Close()

	rec := do(t, New(pool, nil), http.MethodPost, "/api/export", "text/plain", "hello")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// TestPreview - POST /api/preview
// ---------------------------------------------------------------------------

func TestPreview(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/api/preview", "application/json",
		`{"markdown":"line\n\n`+"```mermaid\\ngraph LR; X-->Y\\n```"+`\n","title":"Notes"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	page := rec.Body.String()
	for _, want := range []string{"<title>Notes</title>", `class="preview-paragraph"`, `class="mermaid-diagram"`, "<svg"} {
		if !strings.Contains(page, want) {
			t.Errorf("preview missing %q", want)
		}
	}

	empty := do(t, srv, http.MethodPost, "/api/preview", "text/plain", "")
	if empty.Code != http.StatusOK {
		t.Errorf("empty preview status = %d, want 200", empty.Code)
	}
}

// ---------------------------------------------------------------------------
// TestDocuments - /api/documents
// ---------------------------------------------------------------------------

func TestDocuments_CRUD(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	put := do(t, srv, http.MethodPut, "/api/documents/notes", "application/json", `{"content":"# Notes","font":"Inter"}`)
	if put.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, body = %s", put.Code, put.Body.String())
	}
	saved := decodeJSON[documentResponse](t, put)
	if saved.ID == "" {
		t.Error("PUT returned empty id")
	}

	// Upsert keeps the id.
	again := decodeJSON[documentResponse](t, do(t, srv, http.MethodPut, "/api/documents/notes", "application/json", `{"content":"# Notes v2"}`))
	want := documentResponse{ID: saved.ID, Name: "notes", Content: "# Notes v2"}
	if diff := cmp.Diff(want, again); diff != "" {
		t.Errorf("upsert mismatch (-want +got):\n%s", diff)
	}

	do(t, srv, http.MethodPut, "/api/documents/todo", "application/json", `{"content":"- [ ] ship"}`)

	get := do(t, srv, http.MethodGet, "/api/documents/notes", "", "")
	if get.Code != http.StatusOK {
		t.Fatalf("GET status = %d", get.Code)
	}
	if diff := cmp.Diff(want, decodeJSON[documentResponse](t, get)); diff != "" {
		t.Errorf("GET mismatch (-want +got):\n%s", diff)
	}

	list := decodeJSON[struct {
		Documents []summaryResponse `json:"documents"`
	}](t, do(t, srv, http.MethodGet, "/api/documents", "", ""))
	var names []string
	for _, d := range list.Documents {
		names = append(names, d.Name)
	}
	if diff := cmp.Diff([]string{"notes", "todo"}, names, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}

	if del := do(t, srv, http.MethodDelete, "/api/documents/todo", "", ""); del.Code != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", del.Code)
	}
	if gone := do(t, srv, http.MethodGet, "/api/documents/todo", "", ""); gone.Code != http.StatusNotFound {
		t.Errorf("GET deleted status = %d, want 404", gone.Code)
	}
}

func TestDocuments_Errors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	longName := strings.Repeat("n", store.MaxNameLength+1)

	tests := []struct {
		name       string
		handler    http.Handler
		method     string
		target     string
		body       string
		wantStatus int
	}{
		{"missing document", srv, http.MethodGet, "/api/documents/nope", "", http.StatusNotFound},
		{"name too long", srv, http.MethodPut, "/api/documents/" + longName, `{"content":"x"}`, http.StatusBadRequest},
		{"bad body", srv, http.MethodPut, "/api/documents/x", `{"content":1}`, http.StatusBadRequest},
		{"no store", New(newTestPool(t), nil), http.MethodGet, "/api/documents", "", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, tt.handler, tt.method, tt.target, "application/json", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestFonts - GET /assets/fonts/{file}
// ---------------------------------------------------------------------------

func TestFonts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "fonts"), 0o755); err != nil {
		t.Fatal(err)
	}
	fontBytes := append([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x0c}, bytes.Repeat([]byte{0x80}, 64)...)
	if err := os.WriteFile(filepath.Join(dir, "fonts", "Inter.ttf"), fontBytes, 0o644); err != nil {
		t.Fatal(err)
	}
	loader, err := assets.NewFilesystemLoader(dir)
	if err != nil {
		t.Fatal(err)
	}
	srv := newTestServer(t, WithFonts(loader))

	rec := do(t, srv, http.MethodGet, "/assets/fonts/Inter.ttf", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if diff := cmp.Diff(fontBytes, rec.Body.Bytes()); diff != "" {
		t.Errorf("font bytes mismatch (-want +got):\n%s", diff)
	}
	if rec.Header().Get("Content-Type") == "" {
		t.Error("missing Content-Type")
	}

	tests := []struct {
		name       string
		handler    http.Handler
		target     string
		wantStatus int
	}{
		{"missing font", srv, "/assets/fonts/Roboto.ttf", http.StatusNotFound},
		{"wrong extension", srv, "/assets/fonts/Inter.otf", http.StatusNotFound},
		{"dotted name", srv, "/assets/fonts/a.b.ttf", http.StatusBadRequest},
		{"no font directory", newTestServer(t), "/assets/fonts/Inter.ttf", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if rec := do(t, tt.handler, http.MethodGet, tt.target, "", ""); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestFontCatalog(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "fonts"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"Noto Sans.ttf", "Inter.ttf", "README.txt"} {
		if err := os.WriteFile(filepath.Join(dir, "fonts", f), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	loader, err := assets.NewFilesystemLoader(dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		handler http.Handler
		want    []string
	}{
		{"asset directory", newTestServer(t, WithFonts(loader)), []string{"Inter", "Noto Sans"}},
		{"no asset directory", newTestServer(t), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := do(t, tt.handler, http.MethodGet, "/api/fonts", "", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var got struct {
				Fonts []string `json:"fonts"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decoding catalog: %v", err)
			}
			if diff := cmp.Diff(tt.want, got.Fonts); diff != "" {
				t.Errorf("catalog mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = io.WriteString(w, "short and stout")
	}))

	do(t, h, http.MethodGet, "/pot", "", "")
	out := buf.String()
	for _, want := range []string{"msg=request", "method=GET", "path=/pot", "status=418"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}
