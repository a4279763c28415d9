// Package server exposes export, preview, document and font endpoints over HTTP.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	mdpress "github.com/alnah/go-mdpress"
	"github.com/alnah/go-mdpress/internal/assets"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 4 << 20

// ExporterPool hands out exporters for the duration of one request.
type ExporterPool interface {
	Acquire(ctx context.Context) (*mdpress.Exporter, error)
	Release(e *mdpress.Exporter)
}

var _ ExporterPool = (*mdpress.ExporterPool)(nil)

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithFonts serves /assets/fonts/<name>.ttf from the fonts directory of an
// asset base path.
func WithFonts(loader assets.AssetLoader) Option {
	return func(s *Server) {
		s.fonts = loader
	}
}

// WithMaxBodyBytes limits request bodies. Zero or negative keeps the default.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithDefaultPage sets the page settings used when a request has none.
func WithDefaultPage(p *mdpress.PageSettings) Option {
	return func(s *Server) {
		s.page = p
	}
}

// Server is the HTTP API for mdpress.
type Server struct {
	router  chi.Router
	pool    ExporterPool
	store   mdpress.DocumentStore
	fonts   assets.AssetLoader
	page    *mdpress.PageSettings
	maxBody int64
	log     *slog.Logger
}

// New creates a Server. store may be nil, in which case the document
// endpoints answer 503.
func New(pool ExporterPool, store mdpress.DocumentStore, opts ...Option) *Server {
	s := &Server{
		pool:    pool,
		store:   store,
		maxBody: DefaultMaxBodyBytes,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(limitBody(s.maxBody))

		r.Post("/api/export", s.handleExport)
		r.Post("/api/preview", s.handlePreview)

		r.Get("/api/documents", s.handleListDocuments)
		r.Get("/api/documents/{name}", s.handleGetDocument)
		r.Put("/api/documents/{name}", s.handlePutDocument)
		r.Delete("/api/documents/{name}", s.handleDeleteDocument)
	})

	r.Get("/api/fonts", s.handleFontCatalog)
	r.Get("/assets/fonts/{file}", s.handleFont)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
