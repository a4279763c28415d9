package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/alnah/go-mdpress/internal/assets"
)

// handleFontCatalog lists the fonts handleFont can serve.
func (s *Server) handleFontCatalog(w http.ResponseWriter, _ *http.Request) {
	names := []string{}
	if s.fonts != nil {
		listed, err := s.fonts.Fonts()
		if err != nil {
			s.log.Error("font catalog failed", "error", err)
			jsonError(w, "failed to list fonts", http.StatusInternalServerError)
			return
		}
		names = append(names, listed...)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"fonts": names})
}

// handleFont serves /assets/fonts/<name>.ttf, the path export clients fetch
// fonts from. Missing fonts are a plain 404; clients fall back silently.
func (s *Server) handleFont(w http.ResponseWriter, r *http.Request) {
	file := chi.URLParam(r, "file")
	name, ok := strings.CutSuffix(file, ".ttf")
	if !ok || s.fonts == nil {
		http.NotFound(w, r)
		return
	}

	data, err := s.fonts.LoadFont(name)
	switch {
	case errors.Is(err, assets.ErrFontNotFound):
		http.NotFound(w, r)
		return
	case errors.Is(err, assets.ErrInvalidAssetName), errors.Is(err, assets.ErrPathTraversal):
		http.Error(w, "invalid font name", http.StatusBadRequest)
		return
	case err != nil:
		s.log.Error("font read failed", "font", name, "error", err)
		http.Error(w, "failed to read font", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", mimetype.Detect(data).String())
	h.Set("Content-Length", strconv.Itoa(len(data)))
	h.Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
