package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	mdpress "github.com/alnah/go-mdpress"
)

type documentResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
	Font    string `json:"font,omitempty"`
}

type summaryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type putDocumentRequest struct {
	Content string `json:"content"`
	Font    string `json:"font,omitempty"`
}

// deleter is implemented by stores that support removal.
type deleter interface {
	Delete(ctx context.Context, name string) error
}

// handleListDocuments lists documents, most recently updated first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	list, err := s.store.List(r.Context())
	if err != nil {
		s.storeError(w, "list", err)
		return
	}
	docs := make([]summaryResponse, len(list))
	for i, d := range list {
		docs[i] = summaryResponse(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	doc, err := s.store.Load(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.storeError(w, "load", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// handlePutDocument upserts the document by name.
func (s *Server) handlePutDocument(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var req putDocumentRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), requestErrorStatus(err))
		return
	}
	doc, err := s.store.Save(r.Context(), req.Content, chi.URLParam(r, "name"), req.Font)
	if err != nil {
		s.storeError(w, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	d, ok := s.store.(deleter)
	if !ok {
		jsonError(w, "document store does not support deletion", http.StatusMethodNotAllowed)
		return
	}
	if err := d.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.storeError(w, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		jsonError(w, mdpress.ErrNoStore.Error(), http.StatusServiceUnavailable)
		return false
	}
	return true
}

func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, mdpress.ErrDocumentNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, mdpress.ErrInvalidName):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("document store failed", "op", op, "error", err)
		jsonError(w, "failed to "+op+" document", http.StatusInternalServerError)
	}
}

func toDocumentResponse(d mdpress.Document) documentResponse {
	return documentResponse{ID: d.ID, Name: d.Name, Content: d.Markdown, Font: d.FontName}
}
