package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	mdpress "github.com/alnah/go-mdpress"
)

// exportRequest is the JSON body of /api/export and /api/preview.
type exportRequest struct {
	Markdown string        `json:"markdown"`
	Title    string        `json:"title,omitempty"`
	Font     string        `json:"font,omitempty"`
	Page     *pageRequest  `json:"page,omitempty"`
	Footer   *footerFields `json:"footer,omitempty"`
}

type pageRequest struct {
	Size        string  `json:"size,omitempty"`
	Orientation string  `json:"orientation,omitempty"`
	Margin      float64 `json:"margin,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
}

type footerFields struct {
	Position       string `json:"position,omitempty"`
	ShowPageNumber bool   `json:"showPageNumber,omitempty"`
	Date           string `json:"date,omitempty"`
	Text           string `json:"text,omitempty"`
}

// handleExport renders the request to a PDF attachment named document.pdf.
// The body is either JSON or raw markdown (text/markdown, text/plain) with
// title and font taken from the query string.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExportRequest(r)
	if err != nil {
		jsonError(w, err.Error(), requestErrorStatus(err))
		return
	}

	input := mdpress.Input{
		Markdown: req.Markdown,
		Title:    req.Title,
		FontName: req.Font,
		Page:     s.page,
	}
	if req.Page != nil {
		input.Page = &mdpress.PageSettings{
			Size:        req.Page.Size,
			Orientation: req.Page.Orientation,
			Margin:      req.Page.Margin,
			Width:       req.Page.Width,
			Height:      req.Page.Height,
		}
	}
	if req.Footer != nil {
		input.Footer = &mdpress.Footer{
			Position:       req.Footer.Position,
			ShowPageNumber: req.Footer.ShowPageNumber,
			Date:           req.Footer.Date,
			Text:           req.Footer.Text,
		}
	}

	var result *mdpress.ExportResult
	err = s.withExporter(r.Context(), func(e *mdpress.Exporter) error {
		var exportErr error
		result, exportErr = e.Export(r.Context(), input)
		return exportErr
	})
	if err != nil {
		s.log.Warn("export failed", "error", err)
		jsonError(w, err.Error(), exportErrorStatus(err))
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.FileName}))
	h.Set("Content-Length", strconv.Itoa(len(result.PDF)))
	h.Set("X-Mdpress-Pages", strconv.Itoa(result.Pages))
	h.Set("X-Mdpress-Failed-Diagrams", strconv.Itoa(result.FailedDiagrams))
	h.Set("X-Mdpress-Skipped-Diagrams", strconv.Itoa(result.SkippedDiagrams))
	if result.FontFallback {
		h.Set("X-Mdpress-Font-Fallback", "true")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.PDF)
}

// handlePreview returns the standalone preview page. Empty markdown is
// allowed and yields an empty article.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := decodeExportRequest(r)
	if err != nil {
		jsonError(w, err.Error(), requestErrorStatus(err))
		return
	}

	var page string
	err = s.withExporter(r.Context(), func(e *mdpress.Exporter) error {
		var previewErr error
		page, previewErr = e.Preview(r.Context(), req.Markdown, req.Title)
		return previewErr
	})
	if err != nil {
		s.log.Warn("preview failed", "error", err)
		jsonError(w, err.Error(), exportErrorStatus(err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}

func (s *Server) withExporter(ctx context.Context, fn func(*mdpress.Exporter) error) error {
	e, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Release(e)
	return fn(e)
}

var errUnsupportedMediaType = errors.New("unsupported content type")

func decodeExportRequest(r *http.Request) (*exportRequest, error) {
	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		parsed, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", errUnsupportedMediaType, ct)
		}
		mediaType = parsed
	}

	switch mediaType {
	case "application/json":
		var req exportRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return nil, fmt.Errorf("invalid request body: %w", err)
		}
		return &req, nil
	case "text/markdown", "text/plain":
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		q := r.URL.Query()
		return &exportRequest{
			Markdown: string(body),
			Title:    q.Get("title"),
			Font:     q.Get("font"),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedMediaType, mediaType)
	}
}

func requestErrorStatus(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusBadRequest
	}
}

func exportErrorStatus(err error) int {
	switch {
	case errors.Is(err, mdpress.ErrEmptyMarkdown),
		errors.Is(err, mdpress.ErrInvalidPageSize),
		errors.Is(err, mdpress.ErrInvalidOrientation),
		errors.Is(err, mdpress.ErrInvalidMargin),
		errors.Is(err, mdpress.ErrInvalidDimensions),
		errors.Is(err, mdpress.ErrInvalidFooterPosition),
		errors.Is(err, mdpress.ErrInvalidDateFormat):
		return http.StatusBadRequest
	case errors.Is(err, mdpress.ErrPoolClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}
