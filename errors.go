package mdpress

import (
	"errors"

	"github.com/alnah/go-mdpress/internal/dateutil"
	"github.com/alnah/go-mdpress/internal/store"
)

// Sentinel errors for library operations.
var (
	ErrEmptyMarkdown = errors.New("markdown content cannot be empty")
	ErrExport        = errors.New("export failed")

	// Page settings validation errors.
	ErrInvalidPageSize    = errors.New("invalid page size")
	ErrInvalidOrientation = errors.New("invalid orientation")
	ErrInvalidMargin      = errors.New("invalid margin")
	ErrInvalidDimensions  = errors.New("invalid page dimensions")

	// Footer validation errors.
	ErrInvalidFooterPosition = errors.New("invalid footer position")

	// ErrInvalidDateFormat reports a malformed "auto:FORMAT" footer date.
	ErrInvalidDateFormat = dateutil.ErrInvalidDateFormat

	// Asset loading errors.
	ErrInvalidAssetPath = errors.New("invalid asset path")

	// Pool errors.
	ErrPoolClosed = errors.New("exporter pool is closed")

	// Session errors.
	ErrUntitled      = errors.New("document has no name")
	ErrSessionClosed = errors.New("session is closed")
	ErrNoStore       = errors.New("no document store configured")
)

// Persistence errors, re-exported from the SQL store.
var (
	ErrDocumentNotFound = store.ErrNotFound
	ErrInvalidName      = store.ErrInvalidName
)
