package mdpress

import (
	"context"
	"log/slog"

	"github.com/alnah/go-mdpress/internal/store"
)

// DocumentStore persists documents by name. Saving an existing name
// overwrites it; the last writer wins.
type DocumentStore interface {
	Save(ctx context.Context, content, name, font string) (Document, error)
	Load(ctx context.Context, name string) (Document, error)
	List(ctx context.Context) ([]DocumentSummary, error)
}

// SQLStore is a DocumentStore backed by SQLite or PostgreSQL.
type SQLStore struct {
	db *store.Store
}

var _ DocumentStore = (*SQLStore)(nil)

// OpenStore connects to a database and migrates its schema.
// dialect is "sqlite" (default when empty) or "postgres"; for SQLite the
// dsn is a file path or ":memory:".
func OpenStore(ctx context.Context, dialect, dsn string, logger *slog.Logger) (*SQLStore, error) {
	d, err := store.ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(ctx, d, dsn, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return &SQLStore{db: db}, nil
}

// Save implements DocumentStore.
func (s *SQLStore) Save(ctx context.Context, content, name, font string) (Document, error) {
	doc, err := s.db.Save(ctx, name, content, font)
	if err != nil {
		return Document{}, err
	}
	return fromStored(doc), nil
}

// Load implements DocumentStore.
func (s *SQLStore) Load(ctx context.Context, name string) (Document, error) {
	doc, err := s.db.Load(ctx, name)
	if err != nil {
		return Document{}, err
	}
	return fromStored(doc), nil
}

// List implements DocumentStore. The most recently updated document comes first.
func (s *SQLStore) List(ctx context.Context) ([]DocumentSummary, error) {
	rows, err := s.db.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]DocumentSummary, len(rows))
	for i, r := range rows {
		out[i] = DocumentSummary(r)
	}
	return out, nil
}

// Delete removes the document called name.
func (s *SQLStore) Delete(ctx context.Context, name string) error {
	return s.db.Delete(ctx, name)
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func fromStored(d store.Document) Document {
	return Document{
		ID:       d.ID,
		Name:     d.Name,
		Markdown: d.Content,
		FontName: d.Font,
	}
}
