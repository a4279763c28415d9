// Package store persists documents in SQL databases.
//
// Two dialects are supported: SQLite through modernc.org/sqlite (pure Go,
// the default for the CLI and single-node servers) and PostgreSQL through
// lib/pq. Documents are keyed by name; saving an existing name overwrites it
// and the last writer wins.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver
)

// Dialect names a supported database.
type Dialect string

// Supported dialects. The values double as database/sql driver names.
const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// MaxNameLength bounds document names.
const MaxNameLength = 255

// Sentinel errors for persistence.
var (
	ErrNotFound           = errors.New("document not found")
	ErrInvalidName        = errors.New("invalid document name")
	ErrUnsupportedDialect = errors.New("unsupported database dialect")
	ErrOpen               = errors.New("failed to open database")
	ErrMigrate            = errors.New("failed to migrate database")
	ErrQuery              = errors.New("database query failed")
)

// Document is a stored markdown document.
type Document struct {
	ID        string
	Name      string
	Content   string
	Font      string
	UpdatedAt time.Time
}

// Summary is a list entry.
type Summary struct {
	ID        string
	Name      string
	UpdatedAt time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	font       TEXT NOT NULL DEFAULT '',
	updated_at BIGINT NOT NULL
)`

const indexUpdatedAt = `CREATE INDEX IF NOT EXISTS documents_updated_at ON documents (updated_at DESC)`

const upsertSQL = `INSERT INTO documents (id, name, content, font, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (name) DO UPDATE SET
	content = excluded.content,
	font = excluded.font,
	updated_at = excluded.updated_at
RETURNING id`

// sqlitePragmas follow the usual single-writer setup.
var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Store is a SQL document store. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// ParseDialect maps a configuration string to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDialect, name)
	}
}

// Open connects to dsn and migrates the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	if dialect != SQLite && dialect != Postgres {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDialect, dialect)
	}
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	if dialect == SQLite {
		// SQLite only supports one writer; a single connection also keeps
		// ":memory:" databases alive across calls.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	s, err := New(ctx, db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and migrates the schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{schema, indexUpdatedAt}
	if s.dialect == SQLite {
		stmts = slices.Concat(sqlitePragmas, stmts)
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w: %v", ErrMigrate, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Save upserts the document called name.
func (s *Store) Save(ctx context.Context, name, content, font string) (Document, error) {
	name, err := ValidateName(name)
	if err != nil {
		return Document{}, err
	}

	now := s.now().UTC()
	doc := Document{Name: name, Content: content, Font: font, UpdatedAt: now}

	row := s.db.QueryRowContext(ctx, s.rebind(upsertSQL), uuid.NewString(), name, content, font, now.UnixNano())
	if err := row.Scan(&doc.ID); err != nil {
		return Document{}, fmt.Errorf("%w: saving %q: %v", ErrQuery, name, err)
	}
	s.logger.Debug("document saved", "name", name, "id", doc.ID, "bytes", len(content))
	return doc, nil
}

// Load returns the document called name.
func (s *Store) Load(ctx context.Context, name string) (Document, error) {
	name, err := ValidateName(name)
	if err != nil {
		return Document{}, err
	}

	var doc Document
	var updated int64
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT id, name, content, font, updated_at FROM documents WHERE name = ?`), name)
	switch err := row.Scan(&doc.ID, &doc.Name, &doc.Content, &doc.Font, &updated); {
	case errors.Is(err, sql.ErrNoRows):
		return Document{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	case err != nil:
		return Document{}, fmt.Errorf("%w: loading %q: %v", ErrQuery, name, err)
	}
	doc.UpdatedAt = time.Unix(0, updated).UTC()
	return doc, nil
}

// List returns every document, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, updated_at FROM documents ORDER BY updated_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing: %v", ErrQuery, err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		var updated int64
		if err := rows.Scan(&sum.ID, &sum.Name, &updated); err != nil {
			return nil, fmt.Errorf("%w: listing: %v", ErrQuery, err)
		}
		sum.UpdatedAt = time.Unix(0, updated).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: listing: %v", ErrQuery, err)
	}
	return out, nil
}

// Delete removes the document called name.
func (s *Store) Delete(ctx context.Context, name string) error {
	name, err := ValidateName(name)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM documents WHERE name = ?`), name)
	if err != nil {
		return fmt.Errorf("%w: deleting %q: %v", ErrQuery, name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// ValidateName trims name and checks it is usable as a document key.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidName, MaxNameLength)
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: contains NUL", ErrInvalidName)
	}
	return name, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
