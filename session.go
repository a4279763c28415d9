package mdpress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// DefaultAutoSaveDelay is the quiet period after the last edit before an
// auto-save fires.
const DefaultAutoSaveDelay = 2 * time.Second

// autoSaveTimeout bounds one background save.
const autoSaveTimeout = 30 * time.Second

// Snapshot is an immutable copy of a session's state at one version.
type Snapshot struct {
	Document Document
	// Version increases on every change to the document.
	Version uint64
	// Saved reports whether Version is persisted.
	Saved bool
	// AutoSave is set on snapshots handed to auto-save callbacks.
	AutoSave bool
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithAutoSaveDelay sets the debounce delay. Zero or negative disables
// auto-save.
func WithAutoSaveDelay(d time.Duration) SessionOption {
	return func(s *Session) {
		s.delay = d
	}
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnSaved registers a callback invoked after every successful save with the
// snapshot that was written.
func OnSaved(fn func(Snapshot)) SessionOption {
	return func(s *Session) {
		s.onSaved = fn
	}
}

// OnSaveError registers a callback for auto-save failures. Explicit saves
// return their error instead.
func OnSaveError(fn func(Snapshot, error)) SessionOption {
	return func(s *Session) {
		s.onError = fn
	}
}

// Session holds the document being edited and auto-saves it. Every edit
// restarts the auto-save timer, so a burst of edits produces one save of
// the latest content. Save bypasses the timer.
type Session struct {
	store   DocumentStore
	delay   time.Duration
	logger  *slog.Logger
	onSaved func(Snapshot)
	onError func(Snapshot, error)

	mu       sync.Mutex
	doc      Document
	version  uint64
	saved    uint64
	autoSave bool
	closed   bool
	debounce func(func())

	// saveMu serializes writes. written and writtenName record the newest
	// stored version so an older snapshot never lands after it.
	saveMu      sync.Mutex
	written     uint64
	writtenName string
}

// NewSession returns an empty, unnamed session persisting to store.
// Auto-save is enabled with DefaultAutoSaveDelay.
func NewSession(store DocumentStore, opts ...SessionOption) *Session {
	s := &Session{
		store:    store,
		delay:    DefaultAutoSaveDelay,
		logger:   slog.New(slog.DiscardHandler),
		autoSave: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.delay > 0 {
		s.debounce = debounce.New(s.delay)
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Edit replaces the markdown and schedules an auto-save.
func (s *Session) Edit(markdown string) Snapshot {
	return s.change(func(d *Document) { d.Markdown = markdown })
}

// SetFont changes the document font and schedules an auto-save.
func (s *Session) SetFont(name string) Snapshot {
	name = strings.TrimSpace(name)
	return s.change(func(d *Document) { d.FontName = name })
}

// SetAutoSave enables or disables auto-save. Disabling cancels a pending
// save; enabling schedules one if there are unsaved changes.
func (s *Session) SetAutoSave(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSave = enabled
	if enabled {
		if s.version != s.saved {
			s.scheduleLocked()
		}
		return
	}
	s.cancelLocked()
}

// Save writes the current document now, cancelling any pending auto-save.
func (s *Session) Save(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	s.cancelLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.write(ctx, snap)
}

// SaveAs renames the document and saves it under the new name. The store
// upserts by name, so saving over an existing name replaces that document.
func (s *Session) SaveAs(ctx context.Context, name string) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Snapshot{}, ErrUntitled
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	if s.doc.Name != name {
		s.doc.Name = name
		s.doc.ID = ""
		s.version++
	}
	s.cancelLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return s.write(ctx, snap)
}

// Open replaces the session's document with the stored document called name.
// A pending auto-save of the previous document is cancelled, not flushed.
func (s *Session) Open(ctx context.Context, name string) (Snapshot, error) {
	if s.store == nil {
		return Snapshot{}, ErrNoStore
	}
	doc, err := s.store.Load(ctx, name)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	s.cancelLocked()
	s.doc = doc
	s.version++
	s.saved = s.version
	return s.snapshotLocked(), nil
}

// Close cancels a pending auto-save and, when the document is named and has
// unsaved changes, saves it. The session rejects further saves.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancelLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if snap.Saved || snap.Document.Name == "" || s.store == nil {
		return nil
	}
	_, err := s.write(ctx, snap)
	return err
}

func (s *Session) change(apply func(*Document)) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply(&s.doc)
	s.version++
	if s.autoSave && !s.closed {
		s.scheduleLocked()
	}
	return s.snapshotLocked()
}

// scheduleLocked restarts the debounce timer. The callback reads the state
// when it fires, so it always saves the latest edit.
func (s *Session) scheduleLocked() {
	if s.debounce == nil || s.doc.Name == "" || s.store == nil {
		return
	}
	s.debounce(s.autoSaveNow)
}

// cancelLocked replaces the pending callback with a no-op.
func (s *Session) cancelLocked() {
	if s.debounce != nil {
		s.debounce(func() {})
	}
}

func (s *Session) autoSaveNow() {
	s.mu.Lock()
	if s.closed || !s.autoSave || s.version == s.saved {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	snap.AutoSave = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), autoSaveTimeout)
	defer cancel()
	if _, err := s.write(ctx, snap); err != nil {
		s.logger.Warn("auto-save failed", "document", snap.Document.Name, "version", snap.Version, "error", err)
		if s.onError != nil {
			s.onError(snap, err)
		}
	}
}

// write persists snap. On success the session records the id and marks the
// version saved; a failed save leaves the session unchanged. A snapshot older
// than the last one stored under the same name is dropped and returned
// unsaved.
func (s *Session) write(ctx context.Context, snap Snapshot) (Snapshot, error) {
	if s.store == nil {
		return Snapshot{}, ErrNoStore
	}
	if snap.Document.Name == "" {
		return Snapshot{}, ErrUntitled
	}

	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if snap.Document.Name == s.writtenName && snap.Version < s.written {
		s.logger.Debug("skipping stale save", "document", snap.Document.Name, "version", snap.Version, "stored", s.written)
		snap.Saved = false
		return snap, nil
	}

	saved, err := s.store.Save(ctx, snap.Document.Markdown, snap.Document.Name, snap.Document.FontName)
	if err != nil {
		return Snapshot{}, fmt.Errorf("saving %q: %w", snap.Document.Name, err)
	}
	s.written, s.writtenName = snap.Version, snap.Document.Name

	s.mu.Lock()
	if s.doc.Name == snap.Document.Name {
		s.doc.ID = saved.ID
		if snap.Version > s.saved {
			s.saved = snap.Version
		}
	}
	s.mu.Unlock()

	snap.Document.ID = saved.ID
	snap.Saved = true
	s.logger.Debug("document saved", "document", snap.Document.Name, "version", snap.Version, "autosave", snap.AutoSave)
	if s.onSaved != nil {
		s.onSaved(snap)
	}
	return snap, nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Document: s.doc,
		Version:  s.version,
		Saved:    s.version == s.saved,
	}
}
