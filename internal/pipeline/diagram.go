package pipeline

import (
	"context"
	"html"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alnah/go-mdpress/internal/visual"
)

// DiagramRenderer turns diagram source into vector markup. id is a fresh
// identity for this render attempt and must be used for any element ids the
// renderer emits.
type DiagramRenderer interface {
	RenderDiagram(ctx context.Context, id, source string) (string, error)
}

// Tasks owns the in-flight diagram renders of one composed document.
// Wait is the join point: once it returns nil every slot has settled.
type Tasks struct {
	ctx      context.Context
	renderer DiagramRenderer
	logger   *slog.Logger
	group    errgroup.Group
}

// NewTasks returns a task set whose renders run under ctx.
func NewTasks(ctx context.Context, renderer DiagramRenderer, logger *slog.Logger) *Tasks {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tasks{ctx: ctx, renderer: renderer, logger: logger}
}

// Go starts a render of the slot's current source. It never blocks.
func (t *Tasks) Go(d *visual.Diagram) {
	t.Render(d, d.Source())
}

// Render starts a render of source into d under a fresh identity. A render
// still in flight for d becomes stale and its result is dropped.
func (t *Tasks) Render(d *visual.Diagram, source string) {
	id := d.Begin(source)

	t.group.Go(func() error {
		var (
			markup string
			err    error
		)
		if t.renderer == nil {
			err = ErrNoDiagramRenderer
		} else {
			markup, err = t.renderer.RenderDiagram(t.ctx, id, source)
		}
		if err != nil {
			t.logger.Warn("diagram render failed, showing source",
				"diagram_id", id, "error", err)
		}
		if !d.Resolve(id, markup, err) {
			t.logger.Debug("dropping stale diagram render", "diagram_id", id)
		}
		return nil
	})
}

// Wait blocks until every started render has settled or ctx ends.
func (t *Tasks) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		_ = t.group.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// DiagramHTML returns the markup to display for a slot: the vector image once
// rendered, the escaped source in a <pre> block when rendering failed, and an
// empty placeholder while pending.
func DiagramHTML(d *visual.Diagram) string {
	switch d.State() {
	case visual.DiagramRendered:
		art, _ := d.Artifact()
		return art.Markup
	case visual.DiagramFailed:
		return "<pre>" + html.EscapeString(d.Source()) + "</pre>"
	default:
		return ""
	}
}
