package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	mdpress "github.com/alnah/go-mdpress"
)

// runWatch exports a markdown file, then re-exports it whenever it changes.
// Bursts of writes are collapsed into one export after the quiet period.
// With --save the content is also kept in the document store through an
// auto-saving session. Returns when ctx is cancelled.
func runWatch(ctx context.Context, args []string, env *Environment) error {
	f, positional, err := parseWatchFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f.export.common.config, env)
	if err != nil {
		return err
	}
	mergeExportFlags(&f.export, cfg)
	mergeStorageFlags(&f.storage, cfg)
	if f.delay != "" {
		cfg.AutoSave.Enabled = true
		cfg.AutoSave.Delay = f.delay
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if len(positional) == 0 {
		return ErrNoInput
	}
	input, err := filepath.Abs(positional[0])
	if err != nil {
		return err
	}
	if err := validateMarkdownExtension(input); err != nil {
		return err
	}
	if _, err := os.Stat(input); err != nil {
		return err
	}

	params := &exportParams{
		title:  f.export.title,
		font:   cfg.Font.Name,
		page:   buildPageSettings(cfg),
		footer: buildFooter(cfg),
		strict: f.export.strict,
	}
	if err := params.page.Validate(); err != nil {
		return err
	}
	if err := params.footer.Validate(); err != nil {
		return err
	}
	target := FileToExport{InputPath: input, OutputPath: resolveOutputPath(input, cfg.Output.DefaultDir, "")}

	log := newLogger(env.Stderr, f.export.common.quiet, f.export.common.verbose)
	exp, err := mdpress.NewExporter(exporterOptions(cfg, env, log)...)
	if err != nil {
		return err
	}
	defer func() { _ = exp.Close() }()

	delay := cfg.AutoSaveDelay()
	if delay <= 0 {
		delay = mdpress.DefaultAutoSaveDelay
	}

	var session *mdpress.Session
	if f.save != "" {
		st, err := openStore(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		session, err = startSession(ctx, st, f.save, input, cfg.AutoSaveDelay(), log, env)
		if err != nil {
			return err
		}
		defer func() {
			if err := session.Close(context.WithoutCancel(ctx)); err != nil {
				log.Error("final save failed", "document", f.save, "error", err)
			}
		}()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often replace files on save, so the directory is watched.
	if err := watcher.Add(filepath.Dir(input)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(input), err)
	}

	w := &watchLoop{
		target:  target,
		params:  params,
		exp:     exp,
		session: session,
		quiet:   f.export.common.quiet,
		verbose: f.export.common.verbose,
		env:     env,
		log:     log,
	}
	w.rebuild(ctx)

	changed := make(chan struct{}, 1)
	debounced := debounce.New(delay)
	notify := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	if !w.quiet {
		fmt.Fprintf(env.Stdout, "Watching %s (Ctrl+C to stop)\n", positional[0])
	}
	for {
		select {
		case <-ctx.Done():
			debounced(func() {})
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != input {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Debug("file changed", "path", event.Name, "op", event.Op.String())
			debounced(notify)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", "error", err)
		case <-changed:
			w.rebuild(ctx)
		}
	}
}

// startSession opens the stored document called name, or creates it from
// the file's current content.
func startSession(ctx context.Context, st mdpress.DocumentStore, name, path string, delay time.Duration, log *slog.Logger, env *Environment) (*mdpress.Session, error) {
	session := mdpress.NewSession(st,
		mdpress.WithAutoSaveDelay(delay),
		mdpress.WithSessionLogger(log),
		mdpress.OnSaved(func(snap mdpress.Snapshot) {
			log.Info("document saved", "document", snap.Document.Name, "version", snap.Version, "autosave", snap.AutoSave)
		}),
		mdpress.OnSaveError(func(snap mdpress.Snapshot, err error) {
			fmt.Fprintf(env.Stderr, "warning: auto-save of %s failed: %v%s\n", snap.Document.Name, err, hintFor(err, env))
		}),
	)

	content, err := os.ReadFile(path) // #nosec G304 -- user-provided path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadMarkdown, err)
	}

	if _, err := session.Open(ctx, name); err != nil && !errors.Is(err, mdpress.ErrDocumentNotFound) {
		return nil, err
	}
	session.Edit(string(content))
	if _, err := session.SaveAs(ctx, name); err != nil {
		return nil, err
	}
	return session, nil
}

// watchLoop holds the state of one watched file.
type watchLoop struct {
	target  FileToExport
	params  *exportParams
	exp     Exporter
	session *mdpress.Session
	quiet   bool
	verbose bool
	env     *Environment
	log     *slog.Logger
}

// rebuild re-exports the file and hands its content to the session. Failures
// are reported and watching continues.
func (w *watchLoop) rebuild(ctx context.Context) {
	if w.session != nil {
		content, err := os.ReadFile(w.target.InputPath) // #nosec G304 -- watched path
		if err != nil {
			w.log.Warn("reading watched file", "error", err)
		} else {
			w.session.Edit(string(content))
		}
	}

	out := exportFile(ctx, w.exp, w.target, w.params)
	if errors.Is(out.Err, context.Canceled) {
		return
	}
	if out.Err != nil {
		fmt.Fprintf(w.env.Stderr, "FAILED %s: %v%s\n", w.target.InputPath, out.Err, hintFor(out.Err, w.env))
		return
	}
	printOutcomes([]exportOutcome{out}, w.params.font, w.quiet, w.verbose, w.env)
}
