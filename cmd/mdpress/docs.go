package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	mdpress "github.com/alnah/go-mdpress"
	"github.com/alnah/go-mdpress/internal/config"
)

// runDocs manages documents in the document store:
//
//	docs list
//	docs get <name>
//	docs put <name> <file.md>
//	docs delete <name>
func runDocs(ctx context.Context, args []string, env *Environment) error {
	f, positional, err := parseDocsFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	if len(positional) == 0 {
		return usageError(errors.New("docs: missing subcommand (list, get, put, delete)"))
	}

	sub, rest := positional[0], positional[1:]
	want := map[string]int{"list": 0, "get": 1, "put": 2, "delete": 1}
	n, ok := want[sub]
	if !ok {
		return usageError(fmt.Errorf("docs: unknown subcommand %q", sub))
	}
	if len(rest) != n {
		return usageError(fmt.Errorf("docs %s: expected %d argument(s), got %d", sub, n, len(rest)))
	}

	cfg, err := loadConfig(f.common.config, env)
	if err != nil {
		return err
	}
	mergeStorageFlags(&f.storage, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := newLogger(env.Stderr, f.common.quiet, f.common.verbose)
	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	switch sub {
	case "list":
		return listDocs(ctx, st, env.Stdout)
	case "get":
		doc, err := st.Load(ctx, rest[0])
		if err != nil {
			return err
		}
		_, err = io.WriteString(env.Stdout, doc.Markdown)
		return err
	case "put":
		return putDoc(ctx, st, rest[0], rest[1], f, env)
	default:
		if err := st.Delete(ctx, rest[0]); err != nil {
			return err
		}
		if !f.common.quiet {
			fmt.Fprintf(env.Stdout, "Deleted %s\n", rest[0])
		}
		return nil
	}
}

// openStore connects to the configured document database.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*mdpress.SQLStore, error) {
	log.Debug("opening document store", "driver", cfg.Storage.Driver)
	return mdpress.OpenStore(ctx, cfg.Storage.Driver, cfg.Storage.DSN, log)
}

func listDocs(ctx context.Context, st mdpress.DocumentStore, w io.Writer) error {
	docs, err := st.List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tUPDATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\n", d.Name, d.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// putDoc stores the contents of path under name through a session, the
// same way an editor's explicit save does.
func putDoc(ctx context.Context, st mdpress.DocumentStore, name, path string, f *docsFlags, env *Environment) error {
	if err := validateMarkdownExtension(path); err != nil {
		return err
	}
	content, err := os.ReadFile(path) // #nosec G304 -- user-provided path
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadMarkdown, err)
	}

	session := mdpress.NewSession(st, mdpress.WithAutoSaveDelay(0))
	defer func() { _ = session.Close(ctx) }()

	session.Edit(string(content))
	session.SetFont(f.font)
	snap, err := session.SaveAs(ctx, name)
	if err != nil {
		return err
	}
	if !f.common.quiet {
		fmt.Fprintf(env.Stdout, "Saved %s (%s)\n", snap.Document.Name, snap.Document.ID)
	}
	return nil
}
