package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	mdpress "github.com/alnah/go-mdpress"
)

// runPreview writes the HTML preview of one markdown file.
func runPreview(ctx context.Context, args []string, env *Environment) error {
	f, positional, err := parsePreviewFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(f.common.config, env)
	if err != nil {
		return err
	}
	mergeRenderFlags(&f.render, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if len(positional) == 0 {
		return ErrNoInput
	}
	input := positional[0]
	if err := validateMarkdownExtension(input); err != nil {
		return err
	}
	content, err := os.ReadFile(input) // #nosec G304 -- user-provided path
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReadMarkdown, err)
	}

	title := f.title
	if title == "" {
		title = titleFor(input)
	}

	log := newLogger(env.Stderr, f.common.quiet, f.common.verbose)
	exp, err := mdpress.NewExporter(exporterOptions(cfg, env, log)...)
	if err != nil {
		return err
	}
	defer func() { _ = exp.Close() }()

	page, err := exp.Preview(ctx, string(content), title)
	if err != nil {
		return err
	}

	if f.output == "" || f.output == "-" {
		_, err := io.WriteString(env.Stdout, page)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.output), dirPermissions); err != nil {
		return fmt.Errorf("%w: %w", ErrCreateOutputDir, err)
	}
	// #nosec G306 -- previews are meant to be readable
	if err := os.WriteFile(f.output, []byte(page), filePermissions); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	if !f.common.quiet {
		fmt.Fprintf(env.Stdout, "Created %s\n", f.output)
	}
	return nil
}
