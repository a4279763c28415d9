// Package mdpress renders markdown documents to an HTML preview and exports
// them as paged PDFs, with mermaid diagrams rendered out of band.
//
// # Quick Start
//
// Create an exporter, export markdown, and close when done:
//
//	exp, err := mdpress.NewExporter()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exp.Close()
//
//	result, err := exp.Export(ctx, mdpress.Input{
//	    Markdown: "# Hello\n\nWorld",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile(result.FileName, result.PDF, 0o644)
//
// # Export Pipeline
//
//  1. Paragraph normalization: single newlines become hard breaks and extra
//     blank lines become empty paragraphs; diagram fences pass through
//  2. Markdown parsing via Goldmark into an owned visual tree; every
//     ```mermaid block gets a slot and a concurrent render task
//  3. Join: all diagram renders settle (SVG or source-text fallback)
//  4. Font installation from /assets/fonts/<name>.ttf, soft-failing to
//     Helvetica
//  5. Pagination into fixed-size pages, rasterizing diagrams at 2x
//  6. PDF serialization via fpdf, optionally optimized with pdfcpu
//
// Diagram, font and rasterization failures never fail an export; they are
// logged and counted in ExportResult.
//
// # Configuration
//
// Use functional options to customize the exporter:
//
//	exp, err := mdpress.NewExporter(
//	    mdpress.WithTimeout(time.Minute),
//	    mdpress.WithAssetPath("/srv/mdpress/assets"),
//	    mdpress.WithMermaid("mmdc", "neutral"),
//	    mdpress.WithLogger(slog.Default()),
//	)
//
// Per-export options are passed via Input:
//
//	result, err := exp.Export(ctx, mdpress.Input{
//	    Markdown: content,
//	    FontName: "Inter",
//	    Page:     &mdpress.PageSettings{Size: "letter", Margin: 15},
//	    Footer:   &mdpress.Footer{ShowPageNumber: true, Date: "auto"},
//	})
//
// # Editing Sessions
//
// A Session holds the document being edited and saves it to a DocumentStore
// two seconds after the last edit:
//
//	st, err := mdpress.OpenStore(ctx, "sqlite", "mdpress.db", nil)
//	sess := mdpress.NewSession(st)
//	sess.SaveAs(ctx, "notes")
//	sess.Edit("# Notes\n\nfirst line")
//
// # Parallel Processing
//
// ExporterPool bounds concurrent exports:
//
//	pool := mdpress.NewExporterPool(mdpress.ResolvePoolSize(0))
//	defer pool.Close()
//
//	exp, err := pool.Acquire(ctx)
//	defer pool.Release(exp)
//
// # External Tools
//
// Diagrams are rendered by the mermaid CLI (mmdc), which must be on PATH.
// WithChrome rasterizes diagrams with headless Chrome via go-rod, which
// downloads Chromium on first run. In containers and CI, set ROD_BROWSER_BIN
// to a pre-installed browser; the sandbox is then disabled.
package mdpress
