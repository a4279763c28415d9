// Package pipeline implements the markdown preview pipeline.
//
// The stages are:
//   - Paragraph normalization (hard line breaks, blank paragraphs)
//   - Parsing with goldmark and substitution of preview nodes
//   - Asynchronous diagram rendering into per-block slots
//   - Assembly of the preview HTML and the owned visual tree
//
// Pagination and PDF serialization live in internal/layout and
// internal/pdfdoc. They only read the visual tree, after Preview.Wait.
package pipeline
