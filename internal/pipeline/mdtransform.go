package pipeline

import (
	"context"
	"regexp"
	"strings"
)

// DiagramLanguage is the fence info string that marks a diagram block.
const DiagramLanguage = "mermaid"

// BlankParagraphText is the placeholder paragraph emitted for every extra
// blank line between two pieces of content. The composer turns it into a
// BlankParagraph node.
const BlankParagraphText = "&nbsp;"

// hardBreak is appended to a line to keep its newline through rendering.
const hardBreak = "  "

var (
	// Line ending normalization
	crlfOrCR = regexp.MustCompile(`\r\n?`)

	// Fence opener: up to three spaces, then ``` or ~~~ runs
	fenceOpen = regexp.MustCompile("^ {0,3}(`{3,}|~{3,})")

	// Indented code block (4 spaces or tab)
	indentedCodeBlock = regexp.MustCompile(`^( {4}|\t)`)
)

// MarkdownPreprocessor defines the contract for markdown preprocessing.
type MarkdownPreprocessor interface {
	PreprocessMarkdown(ctx context.Context, content string) string
}

// ParagraphPreprocessor normalizes line endings and paragraph intent before
// the markdown is parsed.
type ParagraphPreprocessor struct{}

var _ MarkdownPreprocessor = (*ParagraphPreprocessor)(nil)

// PreprocessMarkdown returns content ready for the goldmark parser.
func (p *ParagraphPreprocessor) PreprocessMarkdown(ctx context.Context, content string) string {
	if ctx.Err() != nil {
		return content
	}
	return NormalizeParagraphs(normalizeLineEndings(content))
}

// normalizeLineEndings converts \r\n and \r to \n.
func normalizeLineEndings(content string) string {
	return crlfOrCR.ReplaceAllString(content, "\n")
}

// NormalizeParagraphs rewrites markdown so single line breaks inside a
// paragraph and runs of blank lines survive rendering.
//
// Outside fenced code, a line followed by another non-blank line gets a hard
// line break (two trailing spaces). Every blank line beyond the first in a run
// between two pieces of content becomes a BlankParagraphText. Fenced blocks
// are copied byte for byte, and a paragraph unit that starts with a diagram
// fence is copied whole, lines after the closing fence included. The
// function is idempotent.
func NormalizeParagraphs(markdown string) string {
	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines))

	var (
		fence      string   // opening marker while inside a fenced block
		blanks     []string // pending blank lines
		seen       bool     // content emitted before the pending blanks
		inIndented bool     // inside an indented code block
		verbatim   bool     // current unit opened with a diagram fence
	)

	flushBlanks := func() {
		if seen && len(blanks) > 1 {
			out = append(out, "")
			for range blanks[1:] {
				out = append(out, BlankParagraphText, "")
			}
		} else {
			out = append(out, blanks...)
		}
		blanks = blanks[:0]
	}

	for i, line := range lines {
		if fence != "" {
			out = append(out, line)
			if closesFence(line, fence) {
				fence = ""
			}
			continue
		}

		if isBlankLine(line) {
			blanks = append(blanks, line)
			verbatim = false
			continue
		}

		prevBlank := len(blanks) > 0 || len(out) == 0
		flushBlanks()
		seen = true

		if m := fenceOpen.FindStringSubmatch(line); m != nil {
			fence = m[1]
			inIndented = false
			if prevBlank && IsDiagramFence(strings.TrimLeft(line, " `~")) {
				verbatim = true
			}
			out = append(out, line)
			continue
		}

		if verbatim {
			out = append(out, line)
			continue
		}

		if indentedCodeBlock.MatchString(line) && (prevBlank || inIndented) {
			inIndented = true
			out = append(out, line)
			continue
		}
		inIndented = false

		if i+1 < len(lines) && needsHardBreak(line, lines[i+1]) {
			line += hardBreak
		}
		out = append(out, line)
	}
	out = append(out, blanks...)

	return strings.Join(out, "\n")
}

// needsHardBreak reports whether the newline between line and next must be
// turned into a hard line break.
func needsHardBreak(line, next string) bool {
	if isBlankLine(next) || fenceOpen.MatchString(next) {
		return false
	}
	return !strings.HasSuffix(line, hardBreak) && !strings.HasSuffix(line, `\`)
}

// closesFence reports whether line closes a block opened with marker.
func closesFence(line, marker string) bool {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return false
	}
	run := len(trimmed) - len(strings.TrimLeft(trimmed, marker[:1]))
	if run < len(marker) {
		return false
	}
	return isBlankLine(trimmed[run:])
}

// isBlankLine returns true if the line is empty or contains only whitespace.
func isBlankLine(line string) bool {
	return strings.TrimSpace(line) == ""
}

// IsDiagramFence reports whether a fenced block info string marks a diagram.
func IsDiagramFence(info string) bool {
	fields := strings.Fields(info)
	return len(fields) > 0 && strings.EqualFold(fields[0], DiagramLanguage)
}
