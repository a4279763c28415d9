// Package dateutil expands footer date values such as "auto" or
// "auto:DD/MM/YYYY".
package dateutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDateFormat = errors.New("invalid date format")

// MaxFormatLength bounds user-supplied formats.
const MaxFormatLength = 50

// DefaultFormat renders plain "auto".
const DefaultFormat = "YYYY-MM-DD"

// Presets are named formats accepted after "auto:".
var Presets = map[string]string{
	"iso":      "YYYY-MM-DD",
	"european": "DD/MM/YYYY",
	"us":       "MM/DD/YYYY",
	"long":     "MMMM D, YYYY",
}

func pad2(n int) string { return fmt.Sprintf("%02d", n) }

// tokens are matched longest first.
var tokens = []struct {
	text   string
	render func(time.Time) string
}{
	{"YYYY", func(t time.Time) string { return fmt.Sprintf("%04d", t.Year()) }},
	{"MMMM", func(t time.Time) string { return t.Month().String() }},
	{"MMM", func(t time.Time) string { return t.Month().String()[:3] }},
	{"YY", func(t time.Time) string { return pad2(t.Year() % 100) }},
	{"MM", func(t time.Time) string { return pad2(int(t.Month())) }},
	{"DD", func(t time.Time) string { return pad2(t.Day()) }},
	{"M", func(t time.Time) string { return strconv.Itoa(int(t.Month())) }},
	{"D", func(t time.Time) string { return strconv.Itoa(t.Day()) }},
}

// Format renders t with format. Tokens are YYYY, YY, MMMM, MMM, MM, M, DD
// and D; text inside [brackets] and any other character is copied as is.
func Format(t time.Time, format string) (string, error) {
	if format == "" {
		return "", fmt.Errorf("%w: empty format", ErrInvalidDateFormat)
	}
	if len(format) > MaxFormatLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidDateFormat, MaxFormatLength)
	}

	var b strings.Builder
	rest := format
next:
	for rest != "" {
		if literal, ok := strings.CutPrefix(rest, "["); ok {
			text, after, closed := strings.Cut(literal, "]")
			if !closed {
				return "", fmt.Errorf("%w: unclosed bracket at position %d", ErrInvalidDateFormat, len(format)-len(rest))
			}
			b.WriteString(text)
			rest = after
			continue
		}
		for _, tok := range tokens {
			if after, ok := strings.CutPrefix(rest, tok.text); ok {
				b.WriteString(tok.render(t))
				rest = after
				continue next
			}
		}
		b.WriteByte(rest[0])
		rest = rest[1:]
	}
	return b.String(), nil
}

// Resolve expands value against now:
//
//	auto          now as YYYY-MM-DD
//	auto:FORMAT   now rendered with Format
//	auto:PRESET   a named preset (iso, european, us, long)
//
// "auto" and preset names match case-insensitively. Values not starting
// with "auto" are returned unchanged.
func Resolve(value string, now time.Time) (string, error) {
	if len(value) < len("auto") || !strings.EqualFold(value[:len("auto")], "auto") {
		return value, nil
	}

	format := DefaultFormat
	if rest := value[len("auto"):]; rest != "" {
		custom, ok := strings.CutPrefix(rest, ":")
		if !ok {
			return "", fmt.Errorf("%w: %q, use \"auto\" or \"auto:FORMAT\"", ErrInvalidDateFormat, value)
		}
		format = custom
		if preset, ok := Presets[strings.ToLower(custom)]; ok {
			format = preset
		}
	}
	return Format(now, format)
}
