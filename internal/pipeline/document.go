package pipeline

import (
	"html"
	"strings"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{title}}</title>
{{style}}</head>
<body>
<article class="markdown-preview">
{{body}}
</article>
</body>
</html>
`

// DefaultTitle names untitled preview pages.
const DefaultTitle = "Document"

// Document returns a standalone HTML page showing the preview, with css
// inlined in the head. Slots still rendering show their placeholders.
func (p *Preview) Document(title, css string) string {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	style := ""
	if css != "" {
		style = "<style>\n" + escapeStyle(css) + "\n</style>\n"
	}
	return strings.NewReplacer(
		"{{title}}", html.EscapeString(title),
		"{{style}}", style,
		"{{body}}", p.HTML(),
	).Replace(pageTemplate)
}

// escapeStyle keeps css from closing its <style> element. "<\/" is the same
// string to a CSS parser.
func escapeStyle(css string) string {
	return strings.ReplaceAll(css, "</", `<\/`)
}
