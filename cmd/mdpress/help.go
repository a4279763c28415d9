package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdpress <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  export     Export markdown files to PDF")
	fmt.Fprintln(w, "  watch      Re-export a markdown file whenever it changes")
	fmt.Fprintln(w, "  preview    Render the HTML preview of a markdown file")
	fmt.Fprintln(w, "  docs       List, read, store and delete saved documents")
	fmt.Fprintln(w, "  doctor     Check system configuration")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'mdpress help <command>' for details on a specific command.")
}

func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show debug logs and timings")
}

func printRenderUsage(w io.Writer) {
	fmt.Fprintln(w, "Rendering:")
	fmt.Fprintln(w, "  -f, --font <name>         Body font, loaded from fonts/<name>.ttf")
	fmt.Fprintln(w, "      --font-url <url>      Fetch fonts from <url>/assets/fonts/<name>.ttf")
	fmt.Fprintln(w, "      --assets <dir>        Custom asset directory (styles/, fonts/)")
	fmt.Fprintln(w, "      --mmdc <path>         Mermaid CLI executable")
	fmt.Fprintln(w, "      --theme <s>           Mermaid theme: default, dark, forest, neutral")
	fmt.Fprintln(w, "      --diagram-jobs <n>    Concurrent mermaid processes")
	fmt.Fprintln(w, "      --chrome              Rasterize diagrams with headless Chrome")
	fmt.Fprintln(w, "      --scale <f>           Diagram rasterization scale (default 2)")
	fmt.Fprintln(w, "  -t, --timeout <d>         Export timeout (e.g., 30s, 2m)")
	fmt.Fprintln(w, "      --optimize            Optimize PDF output")
}

func printPageUsage(w io.Writer) {
	fmt.Fprintln(w, "Page:")
	fmt.Fprintln(w, "  -p, --page-size <s>       Page size: a4, letter, legal")
	fmt.Fprintln(w, "      --orientation <s>     Orientation: portrait, landscape")
	fmt.Fprintln(w, "      --margin <mm>         Margin in millimetres (5-75)")
	fmt.Fprintln(w, "      --width <mm>          Custom page width (with --height)")
	fmt.Fprintln(w, "      --height <mm>         Custom page height (with --width)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Footer:")
	fmt.Fprintln(w, "      --footer-position <s> Position: left, center, right")
	fmt.Fprintln(w, "      --footer-text <s>     Custom footer text")
	fmt.Fprintln(w, "      --footer-date <s>     Date: \"auto\", \"auto:FORMAT\", or literal")
	fmt.Fprintln(w, "                            Tokens: YYYY, YY, MMMM, MMM, MM, M, DD, D")
	fmt.Fprintln(w, "                            Presets (case-insensitive): iso, european, us, long")
	fmt.Fprintln(w, "      --footer-page-number  Show page numbers")
	fmt.Fprintln(w, "      --no-footer           Disable footer")
}

func printStorageUsage(w io.Writer) {
	fmt.Fprintln(w, "Storage:")
	fmt.Fprintln(w, "      --driver <s>          Database driver: sqlite, postgres")
	fmt.Fprintln(w, "      --db <dsn>            Database file (sqlite) or URL (postgres)")
}

// printExportUsage prints usage for the export command.
func printExportUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdpress export <input> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Export markdown files to PDF. Diagrams that cannot be rendered are")
	fmt.Fprintln(w, "kept as source text and reported as warnings.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments:")
	fmt.Fprintln(w, "  input    Markdown file or directory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input/Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output file or directory")
	fmt.Fprintln(w, "  -w, --workers <n>         Parallel exports (0 = auto)")
	fmt.Fprintln(w, "      --title <s>           PDF title (default: file name)")
	fmt.Fprintln(w, "      --strict              Fail when a diagram cannot be rendered")
	fmt.Fprintln(w)
	printPageUsage(w)
	fmt.Fprintln(w)
	printRenderUsage(w)
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// printWatchUsage prints usage for the watch command.
func printWatchUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdpress watch <file.md> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Export a markdown file, then export it again after each change.")
	fmt.Fprintln(w, "Accepts every export flag.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Watch:")
	fmt.Fprintln(w, "      --delay <d>           Quiet period after the last change (default 2s)")
	fmt.Fprintln(w, "      --save <name>         Also auto-save the content as a stored document")
	fmt.Fprintln(w)
	printStorageUsage(w)
}

// printPreviewUsage prints usage for the preview command.
func printPreviewUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdpress preview <file.md> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Render the HTML preview of a markdown file.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output HTML file (default: stdout)")
	fmt.Fprintln(w, "      --title <s>           Page title (default: file name)")
	fmt.Fprintln(w)
	printRenderUsage(w)
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// printDocsUsage prints usage for the docs command.
func printDocsUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdpress docs <subcommand> [args] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Manage documents in the document store.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Subcommands:")
	fmt.Fprintln(w, "  list                      List documents, most recently updated first")
	fmt.Fprintln(w, "  get <name>                Print a document's markdown")
	fmt.Fprintln(w, "  put <name> <file.md>      Store a markdown file under name")
	fmt.Fprintln(w, "  delete <name>             Delete a document")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -f, --font <name>         Font stored with the document (put)")
	fmt.Fprintln(w)
	printStorageUsage(w)
	fmt.Fprintln(w)
	printCommonUsage(w)
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return
	}

	switch args[0] {
	case "export":
		printExportUsage(env.Stdout)
	case "watch":
		printWatchUsage(env.Stdout)
	case "preview":
		printPreviewUsage(env.Stdout)
	case "docs":
		printDocsUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: mdpress version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: mdpress help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
	}
}
