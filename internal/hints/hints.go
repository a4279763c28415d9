// Package hints turns common failures into one-line suggestions, appended
// to error messages as "\n  hint: <text>".
package hints

import (
	"strings"

	"github.com/alnah/go-mdpress/internal/fileutil"
)

// EnvContainer set to "1" forces container detection.
const EnvContainer = "MDPRESS_CONTAINER"

// DockerEnv is the marker file Docker writes at the container root.
const DockerEnv = "/.dockerenv"

var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// Env is the environment hints are computed against.
type Env struct {
	Lookup    func(string) (string, bool)
	DockerEnv string // marker file path; empty skips the file check
}

func (e Env) get(name string) string {
	if e.Lookup == nil {
		return ""
	}
	v, _ := e.Lookup(name)
	return v
}

// Container reports whether we run in a container and which signal said so.
// MDPRESS_CONTAINER=1 wins over the Docker marker, then the container
// variable set by podman and systemd-nspawn, then Kubernetes.
func (e Env) Container() (bool, string) {
	if e.get(EnvContainer) == "1" {
		return true, EnvContainer + "=1"
	}
	if e.DockerEnv != "" && fileutil.FileExists(e.DockerEnv) {
		return true, e.DockerEnv
	}
	if v := e.get("container"); v != "" {
		return true, "container=" + v
	}
	if e.get("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// CI reports whether a known CI runner variable is set.
func (e Env) CI() bool {
	for _, name := range ciVars {
		if e.get(name) != "" {
			return true
		}
	}
	return false
}

// NeedsNoSandbox reports whether Chrome will likely refuse to start with
// its sandbox on.
func (e Env) NeedsNoSandbox() bool {
	inContainer, _ := e.Container()
	return (inContainer || e.CI()) && e.get("ROD_NO_SANDBOX") != "1"
}

// ForBrowserConnect covers Chrome failing to start or connect.
func (e Env) ForBrowserConnect() string {
	var hints []string
	if e.NeedsNoSandbox() {
		hints = append(hints, "set ROD_NO_SANDBOX=1 for Docker/CI")
	}
	if e.get("ROD_BROWSER_BIN") == "" {
		hints = append(hints, "set ROD_BROWSER_BIN to use a specific Chrome")
	}
	hints = append(hints, "or drop --chrome to rasterize diagrams as SVG")
	return join(hints)
}

// ForMermaidCLI covers a missing or failing mmdc.
func (e Env) ForMermaidCLI() string {
	hints := []string{"install mermaid-cli with: npm install -g @mermaid-js/mermaid-cli"}
	if e.get("MDPRESS_MMDC") == "" {
		hints = append(hints, "set MDPRESS_MMDC if mmdc is not on PATH")
	}
	return join(hints)
}

func ForFontFallback(font string) string {
	return format("font " + font + " not found; pass --assets with fonts/" + font + ".ttf or set MDPRESS_FONT_BASE_URL")
}

func ForTimeout() string {
	return format("for large documents or many diagrams, raise --timeout")
}

// ForConfigNotFound suggests --config, or creating the first searched path
// under an mdpress config directory.
func ForConfigNotFound(searched []string) string {
	hint := "use --config /path/to/file.yaml"
	for _, p := range searched {
		if strings.Contains(strings.ReplaceAll(p, `\`, "/"), "/mdpress/") {
			hint += " or create " + p
			break
		}
	}
	return format(hint)
}

func ForStorage() string {
	return format("check --db / MDPRESS_DATABASE_URL and --driver (sqlite or postgres)")
}

func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

func join(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
