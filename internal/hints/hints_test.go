package hints

// Notes:
// - Env is built from maps, so every case runs in parallel without touching
//   the process environment. Only ForConfigNotFound output is checked
//   verbatim; other hints are matched by the variable or flag they name.

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func envOf(vars map[string]string) Env {
	return Env{Lookup: func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}}
}

// ---------------------------------------------------------------------------
// TestEnv_Container - Signals and their priority
// ---------------------------------------------------------------------------

func TestEnv_Container(t *testing.T) {
	t.Parallel()

	marker := filepath.Join(t.TempDir(), ".dockerenv")
	if err := os.WriteFile(marker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		vars     map[string]string
		marker   string
		want     bool
		wantFrom string
	}{
		{"bare host", nil, "", false, ""},
		{"missing marker file", nil, marker + ".missing", false, ""},
		{"docker marker", nil, marker, true, marker},
		{"podman", map[string]string{"container": "podman"}, "", true, "container=podman"},
		{"kubernetes", map[string]string{"KUBERNETES_SERVICE_HOST": "10.96.0.1"}, "", true, "KUBERNETES_SERVICE_HOST"},
		{"forced", map[string]string{EnvContainer: "1", "container": "podman"}, marker, true, EnvContainer + "=1"},
		{"forced needs 1", map[string]string{EnvContainer: "true"}, "", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			e := envOf(tt.vars)
			e.DockerEnv = tt.marker
			got, from := e.Container()
			if got != tt.want || from != tt.wantFrom {
				t.Errorf("Container() = (%v, %q), want (%v, %q)", got, from, tt.want, tt.wantFrom)
			}
		})
	}
}

func TestEnv_NilLookup(t *testing.T) {
	t.Parallel()

	var e Env
	if in, _ := e.Container(); in || e.CI() || e.NeedsNoSandbox() {
		t.Error("zero Env should detect nothing")
	}
}

// ---------------------------------------------------------------------------
// TestEnv_ForBrowserConnect - Sandbox and browser path suggestions
// ---------------------------------------------------------------------------

func TestEnv_ForBrowserConnect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		vars        map[string]string
		wantSandbox bool
		wantBin     bool
	}{
		{"workstation", nil, false, true},
		{"github actions", map[string]string{"GITHUB_ACTIONS": "true"}, true, true},
		{"container", map[string]string{EnvContainer: "1"}, true, true},
		{"sandbox already off", map[string]string{"CI": "1", "ROD_NO_SANDBOX": "1"}, false, true},
		{"browser configured", map[string]string{"ROD_BROWSER_BIN": "/usr/bin/chromium"}, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hint := envOf(tt.vars).ForBrowserConnect()
			if !strings.HasPrefix(hint, "\n  hint: ") {
				t.Fatalf("hint %q lacks prefix", hint)
			}
			if got := strings.Contains(hint, "ROD_NO_SANDBOX=1"); got != tt.wantSandbox {
				t.Errorf("sandbox suggestion = %v, want %v: %q", got, tt.wantSandbox, hint)
			}
			if got := strings.Contains(hint, "ROD_BROWSER_BIN"); got != tt.wantBin {
				t.Errorf("browser suggestion = %v, want %v: %q", got, tt.wantBin, hint)
			}
			if !strings.Contains(hint, "--chrome") {
				t.Errorf("hint should offer the SVG rasterizer: %q", hint)
			}
		})
	}
}

func TestEnv_ForMermaidCLI(t *testing.T) {
	t.Parallel()

	if hint := envOf(nil).ForMermaidCLI(); !strings.Contains(hint, "npm install") || !strings.Contains(hint, "MDPRESS_MMDC") {
		t.Errorf("ForMermaidCLI() = %q", hint)
	}
	if hint := envOf(map[string]string{"MDPRESS_MMDC": "/opt/mmdc"}).ForMermaidCLI(); strings.Contains(hint, "MDPRESS_MMDC") {
		t.Errorf("ForMermaidCLI() with MDPRESS_MMDC set = %q", hint)
	}
}

// ---------------------------------------------------------------------------
// TestStaticHints - Hints that do not depend on the environment
// ---------------------------------------------------------------------------

func TestStaticHints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hint string
		want string
	}{
		{"font fallback", ForFontFallback("Inter"), "fonts/Inter.ttf"},
		{"timeout", ForTimeout(), "--timeout"},
		{"storage", ForStorage(), "MDPRESS_DATABASE_URL"},
		{"output directory", ForOutputDirectory(), "writable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if !strings.HasPrefix(tt.hint, "\n  hint: ") || !strings.Contains(tt.hint, tt.want) {
				t.Errorf("hint = %q, want prefix and %q", tt.hint, tt.want)
			}
		})
	}
}

func TestForConfigNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		searched []string
		want     string
	}{
		{"no paths", nil, "\n  hint: use --config /path/to/file.yaml"},
		{
			"user config dir",
			[]string{"work.yaml", "/home/ana/.config/mdpress/work.yaml"},
			"\n  hint: use --config /path/to/file.yaml or create /home/ana/.config/mdpress/work.yaml",
		},
		{
			"windows path",
			[]string{`C:\Users\ana\AppData\mdpress\work.yaml`},
			"\n  hint: use --config /path/to/file.yaml or create " + `C:\Users\ana\AppData\mdpress\work.yaml`,
		},
		{"unrelated dirs only", []string{"/etc/work.yaml"}, "\n  hint: use --config /path/to/file.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := ForConfigNotFound(tt.searched); got != tt.want {
				t.Errorf("ForConfigNotFound() = %q, want %q", got, tt.want)
			}
		})
	}
}
