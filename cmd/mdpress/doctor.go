package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	flag "github.com/spf13/pflag"

	mdpress "github.com/alnah/go-mdpress"
	"github.com/alnah/go-mdpress/internal/config"
	"github.com/alnah/go-mdpress/internal/diagram"
	"github.com/alnah/go-mdpress/internal/hints"
	"github.com/alnah/go-mdpress/internal/store"
)

// checkTimeout bounds each external check (tool versions, database ping).
const checkTimeout = 10 * time.Second

// Doctor statuses.
const (
	statusReady    = "ready"
	statusWarnings = "warnings"
	statusErrors   = "errors"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string      `json:"status"`
	Config   configInfo  `json:"config"`
	Mermaid  mermaidInfo `json:"mermaid"`
	Chrome   chromeInfo  `json:"chrome"`
	Storage  storageInfo `json:"storage"`
	Env      envInfo     `json:"environment"`
	System   systemInfo  `json:"system"`
	Warnings []string    `json:"warnings,omitempty"`
	Errors   []string    `json:"errors,omitempty"`
}

type configInfo struct {
	Source     string `json:"source"` // file name or "defaults"
	Rasterizer string `json:"rasterizer"`
}

type mermaidInfo struct {
	Found   bool   `json:"found"`
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
	Version string `json:"version,omitempty"`
}

// chromeInfo is only required when the chrome rasterizer is configured.
type chromeInfo struct {
	Required bool   `json:"required"`
	Found    bool   `json:"found"`
	Path     string `json:"path,omitempty"`
	Version  string `json:"version,omitempty"`
	Sandbox  bool   `json:"sandbox"`
}

type storageInfo struct {
	Driver    string `json:"driver"`
	Location  string `json:"location"`
	Reachable bool   `json:"reachable"`
}

type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	NoSandbox     string `json:"rod_no_sandbox"`
	BrowserBin    string `json:"rod_browser_bin"`
}

type systemInfo struct {
	TempDir      string `json:"temp_dir"`
	TempWritable bool   `json:"temp_writable"`
}

func (r *doctorResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *doctorResult) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// doctor runs the checks against one configuration and environment.
type doctor struct {
	cfg       *config.Config
	source    string
	lookup    func(string) (string, bool)
	dockerenv string // marker file written by Docker
	tempDir   string
}

func (d *doctor) getenv(name string) string {
	v, _ := d.lookup(name)
	return v
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = ready (including warnings), 1 = errors found, 2 = bad flags.
func runDoctorCmd(ctx context.Context, args []string, env *Environment) int {
	f, err := parseDoctorFlags(args, env.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return ExitUsage
	}

	d := &doctor{
		source:    "defaults",
		lookup:    env.LookupEnv,
		dockerenv: hints.DockerEnv,
		tempDir:   os.TempDir(),
	}
	result := &doctorResult{Status: statusReady}

	cfg, err := loadConfig(f.config, env)
	if err != nil {
		result.fail("Config: %v", err)
		cfg = config.DefaultConfig()
	} else if name := configName(f.config, env); name != "" {
		d.source = name
	}
	if f.mmdc != "" {
		cfg.Diagram.Command = f.mmdc
	}
	mergeStorageFlags(&f.storage, cfg)
	d.cfg = cfg

	d.run(ctx, result)

	if f.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == statusErrors {
		return ExitGeneral
	}
	return ExitSuccess
}

// configName reports which config file loadConfig used, if any.
func configName(flagValue string, env *Environment) string {
	if flagValue != "" {
		return flagValue
	}
	name, _ := env.LookupEnv(envConfigName)
	return name
}

// run performs all checks and settles the final status.
func (d *doctor) run(ctx context.Context, result *doctorResult) {
	result.Config = configInfo{Source: d.source, Rasterizer: d.cfg.Diagram.Rasterizer}
	result.Env = envInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		NoSandbox:  d.getenv("ROD_NO_SANDBOX"),
		BrowserBin: d.getenv("ROD_BROWSER_BIN"),
	}

	d.checkMermaid(ctx, result)
	d.checkChrome(ctx, result)
	d.checkStorage(ctx, result)
	d.checkEnvironment(result)
	d.checkSystem(result)

	switch {
	case len(result.Errors) > 0:
		result.Status = statusErrors
	case len(result.Warnings) > 0:
		result.Status = statusWarnings
	}
}

// checkMermaid locates the mermaid CLI. Without it diagrams are exported
// as source text, so a missing CLI is a warning.
func (d *doctor) checkMermaid(ctx context.Context, result *doctorResult) {
	cli := diagram.NewMermaidCLI(diagram.WithCommand(d.cfg.Diagram.Command))
	result.Mermaid.Command = cli.Command()

	path, err := cli.Available()
	if err != nil {
		result.warn("Mermaid CLI %q not found; diagrams will be shown as source. Install @mermaid-js/mermaid-cli or set MDPRESS_MMDC", cli.Command())
		return
	}
	result.Mermaid.Found = true
	result.Mermaid.Path = path
	result.Mermaid.Version = toolVersion(ctx, path)
}

// checkChrome locates Chrome/Chromium. It is an error only when the
// chrome rasterizer is configured.
func (d *doctor) checkChrome(ctx context.Context, result *doctorResult) {
	result.Chrome.Required = d.cfg.Diagram.Rasterizer == config.RasterizerChrome
	report := result.warn
	if result.Chrome.Required {
		report = result.fail
	}

	path := result.Env.BrowserBin
	if path == "" {
		var found bool
		if path, found = launcher.LookPath(); !found {
			report("Chrome/Chromium not found; the chrome rasterizer is unavailable. Install Chrome or set ROD_BROWSER_BIN")
			return
		}
	}
	if _, err := os.Stat(path); err != nil {
		report("Chrome not found at %s", path)
		return
	}

	result.Chrome.Found = true
	result.Chrome.Path = path
	result.Chrome.Version = toolVersion(ctx, path)
	result.Chrome.Sandbox = result.Env.NoSandbox != "1"
}

// checkStorage verifies the document store can be used. SQLite is checked
// without creating the database file; Postgres is pinged.
func (d *doctor) checkStorage(ctx context.Context, result *doctorResult) {
	dialect, err := store.ParseDialect(d.cfg.Storage.Driver)
	if err != nil {
		result.fail("Storage: %v", err)
		return
	}
	result.Storage.Driver = string(dialect)

	switch dialect {
	case store.Postgres:
		result.Storage.Location = redactDSN(d.cfg.Storage.DSN)
		ctx, cancel := context.WithTimeout(ctx, checkTimeout)
		defer cancel()
		st, err := mdpress.OpenStore(ctx, string(dialect), d.cfg.Storage.DSN, nil)
		if err != nil {
			result.warn("Postgres unreachable at %s: %v", result.Storage.Location, err)
			return
		}
		_ = st.Close()
		result.Storage.Reachable = true
	default:
		path := sqlitePath(d.cfg.Storage.DSN)
		result.Storage.Location = path
		if path == ":memory:" {
			result.Storage.Reachable = true
			return
		}
		dir := filepath.Dir(path)
		if err := checkWritable(dir); err != nil {
			result.warn("SQLite directory %s is not writable; docs and watch --save will fail", dir)
			return
		}
		result.Storage.Reachable = true
	}
}

// checkEnvironment detects container and CI environments, where Chrome
// usually needs its sandbox disabled.
func (d *doctor) checkEnvironment(result *doctorResult) {
	env := d.hintsEnv()
	result.Env.Container, result.Env.ContainerHint = env.Container()
	result.Env.CI = env.CI()
	if env.NeedsNoSandbox() {
		result.warn("Container/CI detected but ROD_NO_SANDBOX not set. Set ROD_NO_SANDBOX=1 for the chrome rasterizer")
	}
}

func (d *doctor) container() (bool, string) {
	return d.hintsEnv().Container()
}

func (d *doctor) hintsEnv() hints.Env {
	return hints.Env{Lookup: d.lookup, DockerEnv: d.dockerenv}
}

// checkSystem verifies the temp directory used for mermaid inputs.
func (d *doctor) checkSystem(result *doctorResult) {
	result.System.TempDir = d.tempDir
	if err := checkWritable(d.tempDir); err != nil {
		result.fail("Temp directory not writable: %s", d.tempDir)
		return
	}
	result.System.TempWritable = true
}

// checkWritable creates and removes a file in dir.
func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".mdpress-doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// toolVersion runs "<path> --version" and returns its first line.
func toolVersion(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output() // #nosec G204 -- resolved tool path
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line
}

// sqlitePath strips the file: scheme and query options from a SQLite DSN.
func sqlitePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	path, _, _ = strings.Cut(path, "?")
	if path == "" {
		return config.DefaultStorageDSN
	}
	return path
}

// redactDSN hides the password in a Postgres URL.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "(configured DSN)"
	}
	return u.Redacted()
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "mdpress doctor")
	fmt.Fprintln(w)

	section(w, "Config")
	item(w, "OK", "Source: %s", r.Config.Source)
	item(w, "OK", "Rasterizer: %s", r.Config.Rasterizer)
	fmt.Fprintln(w)

	section(w, "Mermaid CLI")
	if r.Mermaid.Found {
		item(w, "OK", "Found at %s", r.Mermaid.Path)
		if r.Mermaid.Version != "" {
			item(w, "OK", "Version: %s", r.Mermaid.Version)
		}
	} else {
		item(w, "WARN", "%s not found", r.Mermaid.Command)
	}
	fmt.Fprintln(w)

	section(w, "Chrome/Chromium")
	switch {
	case r.Chrome.Found:
		item(w, "OK", "Found at %s", r.Chrome.Path)
		if r.Chrome.Version != "" {
			item(w, "OK", "Version: %s", r.Chrome.Version)
		}
		if r.Chrome.Sandbox {
			item(w, "OK", "Sandbox: enabled")
		} else {
			item(w, "OK", "Sandbox: disabled (ROD_NO_SANDBOX=1)")
		}
	case r.Chrome.Required:
		item(w, "ERROR", "Not found (required by the chrome rasterizer)")
	default:
		item(w, "WARN", "Not found (only needed with --chrome)")
	}
	fmt.Fprintln(w)

	section(w, "Storage")
	if r.Storage.Driver != "" {
		level := "OK"
		if !r.Storage.Reachable {
			level = "WARN"
		}
		item(w, level, "%s: %s", r.Storage.Driver, r.Storage.Location)
	}
	fmt.Fprintln(w)

	section(w, "Environment")
	item(w, "OK", "Platform: %s/%s", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		item(w, "OK", "Container: detected (%s)", r.Env.ContainerHint)
	}
	if r.Env.CI {
		item(w, "OK", "CI: detected")
	}
	fmt.Fprintln(w)

	section(w, "System")
	if r.System.TempWritable {
		item(w, "OK", "Temp directory: writable")
	} else {
		item(w, "ERROR", "Temp directory: not writable")
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		section(w, "Warnings:")
		for _, msg := range r.Warnings {
			item(w, "WARN", "%s", msg)
		}
		fmt.Fprintln(w)
	}
	if len(r.Errors) > 0 {
		section(w, "Errors:")
		for _, msg := range r.Errors {
			item(w, "ERROR", "%s", msg)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case statusReady:
		fmt.Fprintln(w, "Status: Ready to export")
	case statusWarnings:
		fmt.Fprintln(w, "Status: Ready with warnings")
	case statusErrors:
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}

func section(w io.Writer, title string) { fmt.Fprintln(w, title) }

func item(w io.Writer, level, format string, args ...any) {
	fmt.Fprintf(w, "  [%s] %s\n", level, fmt.Sprintf(format, args...))
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mdpress doctor [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check the mermaid CLI, Chrome, the document store and the environment")
	fmt.Fprintln(w, "against the effective configuration.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --mmdc <cmd>          Mermaid CLI executable to check")
	fmt.Fprintln(w, "      --driver <name>       Database driver: sqlite, postgres")
	fmt.Fprintln(w, "      --db <dsn>            Database file (sqlite) or URL (postgres)")
	fmt.Fprintln(w, "      --json                Machine-readable output")
}
