package main

import (
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestRunDocs - Document store round trip
// ---------------------------------------------------------------------------

func TestRunDocs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	db := filepath.Join(dir, "docs.db")
	input := writeFile(t, dir, "plan.md", "# Plan\n\nship it")

	run := func(args ...string) (int, string, string) {
		t.Helper()
		env, stdout, stderr := newTestEnv(nil)
		code := runMain(t.Context(), append([]string{"mdpress", "docs", "--db", db}, args...), env)
		return code, stdout.String(), stderr.String()
	}

	if code, _, stderr := run("put", "Q3 plan", input, "-f", "Inter"); code != ExitSuccess {
		t.Fatalf("put: exit code = %d, stderr:\n%s", code, stderr)
	}

	code, stdout, stderr := run("list")
	if code != ExitSuccess {
		t.Fatalf("list: exit code = %d, stderr:\n%s", code, stderr)
	}
	if !strings.Contains(stdout, "NAME") || !strings.Contains(stdout, "Q3 plan") {
		t.Errorf("list output = %q", stdout)
	}

	code, stdout, stderr = run("get", "Q3 plan")
	if code != ExitSuccess {
		t.Fatalf("get: exit code = %d, stderr:\n%s", code, stderr)
	}
	if stdout != "# Plan\n\nship it" {
		t.Errorf("get output = %q", stdout)
	}

	if code, _, stderr := run("delete", "Q3 plan"); code != ExitSuccess {
		t.Fatalf("delete: exit code = %d, stderr:\n%s", code, stderr)
	}
	if code, _, _ := run("get", "Q3 plan"); code != ExitIO {
		t.Errorf("get after delete: exit code = %d, want %d", code, ExitIO)
	}
}

func TestRunDocs_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	txt := writeFile(t, dir, "plan.txt", "x")

	tests := []struct {
		name     string
		args     []string
		wantCode int
	}{
		{"missing subcommand", []string{}, ExitUsage},
		{"unknown subcommand", []string{"rename"}, ExitUsage},
		{"get without name", []string{"get"}, ExitUsage},
		{"put without file", []string{"put", "x"}, ExitUsage},
		{"put wrong extension", []string{"put", "x", txt}, ExitUsage},
		{"put missing file", []string{"put", "x", filepath.Join(dir, "missing.md")}, ExitIO},
		{"invalid name", []string{"put", "   ", writeFile(t, dir, "ok.md", "# ok")}, ExitUsage},
		{"unknown driver", []string{"list", "--driver", "oracle"}, ExitUsage},
		{"get missing", []string{"get", "nobody"}, ExitIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env, _, stderr := newTestEnv(nil)
			db := filepath.Join(t.TempDir(), "docs.db")
			args := append([]string{"mdpress", "docs", "--db", db}, tt.args...)
			if code := runMain(t.Context(), args, env); code != tt.wantCode {
				t.Errorf("exit code = %d, want %d, stderr:\n%s", code, tt.wantCode, stderr.String())
			}
		})
	}
}
