package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alnah/go-mdpress/internal/config"
	"github.com/alnah/go-mdpress/internal/fileutil"
	"github.com/alnah/go-mdpress/internal/hints"
)

// envPrefix marks environment variables read by mdpress.
const envPrefix = "MDPRESS_"

// CLI-only variables, not part of the config file.
const (
	envConfigName = "MDPRESS_CONFIG"    // config file name or path
	envContainer  = hints.EnvContainer
)

// knownEnvVars lists valid MDPRESS_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = func() map[string]bool {
	known := map[string]bool{
		envConfigName: true,
		envContainer:  true,
	}
	for _, name := range config.EnvVars {
		known[name] = true
	}
	return known
}()

// loadConfig builds the effective configuration:
// defaults < config file (--config or MDPRESS_CONFIG) < MDPRESS_* variables.
// Command flags are merged afterwards and win over everything.
func loadConfig(configFlag string, env *Environment) (*config.Config, error) {
	name := configFlag
	if name == "" {
		name, _ = env.LookupEnv(envConfigName)
	}

	cfg := config.DefaultConfig()
	if name != "" {
		var err error
		cfg, err = config.LoadConfig(name)
		if errors.Is(err, config.ErrConfigNotFound) && !fileutil.IsFilePath(name) {
			err = &configNotFoundError{name: name, err: err}
		}
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(env.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

// warnUnknownEnvVars prints warnings for unrecognized MDPRESS_* variables.
// Helps catch typos like MDPRESS_PAGESIZE instead of MDPRESS_PAGE_SIZE.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	for _, kv := range environ {
		if !strings.HasPrefix(kv, envPrefix) {
			continue
		}
		name, _, _ := strings.Cut(kv, "=")
		if !knownEnvVars[name] {
			fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
		}
	}
}
