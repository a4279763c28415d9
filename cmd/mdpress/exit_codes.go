package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	mdpress "github.com/alnah/go-mdpress"
	"github.com/alnah/go-mdpress/internal/config"
	"github.com/alnah/go-mdpress/internal/diagram"
	"github.com/alnah/go-mdpress/internal/hints"
	"github.com/alnah/go-mdpress/internal/raster"
	"github.com/alnah/go-mdpress/internal/store"
)

// Exit codes for the mdpress CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful run
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied, database unavailable
	ExitTool    = 4 // Chrome or mermaid CLI errors
)

// ErrUsage wraps flag parsing errors.
var ErrUsage = errors.New("invalid usage")

// usageError wraps a flag parsing error; help requests pass through.
func usageError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUsage, err)
}

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Tool errors (exit 4)
	if errors.Is(err, raster.ErrBrowserConnect) ||
		errors.Is(err, raster.ErrPageCreate) ||
		errors.Is(err, raster.ErrScreenshot) ||
		errors.Is(err, diagram.ErrToolNotFound) ||
		errors.Is(err, ErrDiagramsFailed) {
		return ExitTool
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadMarkdown) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, mdpress.ErrDocumentNotFound) ||
		errors.Is(err, store.ErrOpen) ||
		errors.Is(err, store.ErrMigrate) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, ErrUsage) ||
		errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, mdpress.ErrEmptyMarkdown) ||
		errors.Is(err, mdpress.ErrInvalidPageSize) ||
		errors.Is(err, mdpress.ErrInvalidOrientation) ||
		errors.Is(err, mdpress.ErrInvalidMargin) ||
		errors.Is(err, mdpress.ErrInvalidDimensions) ||
		errors.Is(err, mdpress.ErrInvalidFooterPosition) ||
		errors.Is(err, mdpress.ErrInvalidDateFormat) ||
		errors.Is(err, mdpress.ErrInvalidAssetPath) ||
		errors.Is(err, mdpress.ErrInvalidName) ||
		errors.Is(err, mdpress.ErrUntitled) ||
		errors.Is(err, store.ErrUnsupportedDialect) ||
		errors.Is(err, ErrInvalidExtension) ||
		errors.Is(err, ErrInvalidWorkerCount) {
		return ExitUsage
	}

	return ExitGeneral
}

// hintFor returns an actionable hint for err, or "".
func hintFor(err error, env *Environment) string {
	h := hints.Env{Lookup: env.LookupEnv, DockerEnv: hints.DockerEnv}
	var nf *configNotFoundError
	switch {
	case errors.As(err, &nf):
		return hints.ForConfigNotFound(config.SearchPaths(nf.name))
	case errors.Is(err, context.DeadlineExceeded):
		return hints.ForTimeout()
	case errors.Is(err, raster.ErrBrowserConnect), errors.Is(err, raster.ErrPageCreate):
		return h.ForBrowserConnect()
	case errors.Is(err, diagram.ErrToolNotFound), errors.Is(err, ErrDiagramsFailed):
		return h.ForMermaidCLI()
	case errors.Is(err, store.ErrOpen), errors.Is(err, store.ErrMigrate), errors.Is(err, store.ErrUnsupportedDialect):
		return hints.ForStorage()
	case errors.Is(err, ErrCreateOutputDir):
		return hints.ForOutputDirectory()
	}
	return ""
}

// configNotFoundError remembers the config name that failed to resolve.
type configNotFoundError struct {
	name string
	err  error
}

func (e *configNotFoundError) Error() string { return e.err.Error() }
func (e *configNotFoundError) Unwrap() error { return e.err }
