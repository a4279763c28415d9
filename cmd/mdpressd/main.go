// Command mdpressd serves the mdpress HTTP API: PDF export, HTML preview,
// stored documents and fonts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	mdpress "github.com/alnah/go-mdpress"
	"github.com/alnah/go-mdpress/internal/assets"
	"github.com/alnah/go-mdpress/internal/config"
	"github.com/alnah/go-mdpress/internal/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		log.Debug(fmt.Sprintf(format, args...))
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.LookupEnv, log); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Error("mdpressd failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// options are the daemon's command-line flags.
type options struct {
	config  string
	addr    string
	driver  string
	dsn     string
	assets  string
	workers int
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("mdpressd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.config, "config", "c", "", "config file name or path")
	fs.StringVar(&o.addr, "addr", "", "listen address (default :8080)")
	fs.StringVar(&o.driver, "driver", "", "database driver: sqlite, postgres")
	fs.StringVar(&o.dsn, "db", "", "database file (sqlite) or URL (postgres)")
	fs.StringVar(&o.assets, "assets", "", "asset directory (styles/, fonts/)")
	fs.IntVarP(&o.workers, "workers", "w", 0, "concurrent exports (0 = auto)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// loadConfig layers defaults, the config file, MDPRESS_* variables and flags.
func loadConfig(o *options, lookup func(string) (string, bool)) (*config.Config, error) {
	name := o.config
	if name == "" {
		name, _ = lookup("MDPRESS_CONFIG")
	}

	cfg := config.DefaultConfig()
	if name != "" {
		var err error
		if cfg, err = config.LoadConfig(name); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	if o.addr != "" {
		cfg.Server.Addr = o.addr
	}
	if o.driver != "" {
		cfg.Storage.Driver = o.driver
	}
	if o.dsn != "" {
		cfg.Storage.DSN = o.dsn
	}
	if o.assets != "" {
		cfg.Assets.BasePath = o.assets
	}
	if o.workers > 0 {
		cfg.Export.Workers = min(o.workers, mdpress.MaxPoolSize)
	}
	return cfg, cfg.Validate()
}

// app holds the daemon's long-lived resources.
type app struct {
	handler http.Handler
	pool    *mdpress.ExporterPool
	store   *mdpress.SQLStore
}

func (a *app) Close() error {
	return errors.Join(a.pool.Close(), a.store.Close())
}

// newApp opens the document store and builds the HTTP handler.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, extra ...mdpress.Option) (*app, error) {
	st, err := mdpress.OpenStore(ctx, cfg.Storage.Driver, cfg.Storage.DSN, log)
	if err != nil {
		return nil, err
	}

	opts := []mdpress.Option{
		mdpress.WithLogger(log),
		mdpress.WithOptimize(cfg.Export.Optimize),
		mdpress.WithCreator("mdpress " + Version),
		mdpress.WithAssetPath(cfg.Assets.BasePath),
		mdpress.WithFontBaseURL(cfg.Font.BaseURL),
		mdpress.WithMermaid(cfg.Diagram.Command, cfg.Diagram.Theme),
		mdpress.WithDiagramConcurrency(cfg.Diagram.Concurrency),
		mdpress.WithScale(cfg.Diagram.Scale),
	}
	if timeout := cfg.ExportTimeout(); timeout > 0 {
		opts = append(opts, mdpress.WithTimeout(timeout))
	}
	if cfg.Diagram.Rasterizer == config.RasterizerChrome {
		opts = append(opts, mdpress.WithChrome())
	}
	opts = append(opts, extra...)

	size := mdpress.ResolvePoolSize(cfg.Export.Workers)
	pool := mdpress.NewExporterPool(size, opts...)

	srvOpts := []server.Option{
		server.WithLogger(log),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
	}
	if cfg.Assets.BasePath != "" {
		fonts, err := assets.NewFilesystemLoader(cfg.Assets.BasePath)
		if err != nil {
			_ = pool.Close()
			_ = st.Close()
			return nil, err
		}
		log.Info("serving fonts", "dir", fonts.Base())
		srvOpts = append(srvOpts, server.WithFonts(fonts))
	}
	if p := cfg.Page; p.Size != "" || p.Orientation != "" || p.Margin != 0 || p.Width != 0 || p.Height != 0 {
		page := &mdpress.PageSettings{Size: p.Size, Orientation: p.Orientation, Margin: p.Margin, Width: p.Width, Height: p.Height}
		if err := page.Validate(); err != nil {
			_ = pool.Close()
			_ = st.Close()
			return nil, err
		}
		srvOpts = append(srvOpts, server.WithDefaultPage(page))
	}

	log.Info("exporter pool ready", "size", size)
	return &app{handler: server.New(pool, st, srvOpts...), pool: pool, store: st}, nil
}

func run(ctx context.Context, args []string, lookup func(string) (string, bool), log *slog.Logger) error {
	o, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(o, lookup)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Error("closing resources", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
	}
	log.Info("starting mdpressd", "addr", ln.Addr().String(), "version", Version, "storage", cfg.Storage.Driver)
	return serve(ctx, ln, a.handler, log)
}

// serve runs the HTTP server on ln until ctx is cancelled, then drains
// in-flight requests.
func serve(ctx context.Context, ln net.Listener, h http.Handler, log *slog.Logger) error {
	httpServer := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
