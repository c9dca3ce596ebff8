// Command lazyload opens a page in Chrome and defers its images until they
// approach the viewport.
//
// Usage:
//
//	lazyload -config lazyload.yaml          # schedule a page from YAML config
//	lazyload -url https://example.com       # quick run with defaults
//	lazyload -rewrite page.html             # materialize noscript placeholders to stdout
//	lazyload -config lazyload.yaml -mcp     # also serve MCP tools over stdio
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/lazyload/dbopen"
	"github.com/hazyhaar/lazyload/idgen"
	"github.com/hazyhaar/lazyload/lazyload"
	"github.com/hazyhaar/lazyload/lazyload/browser"
	"github.com/hazyhaar/lazyload/lazyload/loadcache"
	"github.com/hazyhaar/lazyload/trace"
	"github.com/hazyhaar/lazyload/watch"
)

func main() {
	configPath := flag.String("config", "", "path to lazyload.yaml config file")
	singleURL := flag.String("url", "", "schedule a single URL with defaults (stdout sink)")
	rewritePath := flag.String("rewrite", "", "rewrite noscript placeholders of an HTML file to stdout and exit")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *rewritePath, *mcpMode); err != nil {
		logger.Error("lazyload: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, rewritePath string, mcpMode bool) error {
	if rewritePath != "" {
		return runRewrite(logger, rewritePath, os.Stdout)
	}

	var cfg *lazyload.Config
	switch {
	case configPath != "":
		c, err := lazyload.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if singleURL != "" {
			cfg.Page.URL = singleURL
		}
	case singleURL != "":
		c, err := lazyload.ParseConfig(nil)
		if err != nil {
			return err
		}
		cfg = c
		cfg.Page.URL = singleURL
	default:
		fmt.Fprintln(os.Stderr, "usage: lazyload -config <file> | -url <url> | -rewrite <file.html> [-mcp]")
		os.Exit(1)
	}
	if cfg.Page.URL == "" {
		return errors.New("page.url is required")
	}
	return runPage(ctx, logger, cfg, mcpMode)
}

func runRewrite(logger *slog.Logger, path string, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}
	defer f.Close()

	n, err := lazyload.Rewrite(f, w, lazyload.DefaultOptions())
	if err != nil {
		return fmt.Errorf("rewrite: %w", err)
	}
	logger.Info("lazyload: placeholders rewritten", "file", path, "count", n)
	return nil
}

func runPage(ctx context.Context, logger *slog.Logger, cfg *lazyload.Config, mcpMode bool) error {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Bin:              cfg.Browser.Bin,
		Headful:          cfg.Browser.Stealth == "headful",
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		Logger:           logger,
	})
	if _, err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer mgr.Close()

	tab, err := browser.OpenTab(ctx, mgr, browser.TabConfig{
		URL:       cfg.Page.URL,
		UserAgent: cfg.Page.UserAgent,
		Width:     cfg.Page.Width,
		Height:    cfg.Page.Height,
		Stealth:   true,
		Timeout:   cfg.Page.Timeout,
	})
	if err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	defer tab.Close()

	cache, cacheDB, closeCache, err := openCache(ctx, cfg.Cache, tab)
	if err != nil {
		return err
	}
	defer closeCache()

	// Stdout belongs to the MCP transport in -mcp mode.
	var out io.Writer = os.Stdout
	if mcpMode {
		out = os.Stderr
	}
	sinks, err := lazyload.SinksFromConfig(cfg.Sinks, out, logger)
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		sinks = append(sinks, lazyload.NewStdoutSink(out))
	}
	router := lazyload.NewSinkRouter(logger, sinks...)
	defer router.Close()

	opts := lazyload.OptionsFromConfig(cfg.LazyLoad, tab.UserAgent, logger)
	opts.Cache = cache
	opts.PageURL = tab.PageURL
	opts.OnLoad = lazyload.OnLoadTo(ctx, router, logger)
	for _, sk := range sinks {
		if h, ok := sk.(lazyload.EventHistory); ok {
			opts.History = h
			break
		}
	}

	s := lazyload.New(tab.Host(), opts)
	defer s.Teardown()
	if err := s.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	if cacheDB != nil && cfg.Cache.Sync > 0 {
		w := watch.New(cacheDB, watch.Options{Interval: cfg.Cache.Sync, Debounce: 250 * time.Millisecond, Logger: logger})
		go w.OnChange(ctx, func(ctx context.Context) error {
			n, err := s.PromoteCached(ctx)
			if n > 0 {
				logger.Info("lazyload: cached sources promoted", "count", n)
			}
			return err
		})
	}

	if cfg.HTTP.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("lazyload: control API listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("lazyload: control API", "error", err)
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
	}

	if mcpMode {
		srv := mcp.NewServer(&mcp.Implementation{Name: "lazyload", Version: lazyload.Version}, nil)
		s.RegisterMCP(srv)
		logger.Info("lazyload: serving MCP over stdio")
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

// openCache builds the loaded-source store selected by cfg. The returned db
// is non-nil for the sqlite backend. The returned func releases the store.
func openCache(ctx context.Context, cfg lazyload.CacheConfig, tab *browser.Tab) (loadcache.Store, *sql.DB, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "session":
		return tab.SessionStore(), nil, noop, nil
	case "memory":
		return loadcache.NewMemory(), nil, noop, nil
	case "none":
		return nil, nil, noop, nil
	case "sqlite":
		opts := []dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(loadcache.Schema)}
		if cfg.Trace {
			trace.SetLogger(slog.Default().With("component", "sql"))
			opts = append(opts, dbopen.WithTrace())
		}
		db, err := dbopen.Open(cfg.Path, opts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open cache db: %w", err)
		}
		session := cfg.SessionID
		if session == "" {
			session = idgen.Session()
		}
		store, err := loadcache.NewSQLite(ctx, db, session)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		return store, db, func() { db.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
