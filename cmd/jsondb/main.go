// Package main is the entry point for the jsondb server.
//
// jsondb keeps named tables of JSON records in memory, mirrors them to a
// single JSON file and exposes them over a RESTful HTTP API. Configuration is
// read from CLI flags, a .env file in the data directory and
// server_config.json.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/maruel/jsondb/internal/config"
	"github.com/maruel/jsondb/internal/history"
	"github.com/maruel/jsondb/internal/metrics"
	"github.com/maruel/jsondb/internal/seed"
	"github.com/maruel/jsondb/internal/server"
	"github.com/maruel/jsondb/internal/server/handlers"
	"github.com/maruel/jsondb/internal/server/ratelimit"
	"github.com/maruel/jsondb/internal/tablestore"
)

func main() {
	if err := mainImpl(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "jsondb: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	version := flag.Bool("version", false, "Print version and exit")
	httpAddr := flag.String("http", "localhost:3000", "Address to listen on (e.g., localhost:3000, :3000, 0.0.0.0:3000)")
	dataDir := flag.String("data-dir", "./data", "Data directory")
	dbPath := flag.String("db", "", "Path of the JSON data file (default: <data-dir>/<store.file> from server_config.json)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	logDir := flag.String("log-dir", "", "Also write JSON logs to app.log, error.log and api.log in this directory (optional)")
	seedPath := flag.String("seed", "", "YAML fixture imported into empty tables at startup (optional)")
	withHistory := flag.Bool("history", false, "Commit every save of the data file to a git repository in its directory")
	flag.Parse()
	if len(flag.Args()) > 0 {
		return fmt.Errorf("unknown arguments: %v", flag.Args())
	}
	if *version {
		printVersion()
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	ll := &slog.LevelVar{}
	slog.SetDefault(newLogger(os.Stderr, ll, os.Getenv("JOURNAL_STREAM") != ""))

	if err := os.MkdirAll(*dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	env, err := loadDotEnv(*dataDir)
	if err != nil {
		return err
	}
	// Flags explicitly set win over .env.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	overrides := []struct {
		flag, key string
		dst       *string
	}{
		{"http", "HTTP", httpAddr},
		{"db", "DB", dbPath},
		{"log-level", "LOG_LEVEL", logLevel},
		{"log-dir", "LOG_DIR", logDir},
		{"seed", "SEED", seedPath},
	}
	for _, o := range overrides {
		if v := env[o.key]; !set[o.flag] && v != "" {
			*o.dst = v
		}
	}
	if v := env["HISTORY"]; !set["history"] && v != "" {
		*withHistory = v == "1" || strings.EqualFold(v, "true")
	}
	level, err := parseLevel(*logLevel)
	if err != nil {
		return err
	}
	ll.Set(level)
	if *logDir != "" {
		h, closeLogs, err := openLogFiles(*logDir, ll)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeLogs(); err != nil {
				fmt.Fprintf(os.Stderr, "jsondb: failed to close log files: %v\n", err)
			}
		}()
		slog.SetDefault(newLogger(os.Stderr, ll, os.Getenv("JOURNAL_STREAM") != "", h))
	}

	serverCfg, err := config.Load(*dataDir)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", config.FileName, err)
	}
	path := *dbPath
	if path == "" {
		path = serverCfg.StorePath(*dataDir)
	}

	// Normalize addr: ":3000" becomes "localhost:3000"
	addr := *httpAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}

	m := metrics.New(true)
	observers := tablestore.MultiObserver{m}
	var hist *history.Repo
	if *withHistory {
		hist, err = history.Open(filepath.Dir(path), filepath.Base(path), history.Author{
			Name:  serverCfg.History.AuthorName,
			Email: serverCfg.History.AuthorEmail,
		})
		if err != nil {
			return err
		}
		hist.Start()
		observers = append(observers, hist)
	}

	store, err := tablestore.Open(path,
		tablestore.WithLogger(slog.Default()),
		tablestore.WithObserver(observers),
		tablestore.WithIndent(serverCfg.Store.Indent))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(shutdownCtx); err != nil {
			slog.Error("Failed to save data file", "path", path, "err", err)
		}
		if hist != nil {
			if err := hist.Close(shutdownCtx); err != nil {
				slog.Error("Failed to stop history", "err", err)
			}
		}
	}()

	if *seedPath != "" {
		f, err := seed.ParseFile(*seedPath)
		if err != nil {
			return err
		}
		if _, err := seed.Apply(store, f, false); err != nil {
			return err
		}
	}

	// Watch own executable for modifications (for development restarts)
	if err := watchExecutable(ctx, stop); err != nil {
		return fmt.Errorf("failed to watch executable: %w", err)
	}

	tiers := ratelimit.NewTiers(serverCfg.RateLimits)
	defer tiers.Close()
	buildVersion, _, _, _ := getBuildInfo()
	svc := &handlers.Services{Store: store}
	if hist != nil {
		svc.History = hist
	}
	cfg := &handlers.Config{
		Version:             buildVersion,
		MaxRequestBodyBytes: serverCfg.Quotas.MaxRequestBodyBytes,
		TrustProxyHeaders:   serverCfg.TrustProxyHeaders,
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.NewRouter(svc, cfg, tiers, m),
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "Starting server", "addr", addr, "db", path, "history", *withHistory, "version", buildVersion)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.InfoContext(ctx, "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		slog.InfoContext(ctx, "Server stopped")
	}
	return nil
}

func printVersion() {
	version, goVersion, revision, dirty := getBuildInfo()
	fmt.Printf("jsondb %s\n", version)
	fmt.Printf("  Go version: %s\n", goVersion)
	fmt.Printf("  Revision:   %s\n", revision)
	if dirty {
		fmt.Printf("  Modified:   true\n")
	}
}

func getBuildInfo() (version, goVersion, revision string, dirty bool) {
	version, goVersion, revision = "unknown", "unknown", "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	version = info.Main.Version
	if version == "" || version == "(devel)" {
		version = "dev"
	}
	goVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return
}
