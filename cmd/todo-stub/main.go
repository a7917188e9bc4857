// Command todo-stub serves an in-memory todo collection with the endpoints
// the sync engine expects. It is meant for demos and local development.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-todo-sync/cache"
	"github.com/goliatone/go-todo-sync/pkg/stubstore"
)

type config struct {
	Addr   string
	Shape  stubstore.Shape
	DSN    string
	Seed   bool
	Reset  bool
	Cache  bool
	Debug  bool
	Server stubstore.ServerConfig
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("todo-stub failed", "error", err)
		os.Exit(1)
	}
}

func parseConfig(args []string, getenv func(string) string, output io.Writer) (config, error) {
	fs := flag.NewFlagSet("todo-stub", flag.ContinueOnError)
	fs.SetOutput(output)

	addr := fs.String("addr", envString(getenv, "TODO_STUB_ADDR", "127.0.0.1:1337"), "listen address")
	shape := fs.String("shape", envString(getenv, "TODO_STUB_SHAPE", string(stubstore.ShapeFlattened)), "response shape: flattened, nested or mixed")
	dsn := fs.String("dsn", envString(getenv, "TODO_STUB_DSN", stubstore.DefaultDSN), "sqlite data source name")
	seed := fs.Bool("seed", envBool(getenv, "TODO_STUB_SEED", true), "insert the fixture todos on start")
	reset := fs.Bool("reset", envBool(getenv, "TODO_STUB_RESET", false), "delete existing todos before seeding")
	cached := fs.Bool("cache", envBool(getenv, "TODO_STUB_CACHE", true), "cache reads in memory")
	debug := fs.Bool("debug", envBool(getenv, "TODO_STUB_DEBUG", false), "log every request")
	pageSize := fs.Int("page-size", envInt(getenv, "TODO_STUB_PAGE_SIZE", 25), "page size when the request names none")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	s, err := stubstore.ParseShape(*shape)
	if err != nil {
		return config{}, err
	}

	server := stubstore.DefaultServerConfig()
	server.Shape = s
	server.DefaultPageSize = *pageSize

	return config{
		Addr:   *addr,
		Shape:  s,
		DSN:    *dsn,
		Seed:   *seed,
		Reset:  *reset,
		Cache:  *cached,
		Debug:  *debug,
		Server: server,
	}, nil
}

func run(ctx context.Context, cfg config, logger *slog.Logger) error {
	var opts []stubstore.BunOption
	if cfg.Cache {
		svc, err := cache.NewCacheService(cache.DefaultConfig())
		if err != nil {
			return err
		}
		opts = append(opts, stubstore.WithCache(svc, cache.NewDefaultKeySerializer(), logger))
	}

	repo, db, err := stubstore.OpenRepository(ctx, cfg.DSN, opts...)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Reset {
		n, err := stubstore.Clear(ctx, repo)
		if err != nil {
			return err
		}
		logger.Info("cleared todos", "count", n)
	}
	if cfg.Seed {
		rows, err := stubstore.Seed(ctx, repo, stubstore.DefaultSeed)
		if err != nil {
			return err
		}
		logger.Info("seeded todos", "count", len(rows))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           stubstore.NewServer(repo, cfg.Server, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("todo-stub listening", "addr", cfg.Addr, "shape", string(cfg.Shape))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func envString(getenv func(string) string, name, fallback string) string {
	if v := getenv(name); v != "" {
		return v
	}
	return fallback
}

func envBool(getenv func(string) string, name string, fallback bool) bool {
	raw := getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envInt(getenv func(string) string, name string, fallback int) int {
	raw := getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
