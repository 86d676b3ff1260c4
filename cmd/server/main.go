// Command server is the repository analysis service's entrypoint. It wires
// every component in dependency order (record store, job queue, remote
// fetcher, tree walker, source parser, HTTP surface, worker pool), starts
// the HTTP listener and worker pool concurrently, and drains both on
// SIGINT/SIGTERM within a bounded window, following the teacher's
// cmd/cie/main.go and cmd/cie/start.go bootstrap shape (explicit
// construction, signal-driven shutdown) generalized from the CLI's
// subcommand dispatch to a single long-running service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kraklabs/repoanalyzer/internal/api"
	"github.com/kraklabs/repoanalyzer/internal/config"
	"github.com/kraklabs/repoanalyzer/internal/fetcher"
	"github.com/kraklabs/repoanalyzer/internal/parser"
	"github.com/kraklabs/repoanalyzer/internal/pipeline"
	"github.com/kraklabs/repoanalyzer/internal/queue"
	"github.com/kraklabs/repoanalyzer/internal/store"
	"github.com/kraklabs/repoanalyzer/internal/walker"
)

const shutdownWindow = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server.fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.Server.Env)
	slog.SetDefault(logger)

	records, err := store.Open(cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("open record store: %w", err)
	}
	defer records.Close()

	q := queue.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port), cfg.Redis.Password, logger)
	defer q.Close()

	f, err := fetcher.New(fetcher.Config{
		GitHubToken:   cfg.Fetcher.GitHubToken,
		CloneBasePath: cfg.Fetcher.CloneBasePath,
	}, logger)
	if err != nil {
		return fmt.Errorf("build fetcher: %w", err)
	}
	defer f.Close()

	w := walker.New(logger)

	parserEng, err := parser.NewEngine(logger)
	if err != nil {
		return fmt.Errorf("build parser engine: %w", err)
	}

	httpServer := api.New(cfg, records, q, logger)
	worker := pipeline.New(logger, f, w, parserEng, records)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go q.RunWorkers(ctx, cfg.Queue.Concurrency, worker.Run)

	logger.Info("server.ready", "port", cfg.Server.Port, "queue_concurrency", cfg.Queue.Concurrency)

	select {
	case <-ctx.Done():
		logger.Info("server.shutdown.signal")
	case err := <-errCh:
		logger.Error("server.shutdown.error", "err", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server.shutdown.http_error", "err", err)
	}
	if err := q.Drain(shutdownCtx); err != nil {
		logger.Warn("server.shutdown.queue_error", "err", err)
	}

	logger.Info("server.shutdown.complete")
	return nil
}

func newLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "development" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug, AddSource: true})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}
