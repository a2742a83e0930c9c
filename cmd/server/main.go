package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"facturapos/backend/internal/cache"
	"facturapos/backend/internal/config"
	"facturapos/backend/internal/httpapi"
	"facturapos/backend/internal/logging"
	"facturapos/backend/internal/service"
	"facturapos/backend/internal/store"
	"facturapos/backend/internal/store/memory"
	pgstore "facturapos/backend/internal/store/postgres"
	sqlitestore "facturapos/backend/internal/store/sqlite"
	"facturapos/backend/internal/xid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close error", slog.Any("error", err))
			}
		}
	}()

	repo, err := openRepository(startCtx, cfg, logger)
	if err != nil {
		return err
	}
	closers = append(closers, repo.Close)

	reportCache := openReportCache(startCtx, cfg, logger)
	if closer, ok := reportCache.(interface{ Close() error }); ok {
		closers = append(closers, closer.Close)
	}

	api := httpapi.New(
		service.NewCatalog(repo, reportCache, logger),
		service.NewSales(repo, reportCache, xid.NewGenerator(), cfg.InvoiceMaxAttempts, logger),
		service.NewReports(repo, reportCache, logger),
		httpapi.Options{
			AllowedOrigin:      cfg.AllowedOrigin,
			PublicDir:          cfg.PublicDir,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			Logger:             logger,
		},
	)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("POS backend listening", slog.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

// openRepository connects the configured store, applies its schema and
// seeds an empty catalog.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres unavailable: %w", err)
		}
		if err := pg.Migrate(); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		if err := pg.Seed(ctx); err != nil {
			_ = pg.Close()
			return nil, fmt.Errorf("postgres seed: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, nil

	case config.DriverSQLite:
		lite, err := sqlitestore.Open(ctx, sqlitestore.DSN(cfg.SQLitePath), cfg.DBDebug)
		if err != nil {
			return nil, fmt.Errorf("sqlite open %s: %w", cfg.SQLitePath, err)
		}
		if err := lite.Seed(ctx); err != nil {
			_ = lite.Close()
			return nil, fmt.Errorf("sqlite seed: %w", err)
		}
		logger.Info("repository: sqlite", slog.String("path", cfg.SQLitePath))
		return lite, nil

	case config.DriverMemory:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openReportCache prefers Redis and falls back to the in-process cache when
// Redis is not configured or unreachable.
func openReportCache(ctx context.Context, cfg config.Config, logger *slog.Logger) cache.ReportCache {
	if cfg.RedisAddr == "" {
		logger.Info("report cache: noop")
		return cache.NewNoopReportCache()
	}
	redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.ReportCacheTTL)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using noop report cache", slog.Any("error", err))
		_ = redisCache.Close()
		return cache.NewNoopReportCache()
	}
	logger.Info("report cache: redis", slog.String("addr", cfg.RedisAddr))
	return redisCache
}
