// Package main is the entrypoint for the OrthoGate API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/orthogate/internal/api"
	"github.com/kiranshivaraju/orthogate/internal/api/handler"
	mw "github.com/kiranshivaraju/orthogate/internal/api/middleware"
	"github.com/kiranshivaraju/orthogate/internal/artifact"
	"github.com/kiranshivaraju/orthogate/internal/cache"
	"github.com/kiranshivaraju/orthogate/internal/config"
	"github.com/kiranshivaraju/orthogate/internal/gateway"
	"github.com/kiranshivaraju/orthogate/internal/observability"
	"github.com/kiranshivaraju/orthogate/internal/store"
	"github.com/kiranshivaraju/orthogate/internal/transport"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := loadDotEnv(".env"); err != nil {
		slog.Error("load .env", "error", err)
		os.Exit(1)
	}

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// loadDotEnv reads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"backend", cfg.Backend.BaseURL,
		"reports_fallback", cfg.Reports.Fallback,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Telemetry
	shutdownTelemetry, err := observability.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	// 3. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 4. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 5. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 6. Report fallback source
	fallback, err := newFallbackSource(ctx, cfg.Reports)
	if err != nil {
		return fmt.Errorf("create report fallback: %w", err)
	}
	slog.Info("report fallback ready", "source", fallback.Name())

	// 7. Gateway to the analysis backend
	gw := gateway.New(gateway.Config{
		BaseURL:           cfg.Backend.BaseURL,
		AnalysisTimeout:   cfg.Backend.AnalysisTimeout,
		ChatTimeout:       cfg.Backend.ChatTimeout,
		ReportTimeout:     cfg.Backend.ReportTimeout,
		ReportIdleTimeout: cfg.Backend.ReportIdleTimeout,
	}, transport.NewHTTPClient(nil), fallback, gateway.WithMetrics(metrics))

	pgStore := store.NewPostgresStore(pool)

	// 8. Build router with dependencies
	deps := api.Dependencies{
		Auth:           mw.NewAuth(pgStore),
		RateLimit:      mw.NewRateLimit(redisCache, cfg.Server.RateLimit),
		AllowedOrigins: cfg.Server.AllowedOrigins,

		HealthHandler:         handler.NewHealthHandler(pgStore, redisCache),
		AnalyzeHandler:        handler.NewAnalyzeHandler(gw, pgStore),
		GetAnalysisHandler:    handler.NewGetAnalysisHandler(pgStore, redisCache),
		ListAnalysesHandler:   handler.NewListAnalysesHandler(pgStore),
		ChatHistoryHandler:    handler.NewChatHistoryHandler(gw),
		ReportDownloadHandler: handler.NewReportDownloadHandler(gw),
		CreateKeyHandler:      handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:       handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler:      handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     otelhttp.NewHandler(router, "orthogate"),
		ReadTimeout: 15 * time.Second,
		// Longer than the slowest backend call so analysis responses are not cut off.
		WriteTimeout: cfg.Backend.AnalysisTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newFallbackSource builds the report fallback selected by cfg.Fallback.
func newFallbackSource(ctx context.Context, cfg config.ReportsConfig) (artifact.Source, error) {
	switch cfg.Fallback {
	case config.FallbackMinio:
		src, err := artifact.NewBucketSource(ctx, cfg.Minio)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.FallbackFS:
		info, err := os.Stat(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("reports dir: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("reports dir %s is not a directory", cfg.Dir)
		}
		return artifact.NewDirSource(cfg.Dir), nil
	default:
		return nil, fmt.Errorf("unknown reports fallback %q", cfg.Fallback)
	}
}
