package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/app"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/config"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/logging"
)

// The worker drains the shared Redis queue. Scale it horizontally; the
// per-monitor lock lives in Redis too.
func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		logger.Fatal("worker_config_error", zap.String("reason", "REDIS_ADDR is required"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("app_build_error", zap.Error(err))
	}

	// Metrics only; the API lives in cmd/api.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_error", zap.Error(err))
		}
	}()

	logger.Info("worker_started",
		zap.Int("concurrency", cfg.Workers),
		zap.String("metrics_addr", cfg.Addr),
	)
	a.Worker().Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker_metrics_shutdown_error", zap.Error(err))
	}
	if err := a.Close(); err != nil {
		logger.Error("app_close_error", zap.Error(err))
	}
}
