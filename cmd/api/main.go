package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/app"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/config"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/httpapi"
	apimw "github.com/cursoraidev1-web/SentryPulse-sub001/internal/httpapi/middleware"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/logging"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/scheduler"
)

func main() {
	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Fatal("app_build_error", zap.Error(err))
	}

	var wg sync.WaitGroup
	spawn := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	switch {
	case cfg.RunsScheduler():
		spawn(scheduler.NewLoop(logger, a.Engine, cfg.TickInterval, 0).Run)
	case cfg.RunsProducer():
		spawn(scheduler.NewLoop(logger, a.Producer(), cfg.TickInterval, 0).Run)
	}
	if cfg.RunsWorkers() {
		spawn(a.Worker().Run)
	}

	api := httpapi.NewServer(logger, a.Monitors, a.Checks, a.Incidents, a.Engine)
	api.Queue = a.Queue
	api.Metrics = a.Metrics
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, cfg.AllowedOrigins, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listen",
			zap.String("addr", cfg.Addr),
			zap.String("mode", string(cfg.Mode)),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_error", zap.Error(err))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_error", zap.Error(err))
	}
	wg.Wait()
	if err := a.Close(); err != nil {
		logger.Error("app_close_error", zap.Error(err))
	}
	logger.Info("api_stopped")
}
