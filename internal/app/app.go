// Package app wires stores, queue, lock and engine from configuration. Every
// binary builds the same graph so all execution paths share one pipeline.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/config"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/engine"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/incident"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/lock"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/metrics"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/monitorfile"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/notify"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/probe"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/queue"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/dynamo"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/memory"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/postgres"
)

// MonitorStore is the full monitor surface: registry for the API and loader,
// runtime store for the engine.
type MonitorStore interface {
	repo.MonitorRegistry
	repo.MonitorStore
}

type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Monitors  MonitorStore
	Checks    repo.CheckStore
	Incidents repo.IncidentStore
	Queue     queue.Queue
	Engine    *engine.Engine
	Metrics   *metrics.Metrics
	// Redis is nil when REDIS_ADDR is empty.
	Redis redis.UniversalClient

	closers []func() error
}

// Build connects every backend named by cfg. reg may be nil to skip metrics.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger, reg prometheus.Registerer) (_ *App, err error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			err = multierr.Append(err, a.Close())
		}
	}()
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	locker := lock.Locker(lock.NewLocal())
	qopts := queue.Options{Visibility: cfg.QueueVisibility, MaxAttempts: cfg.QueueMaxAttempts}
	if cfg.RedisAddr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.RedisAddr},
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, client.Close)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.Redis = client
		locker = lock.NewRedis(client, "")
		a.Queue = queue.NewRedis(client, "", qopts)
		log.Info("redis_connected", zap.String("addr", cfg.RedisAddr))
	} else {
		a.Queue = queue.NewMemory(qopts)
	}

	notifier := notify.Multi{notify.Log{Logger: log}}
	if cfg.SlackWebhookURL != "" {
		notifier = append(notifier, notify.NewSlack(cfg.SlackWebhookURL))
	}
	machine := incident.NewMachine(a.Incidents, notify.NewDispatcher(notifier), log)

	a.Engine = engine.New(a.Monitors, a.Checks, machine, probe.NewExecutor(), engine.Options{
		MaxConcurrent: cfg.MaxConcurrentChecks,
		StoreTimeout:  cfg.StoreTimeout,
		LockGrace:     cfg.LockGrace,
		UptimeWindow:  cfg.UptimeWindow,
		Locker:        locker,
		Metrics:       a.Metrics,
		Logger:        log,
	})
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.DatabaseURL != "" {
		mig, err := postgres.NewMigrator(cfg.DatabaseURL, a.Logger)
		if err != nil {
			return err
		}
		if err := mig.Up(ctx); err != nil {
			return err
		}
		pg, err := postgres.New(ctx, cfg.DatabaseURL, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		a.Monitors, a.Checks, a.Incidents = pg, pg, pg
		if cfg.MonitorsFile != "" {
			a.Logger.Warn("monitors_file_ignored", zap.String("reason", "database configured"))
		}
	} else {
		mem := memory.New()
		a.Monitors, a.Checks, a.Incidents = mem, mem, mem
		if cfg.MonitorsFile != "" {
			n, err := monitorfile.Load(ctx, cfg.MonitorsFile, mem)
			if err != nil {
				return err
			}
			a.Logger.Info("monitors_loaded", zap.String("file", cfg.MonitorsFile), zap.Int("count", n))
		}
	}

	if cfg.DynamoDBTable != "" {
		client, err := dynamo.NewClient(ctx, cfg.AWSRegion)
		if err != nil {
			return err
		}
		a.Checks = dynamo.NewCheckStore(client, cfg.DynamoDBTable)
		a.Logger.Info("check_history_dynamodb", zap.String("table", cfg.DynamoDBTable))
	}
	return nil
}

// Producer enqueues due monitors on the app queue.
func (a *App) Producer() *queue.Producer {
	return queue.NewProducer(a.Queue, a.Monitors, a.Logger)
}

// Worker drains the app queue through the engine.
func (a *App) Worker() *queue.Worker {
	return queue.NewWorker(a.Queue, a.Engine, queue.WorkerConfig{
		Concurrency: a.Config.Workers,
		MaxAttempts: a.Config.QueueMaxAttempts,
		Backoff:     a.Config.RetryBackoff,
	}, a.Logger, a.Metrics)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	a.closers = nil
	return errs
}
