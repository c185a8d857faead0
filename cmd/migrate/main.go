package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/config"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/logging"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/repo/postgres"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	flag.Parse()

	cfg := config.FromEnv()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Fatal("migrate_config_error", zap.String("reason", "DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	m, err := postgres.NewMigrator(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("migrate_setup_error", zap.Error(err))
	}

	switch *command {
	case "up":
		err = m.Up(ctx)
	case "status":
		err = m.Status(ctx)
	case "down":
		err = m.Down(ctx, *target)
	default:
		logger.Fatal("migrate_unsupported_command", zap.String("command", *command))
	}
	if err != nil {
		logger.Fatal("migrate_failed", zap.String("command", *command), zap.Error(err))
	}
	logger.Info("migrate_done", zap.String("command", *command))
}
