package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/app"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/config"
	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/logging"
)

// One due pass per scheduled invocation. The tick cadence comes from the
// EventBridge schedule, so the in-process scheduler is not started.
func main() {
	cfg := config.FromEnv()
	if cfg.LogDir == "logs" {
		// Only /tmp is writable inside Lambda.
		cfg.LogDir = "/tmp/logs"
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	a, err := app.Build(context.Background(), cfg, logger, nil)
	if err != nil {
		logger.Fatal("app_build_error", zap.Error(err))
	}
	defer a.Close()

	h := &handler{runner: a.Engine, log: logger}
	lambda.Start(h.Handle)
}
