// cmd/preflight/main.go
package main

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/cursoraidev1-web/SentryPulse-sub001/internal/config"
)

func main() {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	admin := strings.TrimSpace(os.Getenv("ADMIN_API_KEYS"))
	pub := strings.TrimSpace(os.Getenv("PUBLIC_API_KEYS"))

	if admin == "" {
		fail("ADMIN_API_KEYS is empty (admin routes are open).")
	}
	if pub == "" {
		warn("PUBLIC_API_KEYS is empty (read routes accept admin keys only).")
	}

	// Normalize and sanity-check lists (no spaces around commas).
	for name, v := range map[string]string{"ADMIN_API_KEYS": admin, "PUBLIC_API_KEYS": pub} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	// Numeric settings fall back to defaults silently in FromEnv; say so here.
	for _, name := range []string{
		"TICK_INTERVAL_MS", "MAX_CONCURRENT_CHECKS", "STORE_TIMEOUT_MS", "LOCK_GRACE_MS",
		"QUEUE_VISIBILITY_MS", "QUEUE_MAX_ATTEMPTS", "RETRY_BACKOFF_MS", "WORKERS",
		"UPTIME_WINDOW_HOURS", "REDIS_DB",
	} {
		if v := os.Getenv(name); v != "" {
			if _, err := strconv.Atoi(v); err != nil {
				fail(name + "=" + v + " is not an integer; the default will be used.")
			}
		}
	}

	if m := strings.ToLower(os.Getenv("MODE")); m != "" && m != "scheduler" && m != "queue" && m != "both" {
		fail("MODE=" + m + " is not one of scheduler|queue|both.")
	}

	cfg := config.FromEnv()
	ok("API_ADDR=" + cfg.Addr)
	ok("MODE=" + string(cfg.Mode))

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty: monitors, checks and incidents live in memory only.")
	} else if u, err := url.Parse(cfg.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		fail("DATABASE_URL is not a postgres:// URL.")
	} else {
		ok("DATABASE_URL present")
	}

	switch {
	case cfg.RedisAddr != "":
		ok("REDIS_ADDR=" + cfg.RedisAddr)
	case cfg.Mode != config.ModeScheduler:
		warn("MODE=" + string(cfg.Mode) + " without REDIS_ADDR: the queue is process-local and cmd/worker cannot join.")
	default:
		warn("REDIS_ADDR empty: per-monitor locks are process-local; run a single scheduler.")
	}

	if cfg.MonitorsFile != "" {
		if _, err := os.Stat(cfg.MonitorsFile); err != nil {
			fail("MONITORS_FILE not readable: " + err.Error())
		} else {
			ok("MONITORS_FILE=" + cfg.MonitorsFile)
		}
	}

	if cfg.DynamoDBTable != "" {
		ok("DYNAMODB_TABLE=" + cfg.DynamoDBTable + " (" + cfg.AWSRegion + ")")
	}

	if cfg.SlackWebhookURL == "" {
		warn("SLACK_WEBHOOK_URL empty: incident notifications go to the log only.")
	}

	if len(cfg.AllowedOrigins) == 0 {
		warn("ALLOWED_ORIGINS empty: browsers will be blocked by CORS for cross-origin requests.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}

	if failed {
		os.Exit(1)
	}
	ok("preflight passed")
}
