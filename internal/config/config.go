package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode selects which execution path a process drives.
type Mode string

const (
	ModeScheduler Mode = "scheduler" // in-process passes on a ticker
	ModeQueue     Mode = "queue"     // enqueue due monitors for workers
	ModeBoth      Mode = "both"      // enqueue and drain jobs in this process
)

type Config struct {
	Addr        string // API bind address, e.g. "127.0.0.1:8080" or ":8080" (Docker)
	LogDir      string
	LogLevel    string
	DatabaseURL string // empty means in-memory store

	RedisAddr     string // empty disables the Redis queue and lock
	RedisPassword string
	RedisDB       int

	Mode                Mode
	TickInterval        time.Duration
	MaxConcurrentChecks int
	StoreTimeout        time.Duration
	LockGrace           time.Duration
	UptimeWindow        time.Duration

	QueueVisibility  time.Duration
	QueueMaxAttempts int
	RetryBackoff     time.Duration
	Workers          int

	SlackWebhookURL string
	MonitorsFile    string // HCL seed file for the memory store

	DynamoDBTable string // non-empty moves check history to DynamoDB
	AWSRegion     string

	AllowedOrigins []string // CORS; empty blocks cross-origin browsers
	PublicAPIKeys  []string
	AdminAPIKeys   []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
}

func FromEnv() Config {
	mode := Mode(strings.ToLower(os.Getenv("MODE")))
	switch mode {
	case ModeScheduler, ModeQueue, ModeBoth:
	default:
		mode = ModeScheduler
	}

	return Config{
		Addr:        envString("API_ADDR", "127.0.0.1:8080"),
		LogDir:      envString("LOG_DIR", "logs"),
		LogLevel:    envString("LOG_LEVEL", "info"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0, 0),

		Mode:                mode,
		TickInterval:        envMillis("TICK_INTERVAL_MS", 10*time.Second),
		MaxConcurrentChecks: envInt("MAX_CONCURRENT_CHECKS", 16, 1),
		StoreTimeout:        envMillis("STORE_TIMEOUT_MS", 5*time.Second),
		LockGrace:           envMillis("LOCK_GRACE_MS", 2*time.Second),
		UptimeWindow:        time.Duration(envInt("UPTIME_WINDOW_HOURS", 24, 1)) * time.Hour,

		QueueVisibility:  envMillis("QUEUE_VISIBILITY_MS", time.Minute),
		QueueMaxAttempts: envInt("QUEUE_MAX_ATTEMPTS", 5, 1),
		RetryBackoff:     envMillis("RETRY_BACKOFF_MS", 300*time.Millisecond),
		Workers:          envInt("WORKERS", 4, 1),

		SlackWebhookURL: os.Getenv("SLACK_WEBHOOK_URL"),
		MonitorsFile:    os.Getenv("MONITORS_FILE"),

		DynamoDBTable: os.Getenv("DYNAMODB_TABLE"),
		AWSRegion:     envString("AWS_REGION", "us-east-1"),

		AllowedOrigins: envList("ALLOWED_ORIGINS"),
		PublicAPIKeys:  envList("PUBLIC_API_KEYS"),
		AdminAPIKeys:   envList("ADMIN_API_KEYS"),
		PublicRPM:      envInt("PUBLIC_RPM", 60, 1),
		PublicBurst:    envInt("PUBLIC_BURST", 20, 1),
		AdminRPM:       envInt("ADMIN_RPM", 600, 1),
		AdminBurst:     envInt("ADMIN_BURST", 100, 1),
	}
}

// RunsScheduler reports whether this process should tick in-process passes.
func (c Config) RunsScheduler() bool { return c.Mode == ModeScheduler }

// RunsProducer reports whether this process should enqueue due monitors.
func (c Config) RunsProducer() bool { return c.Mode == ModeQueue || c.Mode == ModeBoth }

// RunsWorkers reports whether this process should drain the queue itself.
// Without Redis the queue is process-local, so queue mode drains it too.
func (c Config) RunsWorkers() bool {
	return c.Mode == ModeBoth || (c.Mode == ModeQueue && c.RedisAddr == "")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envInt falls back to def when the value is missing, malformed or below min.
func envInt(key string, def, min int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

func envMillis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
