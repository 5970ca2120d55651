// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes gateway settings:
// server timeouts, logging, Telegram and upstream endpoints, the retry queue,
// deduplication, the worker pool, the delivery ledger and observability.
package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flow modes accepted by FLOW_MODE.
const (
	FlowModeDeferred     = "deferred"
	FlowModeResolveFirst = "resolve_first"
)

// CORSConfig defines Cross-Origin Resource Sharing settings for the admin API.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-messaging-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// TelegramConfig holds Bot API settings.
type TelegramConfig struct {
	BotToken      string // BOT_TOKEN (required)
	APIEndpoint   string // TELEGRAM_API_ENDPOINT, format with %s for token and method
	WebhookSecret string // WEBHOOK_SECRET, checked on inbound deliveries
	WebhookURL    string // WEBHOOK_URL, registered at startup when set
}

// UpstreamConfig holds the User Service and Agent Service endpoints.
type UpstreamConfig struct {
	UserServiceBase  string        // USER_SERVICE_BASE (required)
	AgentServiceBase string        // AGENT_SERVICE_BASE, empty means echo mode
	RequestTimeout   time.Duration // REQUEST_TIMEOUT for every outbound call
}

// RetryConfig controls the failed-interaction queue.
type RetryConfig struct {
	File          string        // RETRY_FILE
	FlushInterval time.Duration // RETRY_FLUSH_INTERVAL, 0 disables the periodic flush
}

// DedupeConfig sizes the in-memory duplicate detector.
type DedupeConfig struct {
	Capacity     int           // DEDUPE_CAPACITY
	TTL          time.Duration // DEDUPE_TTL
	HistoryLimit int           // HISTORY_DEDUPE_LIMIT
}

// WorkerConfig sizes the background worker pool.
type WorkerConfig struct {
	Count     int // WORKER_COUNT
	QueueSize int // WORKER_QUEUE_SIZE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route

	// Admin API
	AdminBasePath string // ADMIN_BASE_PATH
	AdminKey      string // ADMIN_KEY, empty disables the check

	// Gateway
	Telegram TelegramConfig
	Upstream UpstreamConfig
	Retry    RetryConfig
	Dedupe   DedupeConfig
	Workers  WorkerConfig
	FlowMode string // deferred|resolve_first
	DBPath   string // SQLite delivery ledger

	// Rate limiting (admin API)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),

		// Admin API
		AdminBasePath: normalizeBasePath(getenv("ADMIN_BASE_PATH", "/admin")),
		AdminKey:      getenv("ADMIN_KEY", ""),

		Telegram: TelegramConfig{
			BotToken:      strings.TrimSpace(getenv("BOT_TOKEN", "")),
			APIEndpoint:   getenv("TELEGRAM_API_ENDPOINT", "https://api.telegram.org/bot%s/%s"),
			WebhookSecret: getenv("WEBHOOK_SECRET", ""),
			WebhookURL:    strings.TrimSpace(getenv("WEBHOOK_URL", "")),
		},
		Upstream: UpstreamConfig{
			UserServiceBase:  strings.TrimRight(strings.TrimSpace(getenv("USER_SERVICE_BASE", "")), "/"),
			AgentServiceBase: strings.TrimRight(strings.TrimSpace(getenv("AGENT_SERVICE_BASE", "")), "/"),
			RequestTimeout:   getdur("REQUEST_TIMEOUT", 10*time.Second),
		},
		Retry: RetryConfig{
			File:          getenv("RETRY_FILE", ".failed_interactions.log"),
			FlushInterval: getdur("RETRY_FLUSH_INTERVAL", time.Minute),
		},
		Dedupe: DedupeConfig{
			Capacity:     getint("DEDUPE_CAPACITY", 10_000),
			TTL:          getdur("DEDUPE_TTL", 5*time.Minute),
			HistoryLimit: getint("HISTORY_DEDUPE_LIMIT", 30),
		},
		Workers: WorkerConfig{
			Count:     getint("WORKER_COUNT", 8),
			QueueSize: getint("WORKER_QUEUE_SIZE", 256),
		},
		FlowMode: strings.ToLower(strings.TrimSpace(getenv("FLOW_MODE", FlowModeDeferred))),
		DBPath:   getenv("DB_PATH", "gateway.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-messaging-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if cfg.Telegram.BotToken == "" {
		return cfg, errors.New("BOT_TOKEN is required")
	}
	if strings.Count(cfg.Telegram.APIEndpoint, "%s") != 2 {
		return cfg, errors.New("TELEGRAM_API_ENDPOINT must contain two %s verbs (token, method)")
	}
	if cfg.Telegram.WebhookURL != "" && !isHTTPURL(cfg.Telegram.WebhookURL) {
		return cfg, errors.New("WEBHOOK_URL must be an absolute http(s) URL")
	}
	if cfg.Upstream.UserServiceBase == "" {
		return cfg, errors.New("USER_SERVICE_BASE is required")
	}
	if !isHTTPURL(cfg.Upstream.UserServiceBase) {
		return cfg, errors.New("USER_SERVICE_BASE must be an absolute http(s) URL")
	}
	if cfg.Upstream.AgentServiceBase != "" && !isHTTPURL(cfg.Upstream.AgentServiceBase) {
		return cfg, errors.New("AGENT_SERVICE_BASE must be an absolute http(s) URL")
	}
	if cfg.Upstream.RequestTimeout <= 0 {
		return cfg, errors.New("REQUEST_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Retry.File) == "" {
		return cfg, errors.New("RETRY_FILE must not be empty")
	}
	if cfg.Retry.FlushInterval < 0 {
		return cfg, errors.New("RETRY_FLUSH_INTERVAL must be >= 0")
	}
	if cfg.Dedupe.Capacity < 1 || cfg.Dedupe.TTL <= 0 {
		return cfg, errors.New("DEDUPE_CAPACITY must be >= 1 and DEDUPE_TTL > 0")
	}
	if cfg.Dedupe.HistoryLimit < 1 {
		return cfg, errors.New("HISTORY_DEDUPE_LIMIT must be >= 1")
	}
	switch cfg.FlowMode {
	case FlowModeDeferred, FlowModeResolveFirst:
	default:
		return cfg, errors.New("FLOW_MODE must be one of: deferred, resolve_first")
	}
	if cfg.Workers.Count < 1 || cfg.Workers.QueueSize < 1 {
		return cfg, errors.New("WORKER_COUNT and WORKER_QUEUE_SIZE must be >= 1")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.AdminBasePath == "/" {
		return cfg, errors.New("ADMIN_BASE_PATH must not be the root path")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// isHTTPURL reports whether s parses as an absolute http or https URL.
func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
