package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// setRequired sets the variables Load refuses to default.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("USER_SERVICE_BASE", "http://users.local")
}

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	setRequired(t)
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.AdminBasePath != "/admin" {
		t.Fatalf("AdminBasePath default = %q; want /admin", cfg.AdminBasePath)
	}
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")

	// Admin
	t.Setenv("ADMIN_BASE_PATH", "ops/") // -> "/ops"
	t.Setenv("ADMIN_KEY", "k")

	// Telegram + upstreams (trailing slashes trimmed)
	t.Setenv("BOT_TOKEN", " 42:tok ")
	t.Setenv("WEBHOOK_SECRET", "s")
	t.Setenv("WEBHOOK_URL", "https://gw.example.com/webhook/telegram")
	t.Setenv("USER_SERVICE_BASE", "http://users:8000/")
	t.Setenv("AGENT_SERVICE_BASE", "http://agent:9000/")
	t.Setenv("REQUEST_TIMEOUT", "3s")

	// Gateway internals
	t.Setenv("RETRY_FILE", "/tmp/q.log")
	t.Setenv("RETRY_FLUSH_INTERVAL", "0s")
	t.Setenv("DEDUPE_CAPACITY", "50")
	t.Setenv("DEDUPE_TTL", "1m")
	t.Setenv("HISTORY_DEDUPE_LIMIT", "5")
	t.Setenv("FLOW_MODE", " Resolve_First ")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("WORKER_QUEUE_SIZE", "4")
	t.Setenv("DB_PATH", "db.sqlite")

	// Rate limiting (use invalids for parse to fall back to defaults)
	t.Setenv("RATE_RPS", "x")      // -> default 5.0
	t.Setenv("RATE_BURST", "nope") // -> default 10

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.AdminBasePath != "/ops" || cfg.AdminKey != "k" {
		t.Fatalf("admin unexpected: %q %q", cfg.AdminBasePath, cfg.AdminKey)
	}

	wantTG := TelegramConfig{
		BotToken:      "42:tok",
		APIEndpoint:   "https://api.telegram.org/bot%s/%s",
		WebhookSecret: "s",
		WebhookURL:    "https://gw.example.com/webhook/telegram",
	}
	if cfg.Telegram != wantTG {
		t.Fatalf("telegram = %+v; want %+v", cfg.Telegram, wantTG)
	}
	wantUp := UpstreamConfig{
		UserServiceBase:  "http://users:8000",
		AgentServiceBase: "http://agent:9000",
		RequestTimeout:   3 * time.Second,
	}
	if cfg.Upstream != wantUp {
		t.Fatalf("upstream = %+v; want %+v", cfg.Upstream, wantUp)
	}

	if cfg.Retry != (RetryConfig{File: "/tmp/q.log", FlushInterval: 0}) {
		t.Fatalf("retry unexpected: %+v", cfg.Retry)
	}
	if cfg.Dedupe != (DedupeConfig{Capacity: 50, TTL: time.Minute, HistoryLimit: 5}) {
		t.Fatalf("dedupe unexpected: %+v", cfg.Dedupe)
	}
	if cfg.FlowMode != FlowModeResolveFirst {
		t.Fatalf("flow mode = %q", cfg.FlowMode)
	}
	if cfg.Workers != (WorkerConfig{Count: 2, QueueSize: 4}) || cfg.DBPath != "db.sqlite" {
		t.Fatalf("workers/db unexpected: %+v %q", cfg.Workers, cfg.DBPath)
	}

	if cfg.RateRPS != 5.0 || cfg.RateBurst != 10 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.FlowMode != FlowModeDeferred {
		t.Fatalf("FlowMode default = %q", cfg.FlowMode)
	}
	if cfg.Retry.File != ".failed_interactions.log" || cfg.Retry.FlushInterval != time.Minute {
		t.Fatalf("retry defaults unexpected: %+v", cfg.Retry)
	}
	if cfg.Dedupe.Capacity != 10_000 || cfg.Dedupe.TTL != 5*time.Minute || cfg.Dedupe.HistoryLimit != 30 {
		t.Fatalf("dedupe defaults unexpected: %+v", cfg.Dedupe)
	}
	if cfg.Upstream.AgentServiceBase != "" || cfg.Upstream.RequestTimeout != 10*time.Second {
		t.Fatalf("upstream defaults unexpected: %+v", cfg.Upstream)
	}
	if cfg.Telegram.WebhookSecret != "" || cfg.Telegram.WebhookURL != "" || cfg.AdminKey != "" {
		t.Fatalf("optional secrets should default empty: %+v", cfg.Telegram)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		val     string
		wantErr string
	}{
		{"invalid LOG_LEVEL", "LOG_LEVEL", "verbose", "LOG_LEVEL"},
		{"empty PORT via spaces", "PORT", "   ", "PORT must not be empty"},
		{"non-positive timeouts", "READ_TIMEOUT", "0s", "timeouts must be positive"},
		{"max header bytes <= 0", "MAX_HEADER_BYTES", "0", "MAX_HEADER_BYTES"},
		{"bot token blank", "BOT_TOKEN", "  ", "BOT_TOKEN is required"},
		{"endpoint without verbs", "TELEGRAM_API_ENDPOINT", "https://api.telegram.org/", "TELEGRAM_API_ENDPOINT"},
		{"webhook url relative", "WEBHOOK_URL", "/webhook", "WEBHOOK_URL"},
		{"user service not a url", "USER_SERVICE_BASE", "users", "USER_SERVICE_BASE must be"},
		{"agent service bad scheme", "AGENT_SERVICE_BASE", "ftp://agent", "AGENT_SERVICE_BASE"},
		{"request timeout zero", "REQUEST_TIMEOUT", "0s", "REQUEST_TIMEOUT"},
		{"retry file blank", "RETRY_FILE", " ", "RETRY_FILE"},
		{"flush interval negative", "RETRY_FLUSH_INTERVAL", "-1s", "RETRY_FLUSH_INTERVAL"},
		{"dedupe capacity zero", "DEDUPE_CAPACITY", "0", "DEDUPE_CAPACITY"},
		{"dedupe ttl zero", "DEDUPE_TTL", "0s", "DEDUPE_TTL"},
		{"history limit zero", "HISTORY_DEDUPE_LIMIT", "0", "HISTORY_DEDUPE_LIMIT"},
		{"unknown flow mode", "FLOW_MODE", "eager", "FLOW_MODE"},
		{"worker count zero", "WORKER_COUNT", "0", "WORKER_COUNT"},
		{"empty DB_PATH", "DB_PATH", "   ", "DB_PATH must not be empty"},
		{"admin at root", "ADMIN_BASE_PATH", "/", "ADMIN_BASE_PATH"},
		{"rate rps negative", "RATE_RPS", "-1", "RATE_RPS"},
		{"rate burst < 1", "RATE_BURST", "0", "RATE_BURST"},
		{"hsts max age negative", "HSTS_MAX_AGE", "-1s", "HSTS_MAX_AGE"},
		{"otel sample ratio out of range", "OTEL_TRACES_SAMPLER_ARG", "1.5", "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)
			if _, err := Load(); !containsErr(err, tc.wantErr) {
				t.Fatalf("expected %q error, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingUserService(t *testing.T) {
	t.Setenv("BOT_TOKEN", "1:a")
	t.Setenv("USER_SERVICE_BASE", "")
	if _, err := Load(); !containsErr(err, "USER_SERVICE_BASE is required") {
		t.Fatalf("expected USER_SERVICE_BASE error, got: %v", err)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + string(rune('a'+i))
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + string(rune('a'+i))
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_normalizeBasePath_isHTTPURL(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: got %#v", got)
	}

	for in, want := range map[string]string{"": "/", "v1": "/v1", "/v1/": "/v1", " / ": "/"} {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q; want %q", in, got, want)
		}
	}

	for in, want := range map[string]bool{
		"http://a":         true,
		"https://a.b/c":    true,
		"a.b":              false,
		"ftp://a":          false,
		"http://":          false,
		"://missingscheme": false,
	} {
		if got := isHTTPURL(in); got != want {
			t.Fatalf("isHTTPURL(%q) = %v; want %v", in, got, want)
		}
	}
}

// Ensure tests don't leak env to others.
func TestMain(m *testing.M) {
	for _, k := range []string{"PORT", "BOT_TOKEN", "USER_SERVICE_BASE", "AGENT_SERVICE_BASE", "FLOW_MODE"} {
		os.Unsetenv(k)
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}
