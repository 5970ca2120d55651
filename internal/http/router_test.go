package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messaging-gateway/internal/config"
	"github.com/tbourn/go-messaging-gateway/internal/http/middleware"
	"github.com/tbourn/go-messaging-gateway/internal/repo"
	"github.com/tbourn/go-messaging-gateway/internal/services"
)

type countingFlow struct{ n atomic.Int32 }

func (f *countingFlow) Handle(context.Context, []byte) services.Outcome {
	f.n.Add(1)
	return services.OutcomeAccepted
}

type stubRetries struct{}

func (stubRetries) Flush(context.Context) (int, error) { return 1, nil }
func (stubRetries) Pending() (int, error)              { return 0, nil }

type stubWebhooks struct{}

func (stubWebhooks) SetWebhook(context.Context, string, string) error { return nil }
func (stubWebhooks) ClearWebhook(context.Context) error               { return nil }

func newTestLedger(t *testing.T) *services.Ledger {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return &services.Ledger{DB: db}
}

func baseConfig() config.Config {
	return config.Config{
		AdminBasePath: "/admin",
		RateRPS:       100,
		RateBurst:     10,
		OTEL:          config.OTELConfig{ServiceName: "test-svc"},
	}
}

func newRouter(t *testing.T, cfg config.Config) (*gin.Engine, *countingFlow) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	flow := &countingFlow{}
	r := gin.New()
	RegisterRoutes(r, Deps{
		Flow:     flow,
		Retries:  stubRetries{},
		Ledger:   newTestLedger(t),
		Webhooks: stubWebhooks{},
	}, cfg)
	return r, flow
}

func serve(r *gin.Engine, method, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{"update_id":1}`))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Health_Metrics_Fallbacks(t *testing.T) {
	r, _ := newRouter(t, baseConfig())

	w := serve(r, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"ok":true}` {
		t.Fatalf("GET /health = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID on every response")
	}

	w = serve(r, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	w = serve(r, http.MethodGet, "/nope", nil)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusNotFound || body["code"] != "not_found" {
		t.Fatalf("NoRoute = %d %v", w.Code, body)
	}

	w = serve(r, http.MethodGet, "/webhook/telegram", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if w.Code != http.StatusMethodNotAllowed || body["code"] != "method_not_allowed" {
		t.Fatalf("NoMethod = %d %v", w.Code, body)
	}
}

func TestRegisterRoutes_WebhookSecret(t *testing.T) {
	cfg := baseConfig()
	cfg.Telegram.WebhookSecret = "hook"
	r, flow := newRouter(t, cfg)

	w := serve(r, http.MethodPost, "/webhook/telegram", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing secret = %d; want 403", w.Code)
	}
	w = serve(r, http.MethodPost, "/webhook/telegram", map[string]string{middleware.HeaderTelegramSecret: "wrong"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("wrong secret = %d; want 403", w.Code)
	}
	if flow.n.Load() != 0 {
		t.Fatalf("rejected deliveries must not reach the flow")
	}

	w = serve(r, http.MethodPost, "/webhook/telegram", map[string]string{middleware.HeaderTelegramSecret: "hook"})
	if w.Code != http.StatusOK || flow.n.Load() != 1 {
		t.Fatalf("valid secret = %d, flow calls = %d", w.Code, flow.n.Load())
	}
}

func TestRegisterRoutes_WebhookWithoutSecretAndNotRateLimited(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	r, flow := newRouter(t, cfg)

	for i := 0; i < 5; i++ {
		if w := serve(r, http.MethodPost, "/webhook/telegram", nil); w.Code != http.StatusOK {
			t.Fatalf("webhook call %d = %d", i, w.Code)
		}
	}
	if flow.n.Load() != 5 {
		t.Fatalf("flow calls = %d; want 5", flow.n.Load())
	}
}

func TestRegisterRoutes_AdminKeyAndRateLimit(t *testing.T) {
	cfg := baseConfig()
	cfg.AdminKey = "adm"
	cfg.RateRPS, cfg.RateBurst = 0.001, 2
	r, _ := newRouter(t, cfg)

	w := serve(r, http.MethodPost, "/admin/flush-retries", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("no key = %d; want 403", w.Code)
	}

	key := map[string]string{middleware.HeaderAdminKey: "adm"}
	w = serve(r, http.MethodPost, "/admin/flush-retries", key)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"flushed":1}` {
		t.Fatalf("flush = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Cache-Control") != "no-store" || w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("admin security headers missing: %v", w.Header())
	}

	w = serve(r, http.MethodGet, "/admin/retries", key)
	if w.Code != http.StatusOK {
		t.Fatalf("retries = %d", w.Code)
	}
	w = serve(r, http.MethodGet, "/admin/retries", key)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third admin call = %d; want 429", w.Code)
	}
}

func TestRegisterRoutes_AdminCORS(t *testing.T) {
	t.Run("allow all", func(t *testing.T) {
		r, _ := newRouter(t, baseConfig())
		w := serve(r, http.MethodGet, "/admin/deliveries", map[string]string{"Origin": "https://ops.example.com"})
		if w.Code != http.StatusOK {
			t.Fatalf("deliveries = %d %s", w.Code, w.Body.String())
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Fatalf("ACAO = %q; want *", got)
		}
	})

	t.Run("allowlist preflight without admin key", func(t *testing.T) {
		cfg := baseConfig()
		cfg.AdminKey = "adm"
		cfg.CORS.AllowedOrigins = []string{"https://ops.example.com"}
		r, _ := newRouter(t, cfg)

		w := serve(r, http.MethodOptions, "/admin/deliveries", map[string]string{
			"Origin":                        "https://ops.example.com",
			"Access-Control-Request-Method": "GET",
		})
		if w.Code >= 300 {
			t.Fatalf("preflight = %d", w.Code)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
			t.Fatalf("ACAO = %q", got)
		}
	})
}

func TestRegisterRoutes_AdminGzip(t *testing.T) {
	r, _ := newRouter(t, baseConfig())
	w := serve(r, http.MethodGet, "/admin/deliveries", map[string]string{"Accept-Encoding": "gzip"})
	if w.Code != http.StatusOK {
		t.Fatalf("deliveries = %d", w.Code)
	}
	if got := w.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q; want gzip", got)
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	r, _ := newRouter(t, baseConfig())
	if w := serve(r, http.MethodGet, "/swagger/doc.json", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled = %d; want 404", w.Code)
	}

	cfg := baseConfig()
	cfg.SwaggerEnabled = true
	r, _ = newRouter(t, cfg)
	w := serve(r, http.MethodGet, "/swagger/doc.json", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/webhook/telegram") {
		t.Fatalf("swagger doc = %d", w.Code)
	}
}

func TestGroupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if g := groupWithPrefix(r, "/"); g.BasePath() != "/" {
		t.Fatalf("root group base = %q", g.BasePath())
	}
	if g := groupWithPrefix(r, "/ops"); g.BasePath() != "/ops" {
		t.Fatalf("ops group base = %q", g.BasePath())
	}
}
