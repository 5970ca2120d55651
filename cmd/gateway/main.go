// Command gateway runs the Telegram messaging gateway: it receives bot
// updates over a webhook, resolves the sender against the User Service,
// forwards the text to the Agent Service and delivers the reply.
//
// @title          Messaging Gateway API
// @version        1.0
// @description    Telegram webhook intake and admin operations.
// @BasePath       /
// @schemes        http https
//
// @securityDefinitions.apikey AdminKey
// @in   header
// @name X-Admin-Key
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/go-messaging-gateway/internal/clients"
	"github.com/tbourn/go-messaging-gateway/internal/config"
	"github.com/tbourn/go-messaging-gateway/internal/dedupe"
	httpapi "github.com/tbourn/go-messaging-gateway/internal/http"
	"github.com/tbourn/go-messaging-gateway/internal/observability"
	"github.com/tbourn/go-messaging-gateway/internal/repo"
	"github.com/tbourn/go-messaging-gateway/internal/retryqueue"
	"github.com/tbourn/go-messaging-gateway/internal/services"
	"github.com/tbourn/go-messaging-gateway/internal/sysutil"
	"github.com/tbourn/go-messaging-gateway/internal/telegram"
	"github.com/tbourn/go-messaging-gateway/internal/worker"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = ""

const shutdownTimeout = 15 * time.Second

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	gin.SetMode(cfg.GinMode)
	sysutil.SetupLogger(os.Stdout, cfg.OTEL.ServiceName, cfg.LogPretty)
	sysutil.SetLogLevel(cfg.LogLevel)

	ver := sysutil.FirstNonEmpty(version, os.Getenv("APP_VERSION"), "dev")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mode, err := services.ParseFlowMode(cfg.FlowMode)
	if err != nil {
		log.Fatal().Err(err).Msg("flow mode")
	}

	otelShutdown, err := observability.SetupOTel(ctx, cfg.OTEL, ver, observability.GatewayAttributes(
		string(mode),
		cfg.Upstream.AgentServiceBase != "",
		cfg.Telegram.WebhookSecret != "",
	)...)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup")
	}

	hc := &http.Client{
		Timeout:   cfg.Upstream.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open ledger")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate ledger")
	}

	queue := retryqueue.New(cfg.Retry.File)
	users := clients.NewUserService(cfg.Upstream.UserServiceBase, hc, queue)
	agent := clients.NewAgentService(cfg.Upstream.AgentServiceBase, hc)
	bot := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.APIEndpoint, hc)

	retries := services.NewRetryService(queue, users)
	if n, err := retries.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("startup retry flush")
	} else if n > 0 {
		log.Info().Int("flushed", n).Msg("startup retry flush")
	}
	if cfg.Retry.FlushInterval > 0 {
		go retries.Run(ctx, cfg.Retry.FlushInterval)
	}

	if cfg.Telegram.WebhookURL != "" {
		if err := bot.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			log.Error().Err(err).Msg("register webhook")
		} else {
			log.Info().Str("url", cfg.Telegram.WebhookURL).Msg("webhook registered")
		}
	}

	pool := worker.New(cfg.Workers.Count, cfg.Workers.QueueSize)
	flow := services.NewMessageFlow(users, agent, bot, dedupe.New(cfg.Dedupe.Capacity, cfg.Dedupe.TTL), pool)
	flow.Mode = mode
	flow.HistoryLimit = cfg.Dedupe.HistoryLimit
	ledger := &services.Ledger{DB: db}
	flow.Ledger = ledger

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Flow:     flow,
		Retries:  retries,
		Ledger:   ledger,
		Webhooks: bot,
	}, cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("mode", string(mode)).
			Bool("agent_configured", agent.Configured()).
			Str("version", ver).
			Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("worker shutdown")
	}
	if err := otelShutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	hc.CloseIdleConnections()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("bye")
}
