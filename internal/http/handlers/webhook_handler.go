// Webhook and health handlers.
//
//   - POST /webhook/telegram  (inbound Telegram update)
//   - GET  /health            (liveness)
//
// The webhook always acknowledges with 200 {"ok": true}: Telegram redelivers
// anything else, and every failure past intake is handled inside the flow.
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-gateway/internal/http/middleware"
)

// maxUpdateBytes caps how much of a webhook body is read.
const maxUpdateBytes = 1 << 20

// Ack is the body returned by the webhook and health endpoints.
type Ack struct {
	OK bool `json:"ok" example:"true"`
}

// TelegramWebhook godoc
// @ID          telegramWebhook
// @Summary     Receive a Telegram update
// @Description Accepts one Bot API update. Duplicates, malformed bodies and unsupported updates are acknowledged without side effects.
// @Tags        Webhook
// @Accept      json
// @Produce     json
//
// @Param       X-Telegram-Bot-Api-Secret-Token header string false "Webhook secret (required when WEBHOOK_SECRET is set)"
// @Param       body body object true "Telegram Update"
//
// @Success     200 {object} handlers.Ack
// @Failure     403 {object} handlers.ErrorResponse "Secret mismatch"
// @Router      /webhook/telegram [post]
func (h *Handlers) TelegramWebhook(c *gin.Context) {
	lg := middleware.LoggerFrom(c)

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxUpdateBytes))
	if err != nil {
		lg.Warn().Err(err).Msg("read update body")
		raw = nil
	}

	outcome := h.flow.Handle(c.Request.Context(), raw)
	lg.Debug().Str("outcome", string(outcome)).Int("bytes", len(raw)).Msg("update handled")

	ok(c, http.StatusOK, Ack{OK: true})
}

// Health godoc
// @ID       health
// @Summary  Liveness probe
// @Tags     Health
// @Produce  json
// @Success  200 {object} handlers.Ack
// @Router   /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ok(c, http.StatusOK, Ack{OK: true})
}
