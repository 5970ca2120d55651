// Admin HTTP handlers.
//
//   - POST   /admin/flush-retries  (replay the failed-interaction queue)
//   - GET    /admin/retries        (queue depth)
//   - GET    /admin/deliveries     (delivery ledger, newest first)
//   - POST   /admin/webhook        (register the webhook with Telegram)
//   - DELETE /admin/webhook        (remove it)
//
// The group is guarded by the X-Admin-Key shared secret in the router.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/repo"
	"github.com/tbourn/go-messaging-gateway/internal/services"
	"github.com/tbourn/go-messaging-gateway/internal/utils"
)

//
// DTOs
//

// FlushResponse reports how many queued interactions were replayed.
type FlushResponse struct {
	Flushed int `json:"flushed" example:"3"`
}

// QueueResponse reports the retry queue depth.
type QueueResponse struct {
	Queued int `json:"queued" example:"2"`
}

// DeliveriesResponse lists ledger rows with a summary.
type DeliveriesResponse struct {
	Deliveries []domain.Delivery   `json:"deliveries"`
	Stats      *repo.DeliveryStats `json:"stats"`
}

// SetWebhookRequest is the JSON payload for registering the webhook.
type SetWebhookRequest struct {
	URL string `json:"url" binding:"required,url" example:"https://gateway.example.com/webhook/telegram"`
}

// FlushRetries godoc
// @ID          flushRetries
// @Summary     Flush the retry queue
// @Description Replays every queued User Service write. Items that fail again stay queued.
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Key header string false "Admin key (required when ADMIN_KEY is set)"
// @Success     200 {object} handlers.FlushResponse
// @Failure     403 {object} handlers.ErrorResponse "Admin key mismatch"
// @Failure     429 {object} handlers.ErrorResponse "Rate limited"
// @Failure     500 {object} handlers.ErrorResponse "Queue could not be read"
// @Router      /admin/flush-retries [post]
func (h *Handlers) FlushRetries(c *gin.Context) {
	n, err := h.retries.Flush(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeFlushFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, FlushResponse{Flushed: n})
}

// RetryStatus godoc
// @ID       retryStatus
// @Summary  Retry queue depth
// @Tags     Admin
// @Produce  json
// @Param    X-Admin-Key header string false "Admin key"
// @Success  200 {object} handlers.QueueResponse
// @Failure  500 {object} handlers.ErrorResponse "Queue could not be read"
// @Router   /admin/retries [get]
func (h *Handlers) RetryStatus(c *gin.Context) {
	n, err := h.retries.Pending()
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeQueueUnreadable, err.Error())
		return
	}
	ok(c, http.StatusOK, QueueResponse{Queued: n})
}

// ListDeliveries godoc
// @ID          listDeliveries
// @Summary     List reply deliveries
// @Description Newest first. limit defaults to 50 and is capped at 500.
// @Tags        Admin
// @Produce     json
// @Param       X-Admin-Key header string false "Admin key"
// @Param       status query string false "Filter by status" Enums(sent, failed)
// @Param       limit  query int    false "Max rows" minimum(1) maximum(500)
// @Success     200 {object} handlers.DeliveriesResponse
// @Failure     400 {object} handlers.ErrorResponse "Unknown status"
// @Failure     500 {object} handlers.ErrorResponse "Ledger error"
// @Router      /admin/deliveries [get]
func (h *Handlers) ListDeliveries(c *gin.Context) {
	ctx := c.Request.Context()
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	limit := utils.AtoiDefault(c.Query("limit"), repo.DefaultDeliveryLimit)

	rows, err := h.ledger.List(ctx, status, limit)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidStatus, "status must be sent or failed")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	stats, err := h.ledger.Stats(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if rows == nil {
		rows = []domain.Delivery{}
	}
	ok(c, http.StatusOK, DeliveriesResponse{Deliveries: rows, Stats: stats})
}

// SetWebhook godoc
// @ID       setWebhook
// @Summary  Register the Telegram webhook
// @Tags     Admin
// @Accept   json
// @Produce  json
// @Param    X-Admin-Key header string false "Admin key"
// @Param    body body handlers.SetWebhookRequest true "Public webhook URL"
// @Success  200 {object} handlers.Ack
// @Failure  400 {object} handlers.ErrorResponse "Invalid URL"
// @Failure  502 {object} handlers.ErrorResponse "Telegram rejected the call"
// @Router   /admin/webhook [post]
func (h *Handlers) SetWebhook(c *gin.Context) {
	var req SetWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url must be an absolute URL")
		return
	}
	if err := h.webhooks.SetWebhook(c.Request.Context(), req.URL, h.webhookSecret); err != nil {
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, Ack{OK: true})
}

// DeleteWebhook godoc
// @ID       deleteWebhook
// @Summary  Remove the Telegram webhook
// @Tags     Admin
// @Produce  json
// @Param    X-Admin-Key header string false "Admin key"
// @Success  200 {object} handlers.Ack
// @Failure  502 {object} handlers.ErrorResponse "Telegram rejected the call"
// @Router   /admin/webhook [delete]
func (h *Handlers) DeleteWebhook(c *gin.Context) {
	if err := h.webhooks.ClearWebhook(c.Request.Context()); err != nil {
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, Ack{OK: true})
}
