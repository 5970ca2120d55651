package handlers

import (
	"context"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/repo"
	"github.com/tbourn/go-messaging-gateway/internal/services"
)

//
// Service contracts (context-aware)
//

// UpdateHandler runs one raw Telegram update through the message flow.
type UpdateHandler interface {
	Handle(ctx context.Context, raw []byte) services.Outcome
}

// RetryQueue exposes the failed-interaction queue to operators.
type RetryQueue interface {
	// Flush replays queued items and returns how many were delivered.
	Flush(ctx context.Context) (int, error)
	// Pending returns the number of queued items.
	Pending() (int, error)
}

// DeliveryLedger lists and summarizes reply deliveries.
type DeliveryLedger interface {
	List(ctx context.Context, status string, limit int) ([]domain.Delivery, error)
	Stats(ctx context.Context) (*repo.DeliveryStats, error)
}

// WebhookRegistrar manages the bot's webhook registration with Telegram.
type WebhookRegistrar interface {
	SetWebhook(ctx context.Context, url, secret string) error
	ClearWebhook(ctx context.Context) error
}

//
// Handler wiring
//

// Handlers groups the webhook, health and admin endpoints.
type Handlers struct {
	flow          UpdateHandler
	retries       RetryQueue
	ledger        DeliveryLedger
	webhooks      WebhookRegistrar
	webhookSecret string
}

// New constructs a Handlers bound to the given services. webhookSecret is
// passed to Telegram when an operator registers the webhook.
func New(flow UpdateHandler, retries RetryQueue, ledger DeliveryLedger, webhooks WebhookRegistrar, webhookSecret string) *Handlers {
	return &Handlers{
		flow:          flow,
		retries:       retries,
		ledger:        ledger,
		webhooks:      webhooks,
		webhookSecret: webhookSecret,
	}
}
