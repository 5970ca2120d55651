// Package domain: the Delivery ledger model.
package domain

import "time"

// Delivery statuses.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// Delivery records the outcome of sending one reply to Telegram. Failed rows
// carry the Retryable classification of the Bot API error so operators can
// decide whether a manual resend makes sense.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - ChatID: Telegram chat the reply was addressed to (indexed).
//   - UserID: User Service id of the recipient.
//   - TelegramMessageID: inbound message the reply answers, when known.
//   - Status: "sent" or "failed" (enforced by DB constraint).
//   - Retryable: true for 5xx, 429 and transport failures.
//   - Detail: error text for failed rows.
type Delivery struct {
	ID                string    `json:"id"                  gorm:"type:char(36);primaryKey"`
	ChatID            int64     `json:"chat_id"             gorm:"not null;index:idx_delivery_chat"`
	UserID            string    `json:"user_id"             gorm:"type:varchar(64)"`
	TelegramMessageID *int64    `json:"telegram_message_id,omitempty"`
	Status            string    `json:"status"              gorm:"type:varchar(16);not null;index:idx_delivery_status,priority:1;check:status IN ('sent','failed')"`
	Retryable         bool      `json:"retryable"`
	Detail            string    `json:"detail,omitempty"    gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"          gorm:"index:idx_delivery_status,priority:2"`
}

// TableName returns the database table name for Delivery.
func (Delivery) TableName() string { return "deliveries" }
