// Package repo: Delivery ledger.
//
// Every reply the gateway tries to send ends up as one row, sent or failed.
// Failed rows keep the Bot API classification so an operator can tell a
// blocked bot (client error) from an outage (retryable).
//
// Functions:
//
//   - RecordDelivery(ctx, db, d) -> (*domain.Delivery, error)
//     Assigns ID and CreatedAt when missing, then inserts.
//
//   - ListDeliveries(ctx, db, status, limit) -> ([]domain.Delivery, error)
//     Newest first; status "" means any.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/utils"
)

// Bounds for ListDeliveries.
const (
	DefaultDeliveryLimit = 50
	MaxDeliveryLimit     = 500
)

// RecordDelivery inserts d, filling ID and CreatedAt when they are zero.
func RecordDelivery(ctx context.Context, db *gorm.DB, d domain.Delivery) (*domain.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeliveries returns up to limit rows, newest first, optionally filtered
// by status. limit is clamped to [1, MaxDeliveryLimit].
func ListDeliveries(ctx context.Context, db *gorm.DB, status string, limit int) ([]domain.Delivery, error) {
	limit = utils.ClampLimit(limit, DefaultDeliveryLimit, MaxDeliveryLimit)
	q := db.WithContext(ctx).Model(&domain.Delivery{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Delivery
	err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
