package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
	"github.com/tbourn/go-messaging-gateway/internal/repo"
)

// Ledger exposes the Delivery ledger to the flow and the admin API.
type Ledger struct {
	DB *gorm.DB
}

// RecordDelivery stores one delivery outcome.
func (l *Ledger) RecordDelivery(ctx context.Context, d domain.Delivery) error {
	_, err := repo.RecordDelivery(ctx, l.DB, d)
	return err
}

// List returns recent deliveries, newest first. status "" means any.
func (l *Ledger) List(ctx context.Context, status string, limit int) ([]domain.Delivery, error) {
	switch status {
	case "", domain.DeliverySent, domain.DeliveryFailed:
	default:
		return nil, ErrInvalidStatus
	}
	return repo.ListDeliveries(ctx, l.DB, status, limit)
}

// Stats summarizes the ledger.
func (l *Ledger) Stats(ctx context.Context) (*repo.DeliveryStats, error) {
	return repo.DeliveriesStats(ctx, l.DB)
}
