// Package repo: aggregate queries over the Delivery ledger, used by the admin
// endpoints. Each function is context-aware.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-gateway/internal/domain"
)

// DeliveryStats summarizes the ledger.
type DeliveryStats struct {
	ByStatus       map[string]int64 `json:"by_status"`
	RetryableFails int64            `json:"retryable_failures"`
	LastAt         *time.Time       `json:"last_at,omitempty"`
}

// DeliveriesStats returns per-status counts, the number of failed rows that
// were classified retryable, and the newest CreatedAt (nil when empty).
func DeliveriesStats(ctx context.Context, db *gorm.DB) (*DeliveryStats, error) {
	base := db.WithContext(ctx).Model(&domain.Delivery{})

	var rows []struct {
		Status string
		N      int64
	}
	if err := base.Session(&gorm.Session{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	st := &DeliveryStats{ByStatus: make(map[string]int64, len(rows))}
	total := int64(0)
	for _, r := range rows {
		st.ByStatus[r.Status] = r.N
		total += r.N
	}
	if total == 0 {
		return st, nil
	}

	if err := base.Session(&gorm.Session{}).
		Where("status = ? AND retryable = ?", domain.DeliveryFailed, true).
		Count(&st.RetryableFails).Error; err != nil {
		return nil, err
	}

	// Get latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err := base.Session(&gorm.Session{}).
		Select("created_at").
		Order("created_at DESC").
		Limit(1).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	st.LastAt = &row.CreatedAt
	return st, nil
}
