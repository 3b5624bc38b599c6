package payments

import (
	"context"

	"gorm.io/gorm"

	dbpkg "github.com/luiscamargo/farmfresh-backend/pkg/db"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
)

// Repository persists the append-only provider event log.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// InsertEvent appends the provider event. The bool reports whether the row is
// new; a unique violation on provider_event_id means a replay.
func (r *Repository) InsertEvent(ctx context.Context, event *models.PaymentEvent) (bool, error) {
	err := r.db.WithContext(ctx).Create(event).Error
	if err != nil {
		if dbpkg.IsUniqueViolation(err, "provider_event_id") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListEventsByOrder returns the provider log for one order, oldest first.
func (r *Repository) ListEventsByOrder(ctx context.Context, orderID string) ([]models.PaymentEvent, error) {
	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("processed_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
