package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// InventoryHistory is an append-only ledger of stock movements. Every row is
// written inside the same transaction as the quantity change it records.
type InventoryHistory struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID      uuid.UUID                 `gorm:"column:product_id;type:uuid;not null;index"`
	ChangeType     enums.InventoryChangeType `gorm:"column:change_type;type:text;not null"`
	QuantityBefore decimal.Decimal           `gorm:"column:quantity_before;type:numeric(12,3);not null"`
	QuantityDelta  decimal.Decimal           `gorm:"column:quantity_delta;type:numeric(12,3);not null"`
	QuantityAfter  decimal.Decimal           `gorm:"column:quantity_after;type:numeric(12,3);not null"`
	OrderID        *uuid.UUID                `gorm:"column:order_id;type:uuid"`
	ActorID        *uuid.UUID                `gorm:"column:actor_id;type:uuid"`
	Note           *string                   `gorm:"column:note"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
