package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// OrderItem captures the snapshot of each line within an order. FarmerID is
// denormalized so per-farmer fulfillment queries avoid a product join.
type OrderItem struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID         *uuid.UUID              `gorm:"column:product_id;type:uuid"`
	FarmerID          uuid.UUID               `gorm:"column:farmer_id;type:uuid;not null;index"`
	ProductName       string                  `gorm:"column:product_name;not null"`
	Unit              string                  `gorm:"column:unit;not null;default:'each'"`
	Quantity          decimal.Decimal         `gorm:"column:quantity;type:numeric(12,3);not null"`
	UnitPrice         decimal.Decimal         `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal         decimal.Decimal         `gorm:"column:line_total;type:numeric(12,2);not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:text;not null;default:'pending'"`
	TrackingNumber    *string                 `gorm:"column:tracking_number"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
