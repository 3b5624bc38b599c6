package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// Product represents a farmer listing. Prices and quantities are NUMERIC so
// produce sold by fractional weight stays exact.
type Product struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FarmerID          uuid.UUID           `gorm:"column:farmer_id;type:uuid;not null;index"`
	Name              string              `gorm:"column:name;not null"`
	Description       *string             `gorm:"column:description"`
	Category          string              `gorm:"column:category;not null"`
	Tags              pq.StringArray      `gorm:"column:tags;type:text[];not null;default:ARRAY[]::text[]"`
	Price             decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	Unit              string              `gorm:"column:unit;not null;default:'each'"`
	QuantityAvailable decimal.Decimal     `gorm:"column:quantity_available;type:numeric(12,3);not null;default:0"`
	MinOrderQty       decimal.Decimal     `gorm:"column:min_order_qty;type:numeric(12,3);not null;default:1"`
	MaxOrderQty       decimal.NullDecimal `gorm:"column:max_order_qty;type:numeric(12,3)"`
	WeightKg          decimal.NullDecimal `gorm:"column:weight_kg;type:numeric(8,3)"`
	Status            enums.ProductStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	IsOrganic         bool                `gorm:"column:is_organic;not null;default:false"`
	HarvestedAt       *time.Time          `gorm:"column:harvested_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
