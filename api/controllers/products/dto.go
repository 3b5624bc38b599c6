package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateProductRequest is the payload accepted when a farmer lists produce.
type CreateProductRequest struct {
	Name        string           `json:"name" validate:"required,min=2,max=200"`
	Description *string          `json:"description,omitempty"`
	Category    string           `json:"category" validate:"required"`
	Tags        []string         `json:"tags,omitempty"`
	Price       decimal.Decimal  `json:"price" validate:"required"`
	Unit        string           `json:"unit" validate:"required"`
	Quantity    decimal.Decimal  `json:"quantity" validate:"required"`
	MinOrderQty *decimal.Decimal `json:"min_order_qty,omitempty"`
	MaxOrderQty *decimal.Decimal `json:"max_order_qty,omitempty"`
	WeightKg    *decimal.Decimal `json:"weight_kg,omitempty"`
	IsOrganic   bool             `json:"is_organic"`
	HarvestedAt *time.Time       `json:"harvested_at,omitempty"`
}

// UpdateProductRequest carries partial updates; omitted fields are untouched.
type UpdateProductRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Unit        *string          `json:"unit,omitempty"`
	MinOrderQty *decimal.Decimal `json:"min_order_qty,omitempty"`
	MaxOrderQty *decimal.Decimal `json:"max_order_qty,omitempty"`
	WeightKg    *decimal.Decimal `json:"weight_kg,omitempty"`
	IsOrganic   *bool            `json:"is_organic,omitempty"`
	HarvestedAt *time.Time       `json:"harvested_at,omitempty"`
	Status      *string          `json:"status,omitempty"`
}

// RestockRequest tops up on-hand inventory for a listing.
type RestockRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
	Note     *string         `json:"note,omitempty"`
}
