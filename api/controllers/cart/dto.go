package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AddItemRequest puts a product into the active cart.
type AddItemRequest struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
}

// UpdateItemRequest sets the absolute quantity for a cart line.
// A zero quantity removes the line.
type UpdateItemRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}
