package cart

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// CartOwner identifies the cart holder: a signed-in user or a guest session.
// Exactly one field must be set.
type CartOwner struct {
	UserID    *uuid.UUID
	SessionID *string
}

// CartDTO is the transport shape for a cart.
type CartDTO struct {
	ID        uuid.UUID        `json:"id"`
	UserID    *uuid.UUID       `json:"user_id,omitempty"`
	SessionID *string          `json:"session_id,omitempty"`
	Status    enums.CartStatus `json:"status"`
	ExpiresAt time.Time        `json:"expires_at"`
	Items     []CartItemDTO    `json:"items"`
	CreatedAt time.Time        `json:"created_at"`
}

// CartItemDTO exposes a cart line with its snapshot price and line total.
type CartItemDTO struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// CartSummary aggregates the cart for display before checkout.
type CartSummary struct {
	CartID    uuid.UUID       `json:"cart_id"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Items     []CartItemDTO   `json:"items"`
}

// IssueReason classifies cart validation failures.
type IssueReason string

const (
	IssueInsufficientStock  IssueReason = "insufficient_stock"
	IssueProductUnavailable IssueReason = "product_unavailable"
)

// ValidationIssue describes one problem found while validating cart items.
type ValidationIssue struct {
	ProductID uuid.UUID        `json:"product_id"`
	Reason    IssueReason      `json:"reason"`
	Requested decimal.Decimal  `json:"requested"`
	Available *decimal.Decimal `json:"available,omitempty"`
}

// ValidationResult is the outcome of ValidateCartItems.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues"`
}

func cartFromModel(c *models.Cart) *CartDTO {
	if c == nil {
		return nil
	}
	dto := &CartDTO{
		ID:        c.ID,
		UserID:    c.UserID,
		SessionID: c.SessionID,
		Status:    c.Status,
		ExpiresAt: c.ExpiresAt,
		Items:     make([]CartItemDTO, 0, len(c.Items)),
		CreatedAt: c.CreatedAt,
	}
	for i := range c.Items {
		dto.Items = append(dto.Items, itemFromModel(&c.Items[i]))
	}
	return dto
}

func itemFromModel(item *models.CartItem) CartItemDTO {
	return CartItemDTO{
		ID:        item.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		LineTotal: item.UnitPrice.Mul(item.Quantity).Round(2),
	}
}
