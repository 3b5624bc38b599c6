package checkout

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/internal/cart"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

// PricingBreakdown is the frozen cost structure a checkout session carries.
// Every field is exact decimal; rounding happens once per component.
type PricingBreakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	PlatformFee    decimal.Decimal `json:"platform_fee"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	Total          decimal.Decimal `json:"total"`
	Currency       enums.Currency  `json:"currency"`
}

// CheckoutSession is ephemeral. It never touches the database; the order
// service consumes it to create the persistent order.
type CheckoutSession struct {
	SessionID       uuid.UUID          `json:"session_id"`
	UserID          uuid.UUID          `json:"user_id"`
	CartID          uuid.UUID          `json:"cart_id"`
	Items           []cart.CartItemDTO `json:"items"`
	Pricing         PricingBreakdown   `json:"pricing"`
	ShippingAddress types.Address      `json:"shipping_address"`
	CreatedAt       time.Time          `json:"created_at"`
}

// CreateSessionInput carries everything CreateCheckoutSession needs.
type CreateSessionInput struct {
	UserID          uuid.UUID     `json:"user_id" validate:"required"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}
