package checkout

import (
	"github.com/luiscamargo/farmfresh-backend/internal/orders"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

// QuoteRequest prices the active cart against a shipping destination.
type QuoteRequest struct {
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}

// SubmitRequest turns the active cart into an order and opens payment.
type SubmitRequest struct {
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
}

// SubmitResponse returns the created order and the provider payment URL
// the buyer must complete.
type SubmitResponse struct {
	Order      *orders.OrderDTO `json:"order"`
	PaymentURL string           `json:"payment_url"`
}
