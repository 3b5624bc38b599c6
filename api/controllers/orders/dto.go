package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CancelRequest carries the buyer's stated reason for cancelling.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// RefundRequest issues a full or partial refund against a paid order.
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// BulkStatusRequest moves a batch of orders to the same status.
type BulkStatusRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1,max=100"`
	Status   string      `json:"status" validate:"required"`
}
