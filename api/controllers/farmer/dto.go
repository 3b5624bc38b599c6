package farmer

import "github.com/google/uuid"

// FulfillmentRequest advances one order line through fulfillment.
type FulfillmentRequest struct {
	Status         string  `json:"status" validate:"required"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
}

// BulkFulfillmentRequest advances the farmer's lines across many orders.
type BulkFulfillmentRequest struct {
	OrderIDs []uuid.UUID `json:"order_ids" validate:"required,min=1,max=100"`
	Status   string      `json:"status" validate:"required"`
	Note     *string     `json:"note,omitempty"`
}
