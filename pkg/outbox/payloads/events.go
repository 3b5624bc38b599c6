package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// OrderCreatedEvent signals a checkout session was converted into an order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	BuyerID     uuid.UUID       `json:"buyer_id"`
	FarmerIDs   []uuid.UUID     `json:"farmer_ids"`
	Total       decimal.Decimal `json:"total"`
	Currency    enums.Currency  `json:"currency"`
}

// OrderPaidEvent is emitted when the payment provider confirms capture.
type OrderPaidEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	BuyerID         uuid.UUID       `json:"buyer_id"`
	PaymentIntentID string          `json:"payment_intent_id"`
	Amount          decimal.Decimal `json:"amount"`
	PaidAt          time.Time       `json:"paid_at"`
}

// OrderStateChangedEvent surfaces every order status transition.
type OrderStateChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	BuyerID    uuid.UUID         `json:"buyer_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
}

// OrderCancelledEvent is emitted whenever an order is cancelled pre-shipment.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	CancelledAt   time.Time `json:"cancelled_at"`
	Reason        string    `json:"reason,omitempty"`
	StockReleased bool      `json:"stock_released"`
}

// OrderRefundedEvent reports a full or partial refund recorded from the provider.
type OrderRefundedEvent struct {
	OrderID        uuid.UUID       `json:"order_id"`
	BuyerID        uuid.UUID       `json:"buyer_id"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	Partial        bool            `json:"partial"`
}

// PaymentFailedEvent tells downstream systems a payment attempt was declined.
type PaymentFailedEvent struct {
	OrderID         uuid.UUID `json:"order_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	FailureCode     string    `json:"failure_code,omitempty"`
}

// ItemShippedEvent carries per-item fulfillment progress for buyer alerts.
type ItemShippedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	OrderItemID    uuid.UUID `json:"order_item_id"`
	FarmerID       uuid.UUID `json:"farmer_id"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
}

// ProductOutOfStockEvent fires when a sale drains a listing to zero.
type ProductOutOfStockEvent struct {
	ProductID uuid.UUID `json:"product_id"`
	FarmerID  uuid.UUID `json:"farmer_id"`
}

// NotificationRequestedEvent tells the dispatcher to alert a user.
type NotificationRequestedEvent struct {
	UserID  uuid.UUID `json:"user_id"`
	OrderID uuid.UUID `json:"order_id"`
	Type    string    `json:"type"`
}
