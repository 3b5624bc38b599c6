package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

// OrderDTO is the external view of an order.
type OrderDTO struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"order_number"`
	BuyerID           uuid.UUID           `json:"buyer_id"`
	Status            enums.OrderStatus   `json:"status"`
	PaymentStatus     enums.PaymentStatus `json:"payment_status"`
	Currency          enums.Currency      `json:"currency"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	TaxAmount         decimal.Decimal     `json:"tax_amount"`
	ShippingAmount    decimal.Decimal     `json:"shipping_amount"`
	PlatformFee       decimal.Decimal     `json:"platform_fee"`
	Total             decimal.Decimal     `json:"total"`
	RefundedAmount    decimal.Decimal     `json:"refunded_amount"`
	ShippingAddress   types.Address       `json:"shipping_address"`
	Items             []OrderItemDTO      `json:"items"`
	TrackingNumber    *string             `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time          `json:"estimated_delivery,omitempty"`
	PaidAt            *time.Time          `json:"paid_at,omitempty"`
	CancelledAt       *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason      *string             `json:"cancellation_reason,omitempty"`
	DeliveredAt       *time.Time          `json:"delivered_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// OrderItemDTO is one fulfillment line.
type OrderItemDTO struct {
	ID                uuid.UUID               `json:"id"`
	ProductID         *uuid.UUID              `json:"product_id,omitempty"`
	FarmerID          uuid.UUID               `json:"farmer_id"`
	ProductName       string                  `json:"product_name"`
	Unit              string                  `json:"unit"`
	Quantity          decimal.Decimal         `json:"quantity"`
	UnitPrice         decimal.Decimal         `json:"unit_price"`
	LineTotal         decimal.Decimal         `json:"line_total"`
	FulfillmentStatus enums.FulfillmentStatus `json:"fulfillment_status"`
	TrackingNumber    *string                 `json:"tracking_number,omitempty"`
	ShippedAt         *time.Time              `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time              `json:"delivered_at,omitempty"`
}

// OrderList is a cursor page of orders.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// FulfillmentUpdateInput drives UpdateItemFulfillment.
type FulfillmentUpdateInput struct {
	OrderID        uuid.UUID               `json:"order_id" validate:"required"`
	ItemID         uuid.UUID               `json:"item_id" validate:"required"`
	Status         enums.FulfillmentStatus `json:"status" validate:"required"`
	TrackingNumber *string                 `json:"tracking_number,omitempty"`
}

// BulkStatusResult reports the per-order outcome of a bulk transition.
type BulkStatusResult struct {
	Updated []uuid.UUID         `json:"updated"`
	Failed  []BulkStatusFailure `json:"failed"`
}

// BulkStatusFailure names one order the bulk update skipped and why.
type BulkStatusFailure struct {
	OrderID uuid.UUID `json:"order_id"`
	Reason  string    `json:"reason"`
}

// FarmerAnalytics aggregates a farmer's order activity over a window.
type FarmerAnalytics struct {
	TotalOrders          int64                             `json:"total_orders"`
	TotalRevenue         decimal.Decimal                   `json:"total_revenue"`
	AverageOrderValue    decimal.Decimal                   `json:"average_order_value"`
	StatusBreakdown      map[enums.OrderStatus]int64       `json:"status_breakdown"`
	FulfillmentBreakdown map[enums.FulfillmentStatus]int64 `json:"fulfillment_breakdown"`
	From                 *time.Time                        `json:"from,omitempty"`
	To                   *time.Time                        `json:"to,omitempty"`
}

// ShippingLabel is the generated label stub handed back to the farmer.
type ShippingLabel struct {
	OrderID           uuid.UUID `json:"order_id"`
	TrackingNumber    string    `json:"tracking_number"`
	Carrier           string    `json:"carrier"`
	EstimatedDelivery time.Time `json:"estimated_delivery"`
}

func orderFromModel(m *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:                m.ID,
		OrderNumber:       m.OrderNumber,
		BuyerID:           m.BuyerID,
		Status:            m.Status,
		PaymentStatus:     m.PaymentStatus,
		Currency:          m.Currency,
		Subtotal:          m.Subtotal,
		TaxAmount:         m.TaxAmount,
		ShippingAmount:    m.ShippingAmount,
		PlatformFee:       m.PlatformFee,
		Total:             m.Total,
		RefundedAmount:    m.RefundedAmount,
		ShippingAddress:   m.ShippingAddress,
		Items:             make([]OrderItemDTO, 0, len(m.Items)),
		TrackingNumber:    m.TrackingNumber,
		EstimatedDelivery: m.EstimatedDelivery,
		PaidAt:            m.PaidAt,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
		DeliveredAt:       m.DeliveredAt,
		CreatedAt:         m.CreatedAt,
	}
	for i := range m.Items {
		dto.Items = append(dto.Items, itemFromModel(&m.Items[i]))
	}
	return dto
}

func itemFromModel(m *models.OrderItem) OrderItemDTO {
	return OrderItemDTO{
		ID:                m.ID,
		ProductID:         m.ProductID,
		FarmerID:          m.FarmerID,
		ProductName:       m.ProductName,
		Unit:              m.Unit,
		Quantity:          m.Quantity,
		UnitPrice:         m.UnitPrice,
		LineTotal:         m.LineTotal,
		FulfillmentStatus: m.FulfillmentStatus,
		TrackingNumber:    m.TrackingNumber,
		ShippedAt:         m.ShippedAt,
		DeliveredAt:       m.DeliveredAt,
	}
}
