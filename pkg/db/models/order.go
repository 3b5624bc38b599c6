package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

// Order is the buyer-facing record produced from a checkout session.
type Order struct {
	ID                uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber       string               `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID           uuid.UUID            `gorm:"column:buyer_id;type:uuid;not null;index"`
	CartID            *uuid.UUID           `gorm:"column:cart_id;type:uuid"`
	Status            enums.OrderStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus  `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	PaymentIntentID   *string              `gorm:"column:payment_intent_id;index"`
	ProviderSession   *string              `gorm:"column:provider_session_id;index"`
	Currency          enums.Currency       `gorm:"column:currency;type:text;not null;default:'USD'"`
	Subtotal          decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null"`
	TaxAmount         decimal.Decimal      `gorm:"column:tax_amount;type:numeric(12,2);not null;default:0"`
	ShippingAmount    decimal.Decimal      `gorm:"column:shipping_amount;type:numeric(12,2);not null;default:0"`
	PlatformFee       decimal.Decimal      `gorm:"column:platform_fee;type:numeric(12,2);not null;default:0"`
	Total             decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null"`
	RefundedAmount    decimal.Decimal      `gorm:"column:refunded_amount;type:numeric(12,2);not null;default:0"`
	ShippingAddress   types.Address        `gorm:"column:shipping_address;type:jsonb;not null"`
	Metadata          types.Metadata       `gorm:"column:metadata;type:jsonb"`
	TrackingNumber    *string              `gorm:"column:tracking_number"`
	EstimatedDelivery *time.Time           `gorm:"column:estimated_delivery"`
	PaidAt            *time.Time           `gorm:"column:paid_at"`
	CancelledAt       *time.Time           `gorm:"column:cancelled_at"`
	CancelReason      *string              `gorm:"column:cancellation_reason"`
	DeliveredAt       *time.Time           `gorm:"column:delivered_at"`
	Items             []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory     []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
