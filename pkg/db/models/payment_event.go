package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PaymentEvent stores every provider webhook delivery we accepted. The unique
// index on ProviderEventID is the durable idempotency barrier behind the
// faster redis guard.
type PaymentEvent struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProviderEventID string          `gorm:"column:provider_event_id;not null;uniqueIndex"`
	EventType       string          `gorm:"column:event_type;not null"`
	OrderID         *uuid.UUID      `gorm:"column:order_id;type:uuid;index"`
	PaymentIntentID *string         `gorm:"column:payment_intent_id"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	ProcessedAt     time.Time       `gorm:"column:processed_at;autoCreateTime"`
}
