package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// Cart holds a shopper's in-progress selection. Exactly one of UserID or
// SessionID is set, enforced by a CHECK constraint in the schema.
type Cart struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      *uuid.UUID       `gorm:"column:user_id;type:uuid;index"`
	SessionID   *string          `gorm:"column:session_id;index"`
	Status      enums.CartStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt   time.Time        `gorm:"column:expires_at;not null"`
	ConvertedAt *time.Time       `gorm:"column:converted_at"`
	Items       []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
