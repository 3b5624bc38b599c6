package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

// User represents the canonical identity entity for buyers, farmers and admins.
type User struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email          string           `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash   string           `gorm:"column:password_hash;not null"`
	FirstName      string           `gorm:"column:first_name;not null"`
	LastName       string           `gorm:"column:last_name;not null"`
	Phone          *string          `gorm:"column:phone"`
	Role           enums.UserRole   `gorm:"column:role;type:text;not null;default:'buyer'"`
	Status         enums.UserStatus `gorm:"column:status;type:text;not null;default:'active'"`
	FarmName       *string          `gorm:"column:farm_name"`
	DefaultAddress *types.Address   `gorm:"column:default_address;type:jsonb"`
	LastLoginAt    *time.Time       `gorm:"column:last_login_at"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
