package users

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// Repository exposes the user lookups the storefront services need. Account
// management itself lives outside this service.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// IsActiveFarmer reports whether the user exists, is a farmer and is active.
func (r *Repository) IsActiveFarmer(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND role = ? AND status = ?", id, enums.UserRoleFarmer, enums.UserStatusActive).
		Count(&count).Error
	return count > 0, err
}
