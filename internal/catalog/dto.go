package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// ProductDTO is the transport shape for a listing.
type ProductDTO struct {
	ID                uuid.UUID           `json:"id"`
	FarmerID          uuid.UUID           `json:"farmer_id"`
	Name              string              `json:"name"`
	Description       *string             `json:"description,omitempty"`
	Category          string              `json:"category"`
	Tags              []string            `json:"tags"`
	Price             decimal.Decimal     `json:"price"`
	Unit              string              `json:"unit"`
	QuantityAvailable decimal.Decimal     `json:"quantity_available"`
	MinOrderQty       decimal.Decimal     `json:"min_order_qty"`
	MaxOrderQty       *decimal.Decimal    `json:"max_order_qty,omitempty"`
	WeightKg          *decimal.Decimal    `json:"weight_kg,omitempty"`
	Status            enums.ProductStatus `json:"status"`
	IsOrganic         bool                `json:"is_organic"`
	HarvestedAt       *time.Time          `json:"harvested_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// CreateProductInput holds the fields accepted on listing creation.
type CreateProductInput struct {
	FarmerID    uuid.UUID
	Name        string
	Description *string
	Category    string
	Tags        []string
	Price       decimal.Decimal
	Unit        string
	Quantity    decimal.Decimal
	MinOrderQty *decimal.Decimal
	MaxOrderQty *decimal.Decimal
	WeightKg    *decimal.Decimal
	IsOrganic   bool
	HarvestedAt *time.Time
}

// UpdateProductInput carries partial updates; nil fields are untouched.
type UpdateProductInput struct {
	Name        *string
	Description *string
	Category    *string
	Tags        []string
	Price       *decimal.Decimal
	Unit        *string
	MinOrderQty *decimal.Decimal
	MaxOrderQty *decimal.Decimal
	WeightKg    *decimal.Decimal
	IsOrganic   *bool
	HarvestedAt *time.Time
	Status      *enums.ProductStatus
}

// ListFilters describe the inputs supported by the product list.
type ListFilters struct {
	FarmerID  *uuid.UUID
	Category  string
	Status    *enums.ProductStatus
	Query     string
	OnlyStock bool
}

// ProductList wraps the paginated products plus the next page cursor.
type ProductList struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func FromModel(p *models.Product) *ProductDTO {
	if p == nil {
		return nil
	}
	dto := &ProductDTO{
		ID:                p.ID,
		FarmerID:          p.FarmerID,
		Name:              p.Name,
		Description:       p.Description,
		Category:          p.Category,
		Tags:              append([]string(nil), p.Tags...),
		Price:             p.Price,
		Unit:              p.Unit,
		QuantityAvailable: p.QuantityAvailable,
		MinOrderQty:       p.MinOrderQty,
		Status:            p.Status,
		IsOrganic:         p.IsOrganic,
		HarvestedAt:       p.HarvestedAt,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if p.MaxOrderQty.Valid {
		max := p.MaxOrderQty.Decimal
		dto.MaxOrderQty = &max
	}
	if p.WeightKg.Valid {
		w := p.WeightKg.Decimal
		dto.WeightKg = &w
	}
	return dto
}
