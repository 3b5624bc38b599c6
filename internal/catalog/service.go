package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type farmerChecker interface {
	IsActiveFarmer(ctx context.Context, id uuid.UUID) (bool, error)
}

// StockAdjustment describes one atomic inventory mutation.
type StockAdjustment struct {
	ProductID  uuid.UUID
	Delta      decimal.Decimal
	ChangeType enums.InventoryChangeType
	OrderID    *uuid.UUID
	ActorID    *uuid.UUID
	Note       *string
}

// Service exposes catalog operations for controllers and sibling services.
type Service struct {
	repo    *Repository
	tx      txRunner
	farmers farmerChecker
}

// NewService builds a catalog service with the required dependencies.
func NewService(repo *Repository, tx txRunner, farmers farmerChecker) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if farmers == nil {
		return nil, fmt.Errorf("farmer checker required")
	}
	return &Service{repo: repo, tx: tx, farmers: farmers}, nil
}

// GetProduct loads a single listing.
func (s *Service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return FromModel(product), nil
}

// ListProducts returns a filtered page of listings.
func (s *Service) ListProducts(ctx context.Context, params pagination.Params, filters ListFilters) (*ProductList, error) {
	list, err := s.repo.List(ctx, params, filters)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	return list, nil
}

// CreateProduct validates and persists a new listing in draft status.
func (s *Service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	if input.FarmerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "farmer id required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name required")
	}
	if input.Price.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.Quantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	eligible, err := s.farmers.IsActiveFarmer(ctx, input.FarmerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check farmer")
	}
	if !eligible {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "user is not an active farmer")
	}

	product := &models.Product{
		FarmerID:          input.FarmerID,
		Name:              input.Name,
		Description:       input.Description,
		Category:          input.Category,
		Tags:              input.Tags,
		Price:             input.Price,
		Unit:              defaultUnit(input.Unit),
		QuantityAvailable: input.Quantity,
		MinOrderQty:       decimal.NewFromInt(1),
		Status:            enums.ProductStatusDraft,
		IsOrganic:         input.IsOrganic,
		HarvestedAt:       input.HarvestedAt,
	}
	if input.MinOrderQty != nil && input.MinOrderQty.IsPositive() {
		product.MinOrderQty = *input.MinOrderQty
	}
	if input.MaxOrderQty != nil {
		product.MaxOrderQty = decimal.NullDecimal{Decimal: *input.MaxOrderQty, Valid: true}
	}
	if input.WeightKg != nil {
		product.WeightKg = decimal.NullDecimal{Decimal: *input.WeightKg, Valid: true}
	}

	var created *models.Product
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var txErr error
		created, txErr = repo.Create(ctx, product)
		if txErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "create product")
		}
		if created.QuantityAvailable.IsPositive() {
			history := &models.InventoryHistory{
				ProductID:      created.ID,
				ChangeType:     enums.InventoryChangeRestock,
				QuantityBefore: decimal.Zero,
				QuantityDelta:  created.QuantityAvailable,
				QuantityAfter:  created.QuantityAvailable,
				ActorID:        &input.FarmerID,
			}
			if txErr := repo.InsertHistory(ctx, history); txErr != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, txErr, "record initial stock")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(created), nil
}

// UpdateProduct applies partial updates after an ownership check.
func (s *Service) UpdateProduct(ctx context.Context, productID, actorID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.FarmerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to farmer")
	}

	updates := map[string]any{}
	if input.Name != nil {
		if *input.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name required")
		}
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Category != nil {
		updates["category"] = *input.Category
	}
	if input.Tags != nil {
		updates["tags"] = pq.StringArray(input.Tags)
	}
	if input.Price != nil {
		if input.Price.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		updates["price"] = *input.Price
	}
	if input.Unit != nil {
		updates["unit"] = defaultUnit(*input.Unit)
	}
	if input.MinOrderQty != nil {
		updates["min_order_qty"] = *input.MinOrderQty
	}
	if input.MaxOrderQty != nil {
		updates["max_order_qty"] = *input.MaxOrderQty
	}
	if input.WeightKg != nil {
		updates["weight_kg"] = *input.WeightKg
	}
	if input.IsOrganic != nil {
		updates["is_organic"] = *input.IsOrganic
	}
	if input.HarvestedAt != nil {
		updates["harvested_at"] = *input.HarvestedAt
	}
	if input.Status != nil {
		if !input.Status.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid product status")
		}
		updates["status"] = *input.Status
	}
	if len(updates) == 0 {
		return FromModel(product), nil
	}

	if err := s.repo.Update(ctx, productID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	refreshed, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}
	return FromModel(refreshed), nil
}

// DeactivateProduct soft-removes a listing. Products are never hard-deleted
// because order items keep referencing them.
func (s *Service) DeactivateProduct(ctx context.Context, productID, actorID uuid.UUID) error {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.FarmerID != actorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to farmer")
	}
	if product.Status == enums.ProductStatusInactive {
		return nil
	}
	if err := s.repo.Update(ctx, productID, map[string]any{"status": enums.ProductStatusInactive}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate product")
	}
	return nil
}

// RestockProduct adds stock with a ledger entry, reactivating drained listings.
func (s *Service) RestockProduct(ctx context.Context, productID, actorID uuid.UUID, qty decimal.Decimal, note *string) (*ProductDTO, error) {
	if !qty.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "restock quantity must be positive")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if product.FarmerID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to farmer")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.WithTx(tx).Adjust(ctx, StockAdjustment{
			ProductID:  productID,
			Delta:      qty,
			ChangeType: enums.InventoryChangeRestock,
			ActorID:    &actorID,
			Note:       note,
		})
	})
	if err != nil {
		return nil, err
	}

	refreshed, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product")
	}
	return FromModel(refreshed), nil
}

// Adjuster applies stock mutations inside a caller-owned transaction.
type Adjuster struct {
	repo *Repository
}

// WithTx returns an adjuster bound to the provided transaction.
func (s *Service) WithTx(tx *gorm.DB) *Adjuster {
	return &Adjuster{repo: s.repo.WithTx(tx)}
}

// NewAdjuster builds a standalone adjuster for callers that only mutate stock.
func NewAdjuster(repo *Repository) *Adjuster {
	return &Adjuster{repo: repo}
}

// Bind rebinds the adjuster to a transaction.
func (a *Adjuster) Bind(tx *gorm.DB) *Adjuster {
	return &Adjuster{repo: a.repo.WithTx(tx)}
}

// Adjust applies the delta with a conditional UPDATE and appends the ledger
// row in the same transaction. A negative delta that loses the compare step
// returns CodeConflict.
func (a *Adjuster) Adjust(ctx context.Context, adj StockAdjustment) error {
	if adj.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if adj.Delta.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity delta must not be zero")
	}
	if !adj.ChangeType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid inventory change type")
	}

	if adj.Delta.IsNegative() {
		won, err := a.repo.DecrementStock(ctx, adj.ProductID, adj.Delta.Neg())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !won {
			return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{"product_id": adj.ProductID})
		}
	} else {
		if err := a.repo.IncrementStock(ctx, adj.ProductID, adj.Delta); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment stock")
		}
	}

	product, err := a.repo.FindByID(ctx, adj.ProductID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload product after stock change")
	}
	history := &models.InventoryHistory{
		ProductID:      adj.ProductID,
		ChangeType:     adj.ChangeType,
		QuantityBefore: product.QuantityAvailable.Sub(adj.Delta),
		QuantityDelta:  adj.Delta,
		QuantityAfter:  product.QuantityAvailable,
		OrderID:        adj.OrderID,
		ActorID:        adj.ActorID,
		Note:           adj.Note,
	}
	if err := a.repo.InsertHistory(ctx, history); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inventory change")
	}
	return nil
}

func defaultUnit(unit string) string {
	if unit == "" {
		return "each"
	}
	return unit
}
