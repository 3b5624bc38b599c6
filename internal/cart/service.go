package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Service exposes cart operations.
type Service struct {
	repo     *Repository
	tx       txRunner
	products productLoader
	ttl      time.Duration
}

// NewService builds a cart service backed by the provided stack.
func NewService(repo *Repository, tx txRunner, products productLoader, ttl time.Duration) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cart ttl must be positive")
	}
	return &Service{repo: repo, tx: tx, products: products, ttl: ttl}, nil
}

// GetOrCreateCart returns the owner's active cart, creating one when none
// exists. A cart whose expiry has lapsed but that the sweeper has not flipped
// yet is treated as expired.
func (s *Service) GetOrCreateCart(ctx context.Context, owner CartOwner) (*CartDTO, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}

	existing, err := s.findActive(ctx, owner)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if existing != nil {
		if existing.ExpiresAt.After(time.Now()) {
			// Accessing the cart rolls its expiry window forward.
			refreshed := time.Now().Add(s.ttl)
			if err := s.repo.TouchExpiry(ctx, existing.ID, refreshed); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart expiry")
			}
			existing.ExpiresAt = refreshed
			return cartFromModel(existing), nil
		}
		if err := s.repo.UpdateStatus(ctx, existing.ID, enums.CartStatusExpired); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire stale cart")
		}
	}

	cart := &models.Cart{
		UserID:    owner.UserID,
		SessionID: owner.SessionID,
		Status:    enums.CartStatusActive,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	created, err := s.repo.Create(ctx, cart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart")
	}
	return cartFromModel(created), nil
}

// AddItem puts a product in the cart, merging quantities when the product is
// already present. The stock check here is advisory; payment confirmation is
// where stock is actually decremented.
func (s *Service) AddItem(ctx context.Context, owner CartOwner, productID uuid.UUID, qty decimal.Decimal) (*CartDTO, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if !qty.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if !product.Status.Purchasable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available for purchase")
	}

	cartDTO, err := s.GetOrCreateCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindItem(ctx, cartDTO.ID, productID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	newQty := qty
	if existing != nil {
		newQty = existing.Quantity.Add(qty)
	}
	if err := checkQuantityBounds(product, newQty); err != nil {
		return nil, err
	}
	if newQty.GreaterThan(product.QuantityAvailable) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{
				"product_id": productID,
				"requested":  newQty,
				"available":  product.QuantityAvailable,
			})
	}

	if existing != nil {
		// Merging refreshes the snapshot so the line reflects the current price.
		if err := s.repo.UpdateItem(ctx, existing.ID, map[string]any{
			"quantity":   newQty,
			"unit_price": product.Price,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge cart item")
		}
	} else {
		item := &models.CartItem{
			CartID:    cartDTO.ID,
			ProductID: productID,
			Quantity:  qty,
			UnitPrice: product.Price,
		}
		if _, err := s.repo.CreateItem(ctx, item); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cart item")
		}
	}

	if err := s.repo.TouchExpiry(ctx, cartDTO.ID, time.Now().Add(s.ttl)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart expiry")
	}
	return s.reload(ctx, cartDTO.ID)
}

// UpdateItemQuantity sets the quantity for a product already in the cart.
// Zero is a remove, not an error.
func (s *Service) UpdateItemQuantity(ctx context.Context, owner CartOwner, productID uuid.UUID, qty decimal.Decimal) (*CartDTO, error) {
	if qty.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}

	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	if qty.IsZero() {
		if _, err := s.repo.DeleteItem(ctx, cart.ID, productID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
		}
		return s.reload(ctx, cart.ID)
	}

	item, err := s.repo.FindItem(ctx, cart.ID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not in cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart item")
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	if err := checkQuantityBounds(product, qty); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateItem(ctx, item.ID, map[string]any{"quantity": qty}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cart item")
	}
	if err := s.repo.TouchExpiry(ctx, cart.ID, time.Now().Add(s.ttl)); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart expiry")
	}
	return s.reload(ctx, cart.ID)
}

// RemoveItem deletes the product's line and reports whether it was present.
func (s *Service) RemoveItem(ctx context.Context, owner CartOwner, productID uuid.UUID) (bool, error) {
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return false, err
	}
	removed, err := s.repo.DeleteItem(ctx, cart.ID, productID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove cart item")
	}
	return removed, nil
}

// GetCartItems returns the current lines.
func (s *Service) GetCartItems(ctx context.Context, owner CartOwner) ([]CartItemDTO, error) {
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}
	out := make([]CartItemDTO, 0, len(items))
	for i := range items {
		out = append(out, itemFromModel(&items[i]))
	}
	return out, nil
}

// GetCartSummary aggregates line totals with exact decimal arithmetic.
func (s *Service) GetCartSummary(ctx context.Context, owner CartOwner) (*CartSummary, error) {
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}

	summary := &CartSummary{
		CartID:   cart.ID,
		Subtotal: decimal.Zero,
		Items:    make([]CartItemDTO, 0, len(items)),
	}
	for i := range items {
		dto := itemFromModel(&items[i])
		summary.Items = append(summary.Items, dto)
		summary.Subtotal = summary.Subtotal.Add(dto.LineTotal)
	}
	summary.ItemCount = len(summary.Items)
	summary.Subtotal = summary.Subtotal.Round(2)
	return summary, nil
}

// ValidateCartItems re-checks every line against the live catalog and returns
// the full issue list instead of failing on the first problem.
func (s *Service) ValidateCartItems(ctx context.Context, owner CartOwner) (*ValidationResult, error) {
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cart items")
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	result := &ValidationResult{Valid: true, Issues: []ValidationIssue{}}
	for _, item := range items {
		product, ok := products[item.ProductID]
		if !ok || !product.Status.Purchasable() {
			result.Issues = append(result.Issues, ValidationIssue{
				ProductID: item.ProductID,
				Reason:    IssueProductUnavailable,
				Requested: item.Quantity,
			})
			continue
		}
		if item.Quantity.GreaterThan(product.QuantityAvailable) {
			available := product.QuantityAvailable
			result.Issues = append(result.Issues, ValidationIssue{
				ProductID: item.ProductID,
				Reason:    IssueInsufficientStock,
				Requested: item.Quantity,
				Available: &available,
			})
		}
	}
	result.Valid = len(result.Issues) == 0
	return result, nil
}

// ClearCart drops every line but keeps the cart active.
func (s *Service) ClearCart(ctx context.Context, owner CartOwner) error {
	cart, err := s.requireActiveCart(ctx, owner)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItems(ctx, cart.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// MergeCarts folds a guest session cart into the user's cart in one
// transaction. The session cart ends up expired so it cannot be reused.
func (s *Service) MergeCarts(ctx context.Context, sessionID string, userID uuid.UUID) (*CartDTO, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	var mergedID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		source, err := repo.FindActiveBySession(ctx, sessionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "session cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load session cart")
		}

		target, err := repo.FindActiveByUser(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			target, err = repo.Create(ctx, &models.Cart{
				UserID:    &userID,
				Status:    enums.CartStatusActive,
				ExpiresAt: time.Now().Add(s.ttl),
			})
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user cart")
		}

		for i := range source.Items {
			src := source.Items[i]
			existing, err := repo.FindItem(ctx, target.ID, src.ProductID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load target item")
			}
			if existing != nil {
				merged := existing.Quantity.Add(src.Quantity)
				if err := repo.UpdateItem(ctx, existing.ID, map[string]any{"quantity": merged}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "merge item quantity")
				}
				continue
			}
			item := &models.CartItem{
				CartID:    target.ID,
				ProductID: src.ProductID,
				Quantity:  src.Quantity,
				UnitPrice: src.UnitPrice,
			}
			if _, err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "copy item")
			}
		}

		if err := repo.UpdateStatus(ctx, source.ID, enums.CartStatusExpired); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire session cart")
		}
		if err := repo.TouchExpiry(ctx, target.ID, time.Now().Add(s.ttl)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart expiry")
		}
		mergedID = target.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.reload(ctx, mergedID)
}

// CleanupExpiredCarts flips stale active carts and returns how many changed.
// Safe to run repeatedly.
func (s *Service) CleanupExpiredCarts(ctx context.Context) (int64, error) {
	count, err := s.repo.ExpireBefore(ctx, time.Now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire carts")
	}
	return count, nil
}

func (s *Service) findActive(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	if owner.UserID != nil {
		return s.repo.FindActiveByUser(ctx, *owner.UserID)
	}
	return s.repo.FindActiveBySession(ctx, *owner.SessionID)
}

func (s *Service) requireActiveCart(ctx context.Context, owner CartOwner) (*models.Cart, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	cart, err := s.findActive(ctx, owner)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active cart")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	return cart, nil
}

func (s *Service) reload(ctx context.Context, id uuid.UUID) (*CartDTO, error) {
	cart, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload cart")
	}
	return cartFromModel(cart), nil
}

func validateOwner(owner CartOwner) error {
	hasUser := owner.UserID != nil && *owner.UserID != uuid.Nil
	hasSession := owner.SessionID != nil && *owner.SessionID != ""
	if hasUser == hasSession {
		return pkgerrors.New(pkgerrors.CodeValidation, "exactly one of user id or session id required")
	}
	return nil
}

func checkQuantityBounds(product *models.Product, qty decimal.Decimal) error {
	if qty.LessThan(product.MinOrderQty) {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity below minimum order").
			WithDetails(map[string]any{"min_order_qty": product.MinOrderQty})
	}
	if product.MaxOrderQty.Valid && qty.GreaterThan(product.MaxOrderQty.Decimal) {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity above maximum order").
			WithDetails(map[string]any{"max_order_qty": product.MaxOrderQty.Decimal})
	}
	return nil
}
