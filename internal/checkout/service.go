package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/internal/cart"
	"github.com/luiscamargo/farmfresh-backend/pkg/config"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

type userLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type cartReader interface {
	GetCartSummary(ctx context.Context, owner cart.CartOwner) (*cart.CartSummary, error)
	ValidateCartItems(ctx context.Context, owner cart.CartOwner) (*cart.ValidationResult, error)
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Service assembles checkout sessions. It is read-only: nothing here writes
// to the database, so a failed checkout leaves no state behind.
type Service struct {
	users    userLoader
	carts    cartReader
	products productLoader
	pricer   pricer
}

func NewService(users userLoader, carts cartReader, products productLoader, cfg config.PricingConfig) (*Service, error) {
	if users == nil {
		return nil, fmt.Errorf("user loader required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart reader required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	return &Service{users: users, carts: carts, products: products, pricer: newPricer(cfg)}, nil
}

// ValidateUserEligibility confirms the buyer exists and may place orders.
func (s *Service) ValidateUserEligibility(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	if user.Status != enums.UserStatusActive {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account is not eligible to check out").
			WithDetails(map[string]any{"status": user.Status})
	}
	return nil
}

// ValidatePricing recomputes the full breakdown from cart snapshots. The
// shipping state drives tax rate and delivery surcharge.
func (s *Service) ValidatePricing(ctx context.Context, userID uuid.UUID, shipTo types.Address) (*PricingBreakdown, *cart.CartSummary, error) {
	owner := cart.CartOwner{UserID: &userID}
	summary, err := s.carts.GetCartSummary(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	if len(summary.Items) == 0 {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	ids := make([]uuid.UUID, 0, len(summary.Items))
	for _, item := range summary.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	totalWeight := decimal.Zero
	for _, item := range summary.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "product no longer available").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if product.WeightKg.Valid {
			totalWeight = totalWeight.Add(product.WeightKg.Decimal.Mul(item.Quantity))
		}
	}

	subtotal := summary.Subtotal
	fee := s.pricer.platformFee(subtotal)
	shipping := s.pricer.EstimateShipping(totalWeight, shipTo.State)
	tax := s.pricer.CalculateTax(subtotal, shipTo.State)

	breakdown := &PricingBreakdown{
		Subtotal:       subtotal,
		PlatformFee:    fee,
		TaxAmount:      tax,
		ShippingAmount: shipping,
		Total:          subtotal.Add(fee).Add(tax).Add(shipping).Round(2),
		Currency:       currencyForCountry(shipTo.Country),
	}
	return breakdown, summary, nil
}

// CreateCheckoutSession runs eligibility, stock, address and pricing checks
// in order, failing fast on the first problem. No database state changes.
func (s *Service) CreateCheckoutSession(ctx context.Context, input CreateSessionInput) (*CheckoutSession, error) {
	if err := s.ValidateUserEligibility(ctx, input.UserID); err != nil {
		return nil, err
	}

	owner := cart.CartOwner{UserID: &input.UserID}
	validation, err := s.carts.ValidateCartItems(ctx, owner)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "cart has unavailable items").
			WithDetails(map[string]any{"issues": validation.Issues})
	}

	addr, err := ValidateShippingAddress(input.ShippingAddress)
	if err != nil {
		return nil, err
	}

	pricing, summary, err := s.ValidatePricing(ctx, input.UserID, addr)
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		SessionID:       uuid.New(),
		UserID:          input.UserID,
		CartID:          summary.CartID,
		Items:           summary.Items,
		Pricing:         *pricing,
		ShippingAddress: addr,
		CreatedAt:       time.Now(),
	}, nil
}

func currencyForCountry(country string) enums.Currency {
	if country == "CA" {
		return enums.CurrencyCAD
	}
	return enums.CurrencyUSD
}
