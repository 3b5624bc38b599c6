package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/internal/cart"
	"github.com/luiscamargo/farmfresh-backend/pkg/config"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
)

type stubUserLoader struct {
	users map[uuid.UUID]*models.User
}

func (s *stubUserLoader) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

type stubCartReader struct {
	summary    *cart.CartSummary
	summaryErr error
	validation *cart.ValidationResult
}

func (s *stubCartReader) GetCartSummary(context.Context, cart.CartOwner) (*cart.CartSummary, error) {
	return s.summary, s.summaryErr
}

func (s *stubCartReader) ValidateCartItems(context.Context, cart.CartOwner) (*cart.ValidationResult, error) {
	if s.validation == nil {
		return &cart.ValidationResult{Valid: true, Issues: []cart.ValidationIssue{}}, nil
	}
	return s.validation, nil
}

type stubCheckoutProducts struct {
	byID map[uuid.UUID]models.Product
}

func (s *stubCheckoutProducts) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.byID[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

type checkoutFixture struct {
	users    *stubUserLoader
	carts    *stubCartReader
	products *stubCheckoutProducts
	svc      *Service
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	f := &checkoutFixture{
		users:    &stubUserLoader{users: map[uuid.UUID]*models.User{}},
		carts:    &stubCartReader{},
		products: &stubCheckoutProducts{byID: map[uuid.UUID]models.Product{}},
	}
	svc, err := NewService(f.users, f.carts, f.products, config.PricingConfig{
		PlatformFeePercent: 5,
		DefaultTaxRate:     0.06,
		ShippingBaseCents:  599,
		ShippingPerKgCents: 120,
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *checkoutFixture) addActiveUser() uuid.UUID {
	id := uuid.New()
	f.users.users[id] = &models.User{
		ID:     id,
		Email:  "buyer@example.com",
		Role:   enums.UserRoleBuyer,
		Status: enums.UserStatusActive,
	}
	return id
}

func (f *checkoutFixture) addProduct(weightKg string) models.Product {
	product := models.Product{
		ID:          uuid.New(),
		FarmerID:    uuid.New(),
		Name:        "Winter Squash",
		Category:    "vegetables",
		Price:       decimal.RequireFromString("4.00"),
		Unit:        "each",
		MinOrderQty: decimal.NewFromInt(1),
		Status:      enums.ProductStatusActive,
	}
	if weightKg != "" {
		product.WeightKg = decimal.NullDecimal{Decimal: decimal.RequireFromString(weightKg), Valid: true}
	}
	f.products.byID[product.ID] = product
	return product
}

func summaryWith(items ...cart.CartItemDTO) *cart.CartSummary {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	return &cart.CartSummary{
		CartID:    uuid.New(),
		ItemCount: len(items),
		Subtotal:  subtotal.Round(2),
		Items:     items,
	}
}

func cartLine(productID uuid.UUID, qty, unitPrice string) cart.CartItemDTO {
	q := decimal.RequireFromString(qty)
	p := decimal.RequireFromString(unitPrice)
	return cart.CartItemDTO{
		ID:        uuid.New(),
		ProductID: productID,
		Quantity:  q,
		UnitPrice: p,
		LineTotal: p.Mul(q).Round(2),
	}
}

func TestValidateUserEligibility(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	active := f.addActiveUser()

	if err := f.svc.ValidateUserEligibility(context.Background(), active); err != nil {
		t.Fatalf("active user rejected: %v", err)
	}

	if err := f.svc.ValidateUserEligibility(context.Background(), uuid.Nil); pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("nil user id: got %v", err)
	}
	if err := f.svc.ValidateUserEligibility(context.Background(), uuid.New()); pkgerrors.As(err).Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unknown user: got %v", err)
	}

	suspendedID := uuid.New()
	f.users.users[suspendedID] = &models.User{ID: suspendedID, Status: enums.UserStatusSuspended}
	if err := f.svc.ValidateUserEligibility(context.Background(), suspendedID); pkgerrors.As(err).Code() != pkgerrors.CodeForbidden {
		t.Fatalf("suspended user: got %v", err)
	}
}

func TestValidatePricingComputesBreakdown(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	userID := f.addActiveUser()
	product := f.addProduct("1.5")
	f.carts.summary = summaryWith(cartLine(product.ID, "2", "4.00"))

	pricing, summary, err := f.svc.ValidatePricing(context.Background(), userID, validUSAddress())
	if err != nil {
		t.Fatalf("validate pricing: %v", err)
	}
	if summary == nil || len(summary.Items) != 1 {
		t.Fatal("summary not returned")
	}

	// subtotal 8.00, fee 0.40, shipping 5.99 + 3kg * 1.20 = 9.59,
	// CA tax 7.25% of the 8.00 subtotal = 0.58, total 18.57.
	if !pricing.Subtotal.Equal(decimal.RequireFromString("8.00")) {
		t.Fatalf("subtotal = %s", pricing.Subtotal)
	}
	if !pricing.PlatformFee.Equal(decimal.RequireFromString("0.40")) {
		t.Fatalf("platform fee = %s", pricing.PlatformFee)
	}
	if !pricing.ShippingAmount.Equal(decimal.RequireFromString("9.59")) {
		t.Fatalf("shipping = %s", pricing.ShippingAmount)
	}
	if !pricing.TaxAmount.Equal(decimal.RequireFromString("0.58")) {
		t.Fatalf("tax = %s", pricing.TaxAmount)
	}
	if !pricing.Total.Equal(decimal.RequireFromString("18.57")) {
		t.Fatalf("total = %s", pricing.Total)
	}
	if pricing.Currency != enums.CurrencyUSD {
		t.Fatalf("currency = %s", pricing.Currency)
	}
}

func TestValidatePricingEmptyCart(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	userID := f.addActiveUser()
	f.carts.summary = summaryWith()

	_, _, err := f.svc.ValidatePricing(context.Background(), userID, validUSAddress())
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("got %v", err)
	}
}

func TestValidatePricingVanishedProduct(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	userID := f.addActiveUser()
	f.carts.summary = summaryWith(cartLine(uuid.New(), "1", "4.00"))

	_, _, err := f.svc.ValidatePricing(context.Background(), userID, validUSAddress())
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("got %v", err)
	}
}

func TestCreateCheckoutSessionHappyPath(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	userID := f.addActiveUser()
	product := f.addProduct("")
	f.carts.summary = summaryWith(cartLine(product.ID, "2", "4.00"))

	addr := validUSAddress()
	addr.State = " ca "
	session, err := f.svc.CreateCheckoutSession(context.Background(), CreateSessionInput{
		UserID:          userID,
		ShippingAddress: addr,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.UserID != userID {
		t.Fatalf("session user = %s", session.UserID)
	}
	if session.CartID != f.carts.summary.CartID {
		t.Fatal("session cart id mismatch")
	}
	if len(session.Items) != 1 {
		t.Fatalf("session has %d items", len(session.Items))
	}
	// The session carries the normalized address.
	if session.ShippingAddress.State != "CA" {
		t.Fatalf("address state = %q", session.ShippingAddress.State)
	}
}

func TestCreateCheckoutSessionBlocksInvalidCart(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	userID := f.addActiveUser()
	productID := uuid.New()
	f.carts.validation = &cart.ValidationResult{
		Valid: false,
		Issues: []cart.ValidationIssue{{
			ProductID: productID,
			Reason:    cart.IssueInsufficientStock,
			Requested: decimal.NewFromInt(5),
		}},
	}

	_, err := f.svc.CreateCheckoutSession(context.Background(), CreateSessionInput{
		UserID:          userID,
		ShippingAddress: validUSAddress(),
	})
	if pkgerrors.As(err).Code() != pkgerrors.CodeConflict {
		t.Fatalf("got %v", err)
	}
}

func TestCreateCheckoutSessionBlocksBadAddress(t *testing.T) {
	t.Parallel()

	f := newCheckoutFixture(t)
	userID := f.addActiveUser()
	product := f.addProduct("")
	f.carts.summary = summaryWith(cartLine(product.ID, "1", "4.00"))

	addr := validUSAddress()
	addr.PostalCode = "not-a-zip"
	_, err := f.svc.CreateCheckoutSession(context.Background(), CreateSessionInput{
		UserID:          userID,
		ShippingAddress: addr,
	})
	if pkgerrors.As(err).Code() != pkgerrors.CodeValidation {
		t.Fatalf("got %v", err)
	}
}

func TestCurrencyForCountry(t *testing.T) {
	t.Parallel()

	if currencyForCountry("CA") != enums.CurrencyCAD {
		t.Fatal("CA should price in CAD")
	}
	if currencyForCountry("US") != enums.CurrencyUSD {
		t.Fatal("US should price in USD")
	}
	if currencyForCountry("") != enums.CurrencyUSD {
		t.Fatal("default should be USD")
	}
}
