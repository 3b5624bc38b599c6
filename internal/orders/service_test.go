package orders

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/internal/cart"
	"github.com/luiscamargo/farmfresh-backend/internal/catalog"
	"github.com/luiscamargo/farmfresh-backend/internal/checkout"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	ddl := []string{`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number TEXT NOT NULL UNIQUE,
  buyer_id TEXT NOT NULL,
  cart_id TEXT,
  status TEXT NOT NULL DEFAULT 'pending',
  payment_status TEXT NOT NULL DEFAULT 'unpaid',
  payment_intent_id TEXT,
  provider_session_id TEXT,
  currency TEXT NOT NULL DEFAULT 'USD',
  subtotal NUMERIC NOT NULL,
  tax_amount NUMERIC NOT NULL DEFAULT 0,
  shipping_amount NUMERIC NOT NULL DEFAULT 0,
  platform_fee NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL,
  refunded_amount NUMERIC NOT NULL DEFAULT 0,
  shipping_address TEXT NOT NULL,
  metadata TEXT,
  tracking_number TEXT,
  estimated_delivery DATETIME,
  paid_at DATETIME,
  cancelled_at DATETIME,
  cancellation_reason TEXT,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT,
  farmer_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  unit TEXT NOT NULL DEFAULT 'each',
  quantity NUMERIC NOT NULL,
  unit_price NUMERIC NOT NULL,
  line_total NUMERIC NOT NULL,
  fulfillment_status TEXT NOT NULL DEFAULT 'pending',
  tracking_number TEXT,
  shipped_at DATETIME,
  delivered_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS order_status_history (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  from_status TEXT,
  to_status TEXT NOT NULL,
  actor_id TEXT,
  note TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT,
  session_id TEXT,
  status TEXT NOT NULL DEFAULT 'active',
  expires_at DATETIME NOT NULL,
  converted_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  farmer_id TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT,
  category TEXT NOT NULL,
  tags TEXT NOT NULL DEFAULT '{}',
  price NUMERIC NOT NULL,
  unit TEXT NOT NULL DEFAULT 'each',
  quantity_available NUMERIC NOT NULL DEFAULT 0,
  min_order_qty NUMERIC NOT NULL DEFAULT 1,
  max_order_qty NUMERIC,
  weight_kg NUMERIC,
  status TEXT NOT NULL DEFAULT 'draft',
  is_organic INTEGER NOT NULL DEFAULT 0,
  harvested_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS inventory_history (
  id TEXT PRIMARY KEY,
  product_id TEXT NOT NULL,
  change_type TEXT NOT NULL,
  quantity_delta NUMERIC NOT NULL,
  quantity_before NUMERIC NOT NULL,
  quantity_after NUMERIC NOT NULL,
  order_id TEXT,
  actor_id TEXT,
  note TEXT,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload TEXT NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type ordersTxRunner struct {
	db *gorm.DB
}

func (r ordersTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubProductLoader struct {
	byID map[uuid.UUID]models.Product
}

func (s *stubProductLoader) FindByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.byID[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard})
}

func newOrdersTestService(t *testing.T) (*Service, *gorm.DB, *stubProductLoader) {
	t.Helper()

	db := setupOrdersTestDB(t)
	loader := &stubProductLoader{byID: map[uuid.UUID]models.Product{}}
	logg := testLogger()
	svc, err := NewService(
		NewRepository(db),
		ordersTxRunner{db: db},
		cart.NewRepository(db),
		loader,
		catalog.NewAdjuster(catalog.NewRepository(db)),
		outbox.NewService(outbox.NewRepository(db), logg),
		logg,
	)
	require.NoError(t, err)
	return svc, db, loader
}

func seedOrderProduct(t *testing.T, db *gorm.DB, loader *stubProductLoader, farmerID uuid.UUID, price, qty string) models.Product {
	t.Helper()

	product := models.Product{
		ID:                uuid.New(),
		FarmerID:          farmerID,
		Name:              "Rainbow Chard",
		Category:          "vegetables",
		Tags:              pq.StringArray{"greens"},
		Price:             decimal.RequireFromString(price),
		Unit:              "bunch",
		QuantityAvailable: decimal.RequireFromString(qty),
		MinOrderQty:       decimal.NewFromInt(1),
		Status:            enums.ProductStatusActive,
	}
	require.NoError(t, db.Create(&product).Error)
	loader.byID[product.ID] = product
	return product
}

func seedActiveCart(t *testing.T, db *gorm.DB, userID uuid.UUID) *models.Cart {
	t.Helper()

	row := &models.Cart{
		UserID:    &userID,
		Status:    enums.CartStatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(row).Error)
	return row
}

func testShippingAddress() types.Address {
	return types.Address{
		Line1:      "412 Orchard Way",
		City:       "Fresno",
		State:      "CA",
		PostalCode: "93650",
		Country:    "US",
	}
}

func sessionFor(userID, cartID uuid.UUID, items ...cart.CartItemDTO) *checkout.CheckoutSession {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(item.LineTotal)
	}
	return &checkout.CheckoutSession{
		SessionID: uuid.New(),
		UserID:    userID,
		CartID:    cartID,
		Items:     items,
		Pricing: checkout.PricingBreakdown{
			Subtotal:       subtotal,
			PlatformFee:    decimal.RequireFromString("1.00"),
			TaxAmount:      decimal.RequireFromString("0.50"),
			ShippingAmount: decimal.RequireFromString("5.99"),
			Total:          subtotal.Add(decimal.RequireFromString("7.49")),
			Currency:       enums.CurrencyUSD,
		},
		ShippingAddress: testShippingAddress(),
		CreatedAt:       time.Now(),
	}
}

func lineItem(productID uuid.UUID, qty, unitPrice string) cart.CartItemDTO {
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

// createPaidOrder shortcuts the checkout path: creates a pending order from a
// session then flips payment columns the way the payment service would.
func createPaidOrder(t *testing.T, svc *Service, db *gorm.DB, buyerID uuid.UUID, status enums.OrderStatus, items ...cart.CartItemDTO) *OrderDTO {
	t.Helper()

	cartRow := seedActiveCart(t, db, buyerID)
	dto, err := svc.CreateFromSession(context.Background(), sessionFor(buyerID, cartRow.ID, items...))
	require.NoError(t, err)

	now := time.Now()
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", dto.ID).Updates(map[string]any{
		"payment_status": enums.PaymentStatusPaid,
		"paid_at":        now,
		"status":         status,
	}).Error)
	dto.Status = status
	dto.PaymentStatus = enums.PaymentStatusPaid
	return dto
}

func TestCreateFromSessionPersistsPendingOrder(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "4.25", "50")
	cartRow := seedActiveCart(t, db, buyerID)

	dto, err := svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID, lineItem(product.ID, "3", "4.25")))
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPending, dto.Status)
	assert.Equal(t, enums.PaymentStatusUnpaid, dto.PaymentStatus)
	assert.True(t, strings.HasPrefix(dto.OrderNumber, "FF-"))
	require.Len(t, dto.Items, 1)
	assert.Equal(t, farmerID, dto.Items[0].FarmerID)
	assert.Equal(t, "Rainbow Chard", dto.Items[0].ProductName)
	assert.True(t, dto.Items[0].LineTotal.Equal(decimal.RequireFromString("12.75")))

	var convertedCart models.Cart
	require.NoError(t, db.First(&convertedCart, "id = ?", cartRow.ID).Error)
	assert.Equal(t, enums.CartStatusConverted, convertedCart.Status)

	var history []models.OrderStatusHistory
	require.NoError(t, db.Find(&history, "order_id = ?", dto.ID).Error)
	require.Len(t, history, 1)
	assert.Equal(t, enums.OrderStatusPending, history[0].ToStatus)
	assert.Nil(t, history[0].FromStatus)

	var events []models.OutboxEvent
	require.NoError(t, db.Find(&events, "aggregate_id = ?", dto.ID).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderCreated, events[0].EventType)
	assert.Equal(t, enums.AggregateOrder, events[0].AggregateType)
}

func TestCreateFromSessionRejectsBadInput(t *testing.T) {
	svc, db, _ := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()

	_, err := svc.CreateFromSession(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	cartRow := seedActiveCart(t, db, buyerID)
	_, err = svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	// Product vanished between quote and submit.
	_, err = svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID, lineItem(uuid.New(), "1", "2.00")))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, pkgerrors.As(err).Code())
}

func TestGetOrderScopedToBuyer(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()

	product := seedOrderProduct(t, db, loader, uuid.New(), "2.00", "10")
	cartRow := seedActiveCart(t, db, buyerID)
	dto, err := svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID, lineItem(product.ID, "1", "2.00")))
	require.NoError(t, err)

	got, err := svc.GetOrder(ctx, dto.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, dto.ID, got.ID)

	_, err = svc.GetOrder(ctx, dto.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestUpdateItemFulfillmentRequiresPaidOrder(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	cartRow := seedActiveCart(t, db, buyerID)
	dto, err := svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID, lineItem(product.ID, "1", "2.00")))
	require.NoError(t, err)

	_, err = svc.UpdateItemFulfillment(ctx, farmerID, FulfillmentUpdateInput{
		OrderID: dto.ID,
		ItemID:  dto.Items[0].ID,
		Status:  enums.FulfillmentStatusShipped,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestUpdateItemFulfillmentRejectsOtherFarmer(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusConfirmed, lineItem(product.ID, "1", "2.00"))

	_, err := svc.UpdateItemFulfillment(ctx, uuid.New(), FulfillmentUpdateInput{
		OrderID: dto.ID,
		ItemID:  dto.Items[0].ID,
		Status:  enums.FulfillmentStatusShipped,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestUpdateItemFulfillmentNeverMovesBackwards(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusConfirmed, lineItem(product.ID, "1", "2.00"))

	_, err := svc.UpdateItemFulfillment(ctx, farmerID, FulfillmentUpdateInput{
		OrderID: dto.ID,
		ItemID:  dto.Items[0].ID,
		Status:  enums.FulfillmentStatusDelivered,
	})
	require.NoError(t, err)

	_, err = svc.UpdateItemFulfillment(ctx, farmerID, FulfillmentUpdateInput{
		OrderID: dto.ID,
		ItemID:  dto.Items[0].ID,
		Status:  enums.FulfillmentStatusShipped,
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestUpdateItemFulfillmentPartialShipmentAdvancesToProcessing(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerA := uuid.New()
	farmerB := uuid.New()

	chard := seedOrderProduct(t, db, loader, farmerA, "2.00", "10")
	eggs := seedOrderProduct(t, db, loader, farmerB, "6.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusConfirmed,
		lineItem(chard.ID, "2", "2.00"), lineItem(eggs.ID, "1", "6.00"))

	var itemA OrderItemDTO
	for _, item := range dto.Items {
		if item.FarmerID == farmerA {
			itemA = item
		}
	}

	tracking := "FFG123456789"
	updated, err := svc.UpdateItemFulfillment(ctx, farmerA, FulfillmentUpdateInput{
		OrderID:        dto.ID,
		ItemID:         itemA.ID,
		Status:         enums.FulfillmentStatusShipped,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusProcessing, updated.Status)

	for _, item := range updated.Items {
		if item.ID != itemA.ID {
			continue
		}
		assert.Equal(t, enums.FulfillmentStatusShipped, item.FulfillmentStatus)
		require.NotNil(t, item.TrackingNumber)
		assert.Equal(t, tracking, *item.TrackingNumber)
		assert.NotNil(t, item.ShippedAt)
	}

	var shipEvents []models.OutboxEvent
	require.NoError(t, db.Find(&shipEvents, "aggregate_id = ? AND event_type = ?", dto.ID, enums.EventItemShipped).Error)
	assert.Len(t, shipEvents, 1)
}

func TestUpdateItemFulfillmentWalksStatusChain(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusConfirmed, lineItem(product.ID, "1", "2.00"))

	// Shipping the only item implies confirmed -> processing -> shipped.
	updated, err := svc.UpdateItemFulfillment(ctx, farmerID, FulfillmentUpdateInput{
		OrderID: dto.ID,
		ItemID:  dto.Items[0].ID,
		Status:  enums.FulfillmentStatusShipped,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, updated.Status)

	var history []models.OrderStatusHistory
	require.NoError(t, db.Order("created_at, to_status").Find(&history, "order_id = ?", dto.ID).Error)
	seen := map[enums.OrderStatus]bool{}
	for _, row := range history {
		seen[row.ToStatus] = true
	}
	assert.True(t, seen[enums.OrderStatusProcessing])
	assert.True(t, seen[enums.OrderStatusShipped])
}

func TestUpdateItemFulfillmentDeliveredBackfillsShippedAt(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusConfirmed, lineItem(product.ID, "1", "2.00"))

	updated, err := svc.UpdateItemFulfillment(ctx, farmerID, FulfillmentUpdateInput{
		OrderID: dto.ID,
		ItemID:  dto.Items[0].ID,
		Status:  enums.FulfillmentStatusDelivered,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.Status)
	require.Len(t, updated.Items, 1)
	assert.NotNil(t, updated.Items[0].ShippedAt)
	assert.NotNil(t, updated.Items[0].DeliveredAt)
	assert.NotNil(t, updated.DeliveredAt)
}

func TestCancelUnpaidOrderLeavesStockAlone(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()

	product := seedOrderProduct(t, db, loader, uuid.New(), "2.00", "10")
	cartRow := seedActiveCart(t, db, buyerID)
	dto, err := svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID, lineItem(product.ID, "4", "2.00")))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, dto.ID, Actor{UserID: buyerID, Role: enums.UserRoleBuyer}, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)
	assert.Equal(t, "changed my mind", *cancelled.CancelReason)

	var ledger []models.InventoryHistory
	require.NoError(t, db.Find(&ledger, "product_id = ?", product.ID).Error)
	assert.Empty(t, ledger)
}

func TestCancelPaidOrderReleasesStock(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusConfirmed, lineItem(product.ID, "4", "2.00"))

	// Simulate the decrement payment confirmation performed.
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", product.ID).
		Update("quantity_available", gorm.Expr("quantity_available - ?", decimal.NewFromInt(4))).Error)

	_, err := svc.Cancel(ctx, dto.ID, Actor{UserID: buyerID, Role: enums.UserRoleBuyer}, "weather ruined the pickup")
	require.NoError(t, err)

	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.True(t, reloaded.QuantityAvailable.Equal(decimal.NewFromInt(10)),
		"got %s", reloaded.QuantityAvailable)

	var ledger []models.InventoryHistory
	require.NoError(t, db.Find(&ledger, "product_id = ?", product.ID).Error)
	require.Len(t, ledger, 1)
	assert.Equal(t, enums.InventoryChangeRelease, ledger[0].ChangeType)
	assert.True(t, ledger[0].QuantityDelta.Equal(decimal.NewFromInt(4)))
}

func TestCancelShippedOrderRejected(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()

	product := seedOrderProduct(t, db, loader, uuid.New(), "2.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusShipped, lineItem(product.ID, "1", "2.00"))

	_, err := svc.Cancel(ctx, dto.ID, Actor{UserID: buyerID, Role: enums.UserRoleBuyer}, "too late")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestBulkUpdateOrderStatusIsolatesFailures(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	admin := Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

	product := seedOrderProduct(t, db, loader, uuid.New(), "2.00", "100")

	var pendingIDs []uuid.UUID
	for i := 0; i < 2; i++ {
		buyerID := uuid.New()
		cartRow := seedActiveCart(t, db, buyerID)
		dto, err := svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID, lineItem(product.ID, "1", "2.00")))
		require.NoError(t, err)
		pendingIDs = append(pendingIDs, dto.ID)
	}
	shipped := createPaidOrder(t, svc, db, uuid.New(), enums.OrderStatusShipped, lineItem(product.ID, "1", "2.00"))

	ids := append(append([]uuid.UUID{}, pendingIDs...), shipped.ID)
	result, err := svc.BulkUpdateOrderStatus(ctx, ids, enums.OrderStatusConfirmed, admin)
	require.NoError(t, err)
	assert.ElementsMatch(t, pendingIDs, result.Updated)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, shipped.ID, result.Failed[0].OrderID)
}

func TestBulkUpdateFulfillmentScopedToFarmer(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	farmerID := uuid.New()
	otherFarmer := uuid.New()

	mine := seedOrderProduct(t, db, loader, farmerID, "2.00", "100")
	theirs := seedOrderProduct(t, db, loader, otherFarmer, "3.00", "100")

	owned := createPaidOrder(t, svc, db, uuid.New(), enums.OrderStatusConfirmed, lineItem(mine.ID, "2", "2.00"))
	foreign := createPaidOrder(t, svc, db, uuid.New(), enums.OrderStatusConfirmed, lineItem(theirs.ID, "1", "3.00"))

	note := "left at the stand"
	result, err := svc.BulkUpdateFulfillment(ctx, farmerID,
		[]uuid.UUID{owned.ID, foreign.ID}, enums.FulfillmentStatusShipped, &note)
	require.NoError(t, err)

	// The farmer's order advanced; the foreign order failed without
	// touching the rest of the batch.
	assert.ElementsMatch(t, []uuid.UUID{owned.ID}, result.Updated)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, foreign.ID, result.Failed[0].OrderID)
	assert.Contains(t, result.Failed[0].Reason, "no items for this farmer")

	reloaded, err := svc.GetOrder(ctx, owned.ID, owned.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, reloaded.Status)
	require.Len(t, reloaded.Items, 1)
	assert.Equal(t, enums.FulfillmentStatusShipped, reloaded.Items[0].FulfillmentStatus)
	assert.NotNil(t, reloaded.Items[0].ShippedAt)

	var untouched models.Order
	require.NoError(t, db.First(&untouched, "id = ?", foreign.ID).Error)
	assert.Equal(t, enums.OrderStatusConfirmed, untouched.Status)

	// The note travels onto the audit rows the advance produced.
	var history []models.OrderStatusHistory
	require.NoError(t, db.Find(&history, "order_id = ? AND to_status = ?", owned.ID, enums.OrderStatusShipped).Error)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Note)
	assert.Equal(t, note, *history[0].Note)
}

func TestBulkUpdateFulfillmentRejectsUnpaidAndExhausted(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "100")

	unpaidBuyer := uuid.New()
	cartRow := seedActiveCart(t, db, unpaidBuyer)
	unpaid, err := svc.CreateFromSession(ctx, sessionFor(unpaidBuyer, cartRow.ID, lineItem(product.ID, "1", "2.00")))
	require.NoError(t, err)

	delivered := createPaidOrder(t, svc, db, uuid.New(), enums.OrderStatusConfirmed, lineItem(product.ID, "1", "2.00"))
	_, err = svc.UpdateItemFulfillment(ctx, farmerID, FulfillmentUpdateInput{
		OrderID: delivered.ID,
		ItemID:  delivered.Items[0].ID,
		Status:  enums.FulfillmentStatusDelivered,
	})
	require.NoError(t, err)

	result, err := svc.BulkUpdateFulfillment(ctx, farmerID,
		[]uuid.UUID{unpaid.ID, delivered.ID}, enums.FulfillmentStatusShipped, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Updated)
	assert.Len(t, result.Failed, 2)

	_, err = svc.BulkUpdateFulfillment(ctx, farmerID, nil, enums.FulfillmentStatusShipped, nil)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestGenerateShippingLabel(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	dto := createPaidOrder(t, svc, db, buyerID, enums.OrderStatusConfirmed, lineItem(product.ID, "1", "2.00"))

	label, err := svc.GenerateShippingLabel(ctx, farmerID, dto.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(label.TrackingNumber, "FFG"))
	assert.Equal(t, dto.ID, label.OrderID)

	var item models.OrderItem
	require.NoError(t, db.First(&item, "order_id = ?", dto.ID).Error)
	require.NotNil(t, item.TrackingNumber)
	assert.Equal(t, label.TrackingNumber, *item.TrackingNumber)

	// The order row carries the tracking number and the delivery estimate.
	var orderRow models.Order
	require.NoError(t, db.First(&orderRow, "id = ?", dto.ID).Error)
	require.NotNil(t, orderRow.TrackingNumber)
	assert.Equal(t, label.TrackingNumber, *orderRow.TrackingNumber)
	require.NotNil(t, orderRow.EstimatedDelivery)
	assert.True(t, orderRow.EstimatedDelivery.After(time.Now().AddDate(0, 0, 4)))

	_, err = svc.GenerateShippingLabel(ctx, uuid.New(), dto.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestGenerateShippingLabelRequiresPayment(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "2.00", "10")
	cartRow := seedActiveCart(t, db, buyerID)
	dto, err := svc.CreateFromSession(ctx, sessionFor(buyerID, cartRow.ID, lineItem(product.ID, "1", "2.00")))
	require.NoError(t, err)

	_, err = svc.GenerateShippingLabel(ctx, farmerID, dto.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestGetFarmerOrderAnalytics(t *testing.T) {
	svc, db, loader := newOrdersTestService(t)
	ctx := context.Background()
	farmerID := uuid.New()

	product := seedOrderProduct(t, db, loader, farmerID, "5.00", "100")

	createPaidOrder(t, svc, db, uuid.New(), enums.OrderStatusDelivered, lineItem(product.ID, "2", "5.00"))
	createPaidOrder(t, svc, db, uuid.New(), enums.OrderStatusConfirmed, lineItem(product.ID, "3", "5.00"))

	// A cancelled order must not count toward revenue.
	cancelledBuyer := uuid.New()
	cartRow := seedActiveCart(t, db, cancelledBuyer)
	cancelled, err := svc.CreateFromSession(ctx, sessionFor(cancelledBuyer, cartRow.ID, lineItem(product.ID, "4", "5.00")))
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, cancelled.ID, Actor{UserID: cancelledBuyer, Role: enums.UserRoleBuyer}, "no longer needed")
	require.NoError(t, err)

	analytics, err := svc.GetFarmerOrderAnalytics(ctx, farmerID, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), analytics.TotalOrders)
	assert.True(t, analytics.TotalRevenue.Equal(decimal.RequireFromString("25.00")),
		"got %s", analytics.TotalRevenue)
	assert.True(t, analytics.AverageOrderValue.Equal(decimal.RequireFromString("12.50")),
		"got %s", analytics.AverageOrderValue)
	assert.Equal(t, int64(1), analytics.StatusBreakdown[enums.OrderStatusCancelled])
	assert.Equal(t, int64(1), analytics.StatusBreakdown[enums.OrderStatusDelivered])
}

func TestGetFarmerOrderAnalyticsRejectsInvertedWindow(t *testing.T) {
	svc, _, _ := newOrdersTestService(t)

	from := time.Now()
	to := from.Add(-time.Hour)
	_, err := svc.GetFarmerOrderAnalytics(context.Background(), uuid.New(), &from, &to)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
