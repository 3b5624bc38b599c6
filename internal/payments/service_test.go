package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/internal/catalog"
	"github.com/luiscamargo/farmfresh-backend/internal/orders"
	"github.com/luiscamargo/farmfresh-backend/pkg/config"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox"
	pkgstripe "github.com/luiscamargo/farmfresh-backend/pkg/stripe"
	"github.com/luiscamargo/farmfresh-backend/pkg/types"
)

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
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
);`, `
CREATE TABLE IF NOT EXISTS payment_events (
  id TEXT PRIMARY KEY,
  provider_event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  order_id TEXT,
  payment_intent_id TEXT,
  payload TEXT NOT NULL,
  processed_at DATETIME
);`}
	for _, stmt := range ddl {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type paymentsTxRunner struct {
	db *gorm.DB
}

func (r paymentsTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubProvider struct {
	session    *stripe.CheckoutSession
	sessionErr error
	intent     *stripe.PaymentIntent
	intentErr  error
	refund     *stripe.Refund
	refundErr  error

	sessionParams *stripe.CheckoutSessionParams
	refundParams  *stripe.RefundParams
}

func (s *stubProvider) CreateCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	s.sessionParams = params
	return s.session, s.sessionErr
}

func (s *stubProvider) GetPaymentIntent(_ context.Context, _ string) (*stripe.PaymentIntent, error) {
	return s.intent, s.intentErr
}

func (s *stubProvider) CreateRefund(_ context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	s.refundParams = params
	return s.refund, s.refundErr
}

func testMetaClient(t *testing.T) *pkgstripe.Client {
	t.Helper()

	meta, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_payments",
		WebhookSecret: "whsec_payments",
		Env:           "test",
		SuccessURL:    "https://farmfresh.example/checkout/success",
		CancelURL:     "https://farmfresh.example/checkout/cancel",
	}, nil)
	require.NoError(t, err)
	return meta
}

func newPaymentsTestService(t *testing.T) (*Service, *gorm.DB, *stubProvider) {
	t.Helper()

	db := setupPaymentsTestDB(t)
	provider := &stubProvider{}
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Provider:   provider,
		Meta:       testMetaClient(t),
		OrdersRepo: orders.NewRepository(db),
		EventsRepo: NewRepository(db),
		Tx:         paymentsTxRunner{db: db},
		Adjuster:   catalog.NewAdjuster(catalog.NewRepository(db)),
		Outbox:     outbox.NewService(outbox.NewRepository(db), logg),
		Timeout:    time.Second,
		Logger:     logg,
	})
	require.NoError(t, err)
	return svc, db, provider
}

func seedPaymentProduct(t *testing.T, db *gorm.DB, qty string) models.Product {
	t.Helper()

	product := models.Product{
		ID:                uuid.New(),
		FarmerID:          uuid.New(),
		Name:              "Pasture Eggs",
		Category:          "dairy-eggs",
		Tags:              pq.StringArray{"eggs"},
		Price:             decimal.RequireFromString("6.50"),
		Unit:              "dozen",
		QuantityAvailable: decimal.RequireFromString(qty),
		MinOrderQty:       decimal.NewFromInt(1),
		Status:            enums.ProductStatusActive,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

type orderSeed struct {
	buyerID       uuid.UUID
	status        enums.OrderStatus
	paymentStatus enums.PaymentStatus
	intentID      *string
	total         string
	fee           string
	refunded      string
	productID     uuid.UUID
	quantity      string
}

func seedPaymentOrder(t *testing.T, db *gorm.DB, seed orderSeed) *models.Order {
	t.Helper()

	if seed.buyerID == uuid.Nil {
		seed.buyerID = uuid.New()
	}
	if seed.total == "" {
		seed.total = "20.00"
	}
	if seed.fee == "" {
		seed.fee = "0"
	}
	if seed.refunded == "" {
		seed.refunded = "0"
	}
	if seed.quantity == "" {
		seed.quantity = "2"
	}

	order := &models.Order{
		OrderNumber:     fmt.Sprintf("FF-TEST-%s", uuid.NewString()[:8]),
		BuyerID:         seed.buyerID,
		Status:          seed.status,
		PaymentStatus:   seed.paymentStatus,
		PaymentIntentID: seed.intentID,
		Currency:        enums.CurrencyUSD,
		Subtotal:        decimal.RequireFromString(seed.total),
		PlatformFee:     decimal.RequireFromString(seed.fee),
		Total:           decimal.RequireFromString(seed.total),
		RefundedAmount:  decimal.RequireFromString(seed.refunded),
		ShippingAddress: types.Address{
			Line1:      "412 Orchard Way",
			City:       "Fresno",
			State:      "CA",
			PostalCode: "93650",
			Country:    "US",
		},
	}
	if seed.productID != uuid.Nil {
		productID := seed.productID
		qty := decimal.RequireFromString(seed.quantity)
		order.Items = []models.OrderItem{{
			ProductID:         &productID,
			FarmerID:          uuid.New(),
			ProductName:       "Pasture Eggs",
			Unit:              "dozen",
			Quantity:          qty,
			UnitPrice:         decimal.RequireFromString("6.50"),
			LineTotal:         decimal.RequireFromString("6.50").Mul(qty).Round(2),
			FulfillmentStatus: enums.FulfillmentStatusPending,
		}}
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func checkoutCompletedEvent(t *testing.T, eventID string, orderID uuid.UUID, intentID string) *stripe.Event {
	t.Helper()

	session := &stripe.CheckoutSession{
		ID:            "cs_test_1",
		Metadata:      map[string]string{"order_id": orderID.String()},
		PaymentIntent: &stripe.PaymentIntent{ID: intentID},
	}
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	return &stripe.Event{
		ID:   eventID,
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestCreateCheckoutSessionStoresProviderSession(t *testing.T) {
	svc, db, provider := newPaymentsTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()

	product := seedPaymentProduct(t, db, "10")
	order := seedPaymentOrder(t, db, orderSeed{
		buyerID:       buyerID,
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusUnpaid,
		productID:     product.ID,
		quantity:      "2",
		total:         "13.65",
		fee:           "0.65",
	})
	provider.session = &stripe.CheckoutSession{ID: "cs_test_42", URL: "https://checkout.stripe.com/pay/cs_test_42"}

	dto, err := svc.CreateCheckoutSession(ctx, order.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_42", dto.SessionID)
	assert.NotEmpty(t, dto.URL)

	// One session line per order line plus the platform-fee line.
	require.NotNil(t, provider.sessionParams)
	require.Len(t, provider.sessionParams.LineItems, 2)
	itemLine := provider.sessionParams.LineItems[0]
	assert.Contains(t, *itemLine.PriceData.ProductData.Name, "Pasture Eggs")
	assert.Equal(t, int64(1300), *itemLine.PriceData.UnitAmount)
	feeLine := provider.sessionParams.LineItems[1]
	assert.Equal(t, "Platform fee", *feeLine.PriceData.ProductData.Name)
	assert.Equal(t, int64(65), *feeLine.PriceData.UnitAmount)
	assert.Equal(t, order.ID.String(), provider.sessionParams.Metadata["order_id"])
	assert.Equal(t, "0.65", provider.sessionParams.Metadata["platform_fee"])

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	require.NotNil(t, reloaded.ProviderSession)
	assert.Equal(t, "cs_test_42", *reloaded.ProviderSession)
}

func TestCreateCheckoutSessionGuards(t *testing.T) {
	svc, db, provider := newPaymentsTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	provider.session = &stripe.CheckoutSession{ID: "cs_unused"}

	confirmed := seedPaymentOrder(t, db, orderSeed{
		buyerID:       buyerID,
		status:        enums.OrderStatusConfirmed,
		paymentStatus: enums.PaymentStatusPaid,
	})
	_, err := svc.CreateCheckoutSession(ctx, confirmed.ID, buyerID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	pending := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusUnpaid,
	})
	_, err = svc.CreateCheckoutSession(ctx, pending.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestHandleEventCheckoutCompletedSettlesOrder(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)
	ctx := context.Background()

	product := seedPaymentProduct(t, db, "10")
	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusUnpaid,
		productID:     product.ID,
		quantity:      "3",
		total:         "19.50",
	})

	err := svc.HandleEvent(ctx, checkoutCompletedEvent(t, "evt_settle", order.ID, "pi_settle"))
	require.NoError(t, err)

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPaid, reloaded.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)
	assert.NotNil(t, reloaded.PaidAt)
	require.NotNil(t, reloaded.PaymentIntentID)
	assert.Equal(t, "pi_settle", *reloaded.PaymentIntentID)

	var freshProduct models.Product
	require.NoError(t, db.First(&freshProduct, "id = ?", product.ID).Error)
	assert.True(t, freshProduct.QuantityAvailable.Equal(decimal.NewFromInt(7)),
		"got %s", freshProduct.QuantityAvailable)

	var ledger []models.InventoryHistory
	require.NoError(t, db.Find(&ledger, "product_id = ?", product.ID).Error)
	require.Len(t, ledger, 1)
	assert.Equal(t, enums.InventoryChangeSale, ledger[0].ChangeType)

	var outboxRows []models.OutboxEvent
	require.NoError(t, db.Find(&outboxRows, "aggregate_id = ? AND event_type = ?", order.ID, enums.EventOrderPaid).Error)
	assert.Len(t, outboxRows, 1)
}

func TestHandleEventReplayChangesNothing(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)
	ctx := context.Background()

	product := seedPaymentProduct(t, db, "10")
	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusUnpaid,
		productID:     product.ID,
		quantity:      "3",
	})

	event := checkoutCompletedEvent(t, "evt_replay", order.ID, "pi_replay")
	require.NoError(t, svc.HandleEvent(ctx, event))
	require.NoError(t, svc.HandleEvent(ctx, event))

	var freshProduct models.Product
	require.NoError(t, db.First(&freshProduct, "id = ?", product.ID).Error)
	assert.True(t, freshProduct.QuantityAvailable.Equal(decimal.NewFromInt(7)),
		"stock decremented twice: %s", freshProduct.QuantityAvailable)

	var events []models.PaymentEvent
	require.NoError(t, db.Find(&events, "provider_event_id = ?", "evt_replay").Error)
	assert.Len(t, events, 1)
}

func TestHandleEventLostPaymentRaceChangesNothing(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)
	ctx := context.Background()

	product := seedPaymentProduct(t, db, "10")
	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusUnpaid,
		productID:     product.ID,
		quantity:      "3",
	})

	// checkout.session.completed and payment_intent.succeeded both arrive for
	// the same charge under distinct event ids. Only the first may decrement.
	require.NoError(t, svc.HandleEvent(ctx, checkoutCompletedEvent(t, "evt_first", order.ID, "pi_race")))

	intent := &stripe.PaymentIntent{
		ID:       "pi_race",
		Metadata: map[string]string{"order_id": order.ID.String()},
		Status:   stripe.PaymentIntentStatusSucceeded,
	}
	raw, err := json.Marshal(intent)
	require.NoError(t, err)
	require.NoError(t, svc.HandleEvent(ctx, &stripe.Event{
		ID:   "evt_second",
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: raw},
	}))

	var freshProduct models.Product
	require.NoError(t, db.First(&freshProduct, "id = ?", product.ID).Error)
	assert.True(t, freshProduct.QuantityAvailable.Equal(decimal.NewFromInt(7)),
		"got %s", freshProduct.QuantityAvailable)
}

func TestHandleEventPaymentFailed(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)
	ctx := context.Background()

	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusUnpaid,
	})

	intent := &stripe.PaymentIntent{
		ID:       "pi_declined",
		Metadata: map[string]string{"order_id": order.ID.String()},
		LastPaymentError: &stripe.Error{
			Code: stripe.ErrorCodeCardDeclined,
		},
	}
	raw, err := json.Marshal(intent)
	require.NoError(t, err)
	require.NoError(t, svc.HandleEvent(ctx, &stripe.Event{
		ID:   "evt_failed",
		Type: stripe.EventTypePaymentIntentPaymentFailed,
		Data: &stripe.EventData{Raw: raw},
	}))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusFailed, reloaded.PaymentStatus)
	assert.Equal(t, enums.OrderStatusPending, reloaded.Status)

	var outboxRows []models.OutboxEvent
	require.NoError(t, db.Find(&outboxRows, "aggregate_id = ? AND event_type = ?", order.ID, enums.EventPaymentFailed).Error)
	assert.Len(t, outboxRows, 1)
}

func TestHandleEventChargeRefunded(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)
	ctx := context.Background()
	intentID := "pi_refund"

	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusConfirmed,
		paymentStatus: enums.PaymentStatusPaid,
		intentID:      &intentID,
		total:         "20.00",
	})

	refundEvent := func(eventID string, cents int64) *stripe.Event {
		charge := &stripe.Charge{
			ID:             "ch_refund",
			PaymentIntent:  &stripe.PaymentIntent{ID: intentID},
			AmountRefunded: cents,
		}
		raw, err := json.Marshal(charge)
		require.NoError(t, err)
		return &stripe.Event{
			ID:   eventID,
			Type: stripe.EventTypeChargeRefunded,
			Data: &stripe.EventData{Raw: raw},
		}
	}

	require.NoError(t, svc.HandleEvent(ctx, refundEvent("evt_partial", 500)))

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, reloaded.PaymentStatus)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, enums.OrderStatusConfirmed, reloaded.Status)

	require.NoError(t, svc.HandleEvent(ctx, refundEvent("evt_full", 2000)))

	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusRefunded, reloaded.PaymentStatus)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, enums.OrderStatusRefunded, reloaded.Status)
}

func TestHandleEventChargeRefundedDeliveredOrderKeepsStatus(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)
	ctx := context.Background()
	intentID := "pi_refund_delivered"

	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusDelivered,
		paymentStatus: enums.PaymentStatusPaid,
		intentID:      &intentID,
		total:         "20.00",
	})

	charge := &stripe.Charge{
		ID:             "ch_refund_delivered",
		PaymentIntent:  &stripe.PaymentIntent{ID: intentID},
		AmountRefunded: 2000,
	}
	raw, err := json.Marshal(charge)
	require.NoError(t, err)
	require.NoError(t, svc.HandleEvent(ctx, &stripe.Event{
		ID:   "evt_refund_delivered",
		Type: stripe.EventTypeChargeRefunded,
		Data: &stripe.EventData{Raw: raw},
	}))

	// Delivered is terminal: the refund is recorded on the payment side but
	// the order status stays put.
	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusRefunded, reloaded.PaymentStatus)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.RequireFromString("20")))
	assert.Equal(t, enums.OrderStatusDelivered, reloaded.Status)
}

func TestHandleEventUnknownTypeAcknowledged(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)

	err := svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_unknown",
		Type: stripe.EventType("price.created"),
		Data: &stripe.EventData{Raw: []byte(`{}`)},
	})
	require.NoError(t, err)

	var events []models.PaymentEvent
	require.NoError(t, db.Find(&events).Error)
	assert.Empty(t, events)
}

func TestHandleEventMissingOrderMetadata(t *testing.T) {
	svc, _, _ := newPaymentsTestService(t)

	session := &stripe.CheckoutSession{ID: "cs_no_meta"}
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	err = svc.HandleEvent(context.Background(), &stripe.Event{
		ID:   "evt_no_meta",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestRetryFailedPaymentRefusesSettledIntent(t *testing.T) {
	svc, db, provider := newPaymentsTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	intentID := "pi_settled"

	order := seedPaymentOrder(t, db, orderSeed{
		buyerID:       buyerID,
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusFailed,
		intentID:      &intentID,
	})
	provider.intent = &stripe.PaymentIntent{ID: intentID, Status: stripe.PaymentIntentStatusSucceeded}

	_, err := svc.RetryFailedPayment(ctx, order.ID, buyerID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	var cannotRetry *CannotRetryError
	assert.True(t, errors.As(err, &cannotRetry))
}

func TestRetryFailedPaymentOpensFreshSession(t *testing.T) {
	svc, db, provider := newPaymentsTestService(t)
	ctx := context.Background()
	buyerID := uuid.New()
	intentID := "pi_retryable"

	order := seedPaymentOrder(t, db, orderSeed{
		buyerID:       buyerID,
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusFailed,
		intentID:      &intentID,
	})
	provider.intent = &stripe.PaymentIntent{ID: intentID, Status: stripe.PaymentIntentStatusRequiresPaymentMethod}
	provider.session = &stripe.CheckoutSession{ID: "cs_retry", URL: "https://checkout.stripe.com/pay/cs_retry"}

	dto, err := svc.RetryFailedPayment(ctx, order.ID, buyerID)
	require.NoError(t, err)
	assert.Equal(t, "cs_retry", dto.SessionID)

	// The failed flag resets so the next webhook can settle the order.
	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusUnpaid, reloaded.PaymentStatus)
}

func TestRefundPaymentValidations(t *testing.T) {
	svc, db, _ := newPaymentsTestService(t)
	ctx := context.Background()
	actor := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	intentID := "pi_refundable"

	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusConfirmed,
		paymentStatus: enums.PaymentStatusPaid,
		intentID:      &intentID,
		total:         "20.00",
		refunded:      "15.00",
	})

	err := svc.RefundPayment(ctx, order.ID, decimal.Zero, actor)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	err = svc.RefundPayment(ctx, order.ID, decimal.RequireFromString("6.00"), actor)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	unpaid := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusPending,
		paymentStatus: enums.PaymentStatusUnpaid,
	})
	err = svc.RefundPayment(ctx, unpaid.ID, decimal.NewFromInt(1), actor)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestRefundPaymentAppliesPartialRefund(t *testing.T) {
	svc, db, provider := newPaymentsTestService(t)
	ctx := context.Background()
	actor := orders.Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}
	intentID := "pi_partial"

	order := seedPaymentOrder(t, db, orderSeed{
		status:        enums.OrderStatusConfirmed,
		paymentStatus: enums.PaymentStatusPaid,
		intentID:      &intentID,
		total:         "20.00",
	})
	provider.refund = &stripe.Refund{ID: "re_1"}

	require.NoError(t, svc.RefundPayment(ctx, order.ID, decimal.RequireFromString("7.50"), actor))

	require.NotNil(t, provider.refundParams)
	assert.Equal(t, int64(750), *provider.refundParams.Amount)

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, reloaded.PaymentStatus)
	assert.True(t, reloaded.RefundedAmount.Equal(decimal.RequireFromString("7.50")))

	var events []models.PaymentEvent
	require.NoError(t, db.Find(&events, "provider_event_id = ?", "re_1").Error)
	require.Len(t, events, 1)
	assert.Equal(t, "refund.requested", events[0].EventType)
}
