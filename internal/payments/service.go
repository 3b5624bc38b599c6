package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/internal/catalog"
	"github.com/luiscamargo/farmfresh-backend/internal/orders"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox/payloads"
	pkgstripe "github.com/luiscamargo/farmfresh-backend/pkg/stripe"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CheckoutSessionDTO is what the buyer's client needs to reach hosted
// checkout.
type CheckoutSessionDTO struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// Service talks to the payment provider and applies its outcomes to orders.
type Service struct {
	provider ProviderClient
	meta     *pkgstripe.Client
	orders   *orders.Repository
	events   *Repository
	tx       txRunner
	adjuster *catalog.Adjuster
	outbox   *outbox.Service
	timeout  time.Duration
	logg     *logger.Logger
}

type ServiceParams struct {
	Provider   ProviderClient
	Meta       *pkgstripe.Client
	OrdersRepo *orders.Repository
	EventsRepo *Repository
	Tx         txRunner
	Adjuster   *catalog.Adjuster
	Outbox     *outbox.Service
	Timeout    time.Duration
	Logger     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("provider client required")
	}
	if params.Meta == nil {
		return nil, fmt.Errorf("stripe client metadata required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.EventsRepo == nil {
		return nil, fmt.Errorf("payment events repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Adjuster == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		provider: params.Provider,
		meta:     params.Meta,
		orders:   params.OrdersRepo,
		events:   params.EventsRepo,
		tx:       params.Tx,
		adjuster: params.Adjuster,
		outbox:   params.Outbox,
		timeout:  timeout,
		logg:     params.Logger,
	}, nil
}

// CreateCheckoutSession opens a hosted checkout session for a pending unpaid
// order and stores the provider's session id on it.
func (s *Service) CreateCheckoutSession(ctx context.Context, orderID, buyerID uuid.UUID) (*CheckoutSessionDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status != enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status})
	}
	if order.PaymentStatus == enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}

	session, err := s.openProviderSession(ctx, order)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"provider_session_id": session.ID}
	if order.PaymentStatus == enums.PaymentStatusFailed {
		updates["payment_status"] = enums.PaymentStatusUnpaid
	}
	if err := s.orders.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider session")
	}
	return &CheckoutSessionDTO{SessionID: session.ID, URL: session.URL}, nil
}

// RetryFailedPayment opens a fresh session after a decline. When the
// original intent already succeeded the caller gets a typed cannot-retry
// error; the webhook simply has not landed yet.
func (s *Service) RetryFailedPayment(ctx context.Context, orderID, buyerID uuid.UUID) (*CheckoutSessionDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	if order.PaymentIntentID != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		intent, err := s.provider.GetPaymentIntent(callCtx, *order.PaymentIntentID)
		cancel()
		if err != nil {
			return nil, wrapProviderError(err, "fetch payment intent")
		}
		if intent.Status == stripe.PaymentIntentStatusSucceeded {
			retryErr := &CannotRetryError{Reason: "payment already succeeded"}
			return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, retryErr, "retry refused")
		}
	}

	return s.CreateCheckoutSession(ctx, orderID, buyerID)
}

// RefundPayment issues a provider refund for up to the remaining charge.
func (s *Service) RefundPayment(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, actor orders.Actor) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.PaymentIntentID == nil || (order.PaymentStatus != enums.PaymentStatusPaid && order.PaymentStatus != enums.PaymentStatusPartiallyRefunded) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no refundable payment")
	}
	remaining := order.Total.Sub(order.RefundedAmount)
	if amount.GreaterThan(remaining) {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund exceeds remaining charge").
			WithDetails(map[string]any{"remaining": remaining})
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	refunded, err := s.provider.CreateRefund(callCtx, &stripe.RefundParams{
		PaymentIntent: stripe.String(*order.PaymentIntentID),
		Amount:        stripe.Int64(toCents(amount)),
	})
	cancel()
	if err != nil {
		return wrapProviderError(err, "create refund")
	}

	return s.applyRefund(ctx, order.ID, order.RefundedAmount.Add(amount), refundEventRecord{
		providerEventID: refunded.ID,
		eventType:       "refund.requested",
		intentID:        *order.PaymentIntentID,
		payload:         []byte(fmt.Sprintf(`{"refund_id":%q,"amount":%q,"actor":%q}`, refunded.ID, amount.String(), actor.UserID)),
	})
}

// HandleEvent applies one verified provider event. Replays and unknown event
// types return nil so the provider stops redelivering.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		orderID, err := orderIDFromMetadata(session.Metadata)
		if err != nil {
			return err
		}
		intentID := ""
		if session.PaymentIntent != nil {
			intentID = session.PaymentIntent.ID
		}
		return s.markPaid(ctx, orderID, intentID, event)
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		orderID, err := orderIDFromMetadata(intent.Metadata)
		if err != nil {
			return err
		}
		return s.markPaid(ctx, orderID, intent.ID, event)
	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent")
		}
		orderID, err := orderIDFromMetadata(intent.Metadata)
		if err != nil {
			return err
		}
		return s.markFailed(ctx, orderID, &intent, event)
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		return s.markRefunded(ctx, &charge, event)
	default:
		// Unknown event types are acknowledged, not retried.
		return nil
	}
}

// markPaid is the settlement path. The payment-status conditional update is
// the correctness barrier: a replay that lost the race changes nothing.
func (s *Service) markPaid(ctx context.Context, orderID uuid.UUID, intentID string, event *stripe.Event) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.events.WithTx(tx).InsertEvent(ctx, &models.PaymentEvent{
			ProviderEventID: event.ID,
			EventType:       string(event.Type),
			OrderID:         &orderID,
			PaymentIntentID: optional(intentID),
			Payload:         event.Data.Raw,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment event")
		}
		if !fresh {
			return nil
		}

		repo := s.orders.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		now := time.Now()
		updates := map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        now,
		}
		if intentID != "" {
			updates["payment_intent_id"] = intentID
		}
		won, err := repo.UpdateIfPaymentStatus(ctx, orderID, enums.PaymentStatusUnpaid, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !won {
			return nil
		}

		adjuster := s.adjuster.Bind(tx)
		for _, item := range order.Items {
			if item.ProductID == nil {
				continue
			}
			err := adjuster.Adjust(ctx, catalog.StockAdjustment{
				ProductID:  *item.ProductID,
				Delta:      item.Quantity.Neg(),
				ChangeType: enums.InventoryChangeSale,
				OrderID:    &order.ID,
			})
			if err != nil {
				return err
			}
		}

		if orders.CanTransition(order.Status, enums.OrderStatusConfirmed) {
			if err := repo.Update(ctx, orderID, map[string]any{"status": enums.OrderStatusConfirmed}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "confirm order")
			}
			from := order.Status
			history := &models.OrderStatusHistory{
				OrderID:    orderID,
				FromStatus: &from,
				ToStatus:   enums.OrderStatusConfirmed,
			}
			if err := repo.InsertStatusHistory(ctx, history); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record confirmation")
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderPaidEvent{
				OrderID:         orderID,
				BuyerID:         order.BuyerID,
				PaymentIntentID: intentID,
				Amount:          order.Total,
				PaidAt:          now,
			},
		})
	})
}

func (s *Service) markFailed(ctx context.Context, orderID uuid.UUID, intent *stripe.PaymentIntent, event *stripe.Event) error {
	failureCode := ""
	if intent.LastPaymentError != nil {
		failureCode = string(intent.LastPaymentError.Code)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.events.WithTx(tx).InsertEvent(ctx, &models.PaymentEvent{
			ProviderEventID: event.ID,
			EventType:       string(event.Type),
			OrderID:         &orderID,
			PaymentIntentID: optional(intent.ID),
			Payload:         event.Data.Raw,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment event")
		}
		if !fresh {
			return nil
		}

		repo := s.orders.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		won, err := repo.UpdateIfPaymentStatus(ctx, orderID, enums.PaymentStatusUnpaid, map[string]any{
			"payment_status": enums.PaymentStatusFailed,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
		}
		if !won {
			return nil
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.PaymentFailedEvent{
				OrderID:         orderID,
				BuyerID:         order.BuyerID,
				PaymentIntentID: intent.ID,
				FailureCode:     failureCode,
			},
		})
	})
}

func (s *Service) markRefunded(ctx context.Context, charge *stripe.Charge, event *stripe.Event) error {
	if charge.PaymentIntent == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge has no payment intent")
	}
	order, err := s.orders.FindByPaymentIntent(ctx, charge.PaymentIntent.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found for intent")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve order")
	}

	// The charge carries the absolute refunded amount, so replays converge.
	refundedTotal := decimal.NewFromInt(charge.AmountRefunded).Div(decimal.NewFromInt(100))
	return s.applyRefund(ctx, order.ID, refundedTotal, refundEventRecord{
		providerEventID: event.ID,
		eventType:       string(event.Type),
		intentID:        charge.PaymentIntent.ID,
		payload:         event.Data.Raw,
	})
}

type refundEventRecord struct {
	providerEventID string
	eventType       string
	intentID        string
	payload         []byte
}

// applyRefund sets the order's absolute refunded amount plus the matching
// payment and order statuses, appending the provider event in the same tx.
func (s *Service) applyRefund(ctx context.Context, orderID uuid.UUID, refundedTotal decimal.Decimal, record refundEventRecord) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := s.events.WithTx(tx).InsertEvent(ctx, &models.PaymentEvent{
			ProviderEventID: record.providerEventID,
			EventType:       record.eventType,
			OrderID:         &orderID,
			PaymentIntentID: optional(record.intentID),
			Payload:         record.payload,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment event")
		}
		if !fresh {
			return nil
		}

		repo := s.orders.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		full := refundedTotal.GreaterThanOrEqual(order.Total)
		paymentStatus := enums.PaymentStatusPartiallyRefunded
		if full {
			paymentStatus = enums.PaymentStatusRefunded
		}
		updates := map[string]any{
			"refunded_amount": refundedTotal,
			"payment_status":  paymentStatus,
		}
		if err := repo.Update(ctx, orderID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply refund")
		}

		if full && orders.CanTransition(order.Status, enums.OrderStatusRefunded) {
			if err := repo.Update(ctx, orderID, map[string]any{"status": enums.OrderStatusRefunded}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "transition to refunded")
			}
			from := order.Status
			history := &models.OrderStatusHistory{
				OrderID:    orderID,
				FromStatus: &from,
				ToStatus:   enums.OrderStatusRefunded,
			}
			if err := repo.InsertStatusHistory(ctx, history); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund transition")
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderRefunded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data: payloads.OrderRefundedEvent{
				OrderID:        orderID,
				BuyerID:        order.BuyerID,
				RefundedAmount: refundedTotal,
				Partial:        !full,
			},
		})
	})
}

func (s *Service) openProviderSession(ctx context.Context, order *models.Order) (*stripe.CheckoutSession, error) {
	currency := strings.ToLower(order.Currency.String())
	line := func(name string, amount decimal.Decimal) *stripe.CheckoutSessionLineItemParams {
		return &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(currency),
				UnitAmount: stripe.Int64(toCents(amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		}
	}

	// Quantities can be fractional (produce sold by weight), so each order
	// line maps to one session line priced at its line total. The fee, tax,
	// and shipping lines bring the session sum up to the order total.
	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(order.Items)+3)
	for _, item := range order.Items {
		name := fmt.Sprintf("%s (%s %s)", item.ProductName, item.Quantity, item.Unit)
		lines = append(lines, line(name, item.LineTotal))
	}
	lines = append(lines, line("Platform fee", order.PlatformFee))
	if order.TaxAmount.IsPositive() {
		lines = append(lines, line("Sales tax", order.TaxAmount))
	}
	if order.ShippingAmount.IsPositive() {
		lines = append(lines, line("Shipping", order.ShippingAmount))
	}

	metadata := map[string]string{
		"order_id":     order.ID.String(),
		"platform_fee": order.PlatformFee.StringFixed(2),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.meta.SuccessURL()),
		CancelURL:         stripe.String(s.meta.CancelURL()),
		ClientReferenceID: stripe.String(order.ID.String()),
		LineItems:         lines,
		Metadata:          metadata,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	session, err := s.provider.CreateCheckoutSession(callCtx, params)
	if err != nil {
		return nil, wrapProviderError(err, "create checkout session")
	}
	return session, nil
}

func (s *Service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func orderIDFromMetadata(metadata map[string]string) (uuid.UUID, error) {
	raw := metadata["order_id"]
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id metadata missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse order_id metadata")
	}
	return id, nil
}

func toCents(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
