package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/internal/cart"
	"github.com/luiscamargo/farmfresh-backend/internal/catalog"
	"github.com/luiscamargo/farmfresh-backend/internal/checkout"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	pkgerrors "github.com/luiscamargo/farmfresh-backend/pkg/errors"
	"github.com/luiscamargo/farmfresh-backend/pkg/logger"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox/payloads"
	"github.com/luiscamargo/farmfresh-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Actor identifies who is driving an order mutation for the audit trail.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

func (a Actor) ref() *outbox.ActorRef {
	if a.UserID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: a.UserID, Role: a.Role.String()}
}

// Service owns the order lifecycle.
type Service struct {
	repo     *Repository
	tx       txRunner
	carts    *cart.Repository
	products productLoader
	adjuster *catalog.Adjuster
	events   *outbox.Service
	logg     *logger.Logger
}

func NewService(
	repo *Repository,
	tx txRunner,
	carts *cart.Repository,
	products productLoader,
	adjuster *catalog.Adjuster,
	events *outbox.Service,
	logg *logger.Logger,
) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if carts == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if adjuster == nil {
		return nil, fmt.Errorf("inventory adjuster required")
	}
	if events == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:     repo,
		tx:       tx,
		carts:    carts,
		products: products,
		adjuster: adjuster,
		events:   events,
		logg:     logg,
	}, nil
}

// CreateFromSession persists the checkout session as a PENDING order. The
// order, its items, the cart conversion and the first history row commit
// together. Stock is not touched here; payment confirmation decrements it.
func (s *Service) CreateFromSession(ctx context.Context, session *checkout.CheckoutSession) (*OrderDTO, error) {
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	if len(session.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session has no items")
	}

	ids := make([]uuid.UUID, 0, len(session.Items))
	for _, item := range session.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}

	items := make([]models.OrderItem, 0, len(session.Items))
	farmerSet := map[uuid.UUID]bool{}
	for _, line := range session.Items {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product no longer available").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		productID := line.ProductID
		items = append(items, models.OrderItem{
			ProductID:         &productID,
			FarmerID:          product.FarmerID,
			ProductName:       product.Name,
			Unit:              product.Unit,
			Quantity:          line.Quantity,
			UnitPrice:         line.UnitPrice,
			LineTotal:         line.UnitPrice.Mul(line.Quantity).Round(2),
			FulfillmentStatus: enums.FulfillmentStatusPending,
		})
		farmerSet[product.FarmerID] = true
	}
	farmerIDs := make([]uuid.UUID, 0, len(farmerSet))
	for id := range farmerSet {
		farmerIDs = append(farmerIDs, id)
	}

	cartID := session.CartID
	order := &models.Order{
		OrderNumber:     generateOrderNumber(),
		BuyerID:         session.UserID,
		CartID:          &cartID,
		Status:          enums.OrderStatusPending,
		PaymentStatus:   enums.PaymentStatusUnpaid,
		Currency:        session.Pricing.Currency,
		Subtotal:        session.Pricing.Subtotal,
		TaxAmount:       session.Pricing.TaxAmount,
		ShippingAmount:  session.Pricing.ShippingAmount,
		PlatformFee:     session.Pricing.PlatformFee,
		Total:           session.Pricing.Total,
		ShippingAddress: session.ShippingAddress,
		Items:           items,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := s.carts.WithTx(tx).UpdateStatus(ctx, session.CartID, enums.CartStatusConverted); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "convert cart")
		}
		history := &models.OrderStatusHistory{
			OrderID:  order.ID,
			ToStatus: enums.OrderStatusPending,
			ActorID:  &session.UserID,
		}
		if err := repo.InsertStatusHistory(ctx, history); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record order creation")
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         Actor{UserID: session.UserID, Role: enums.UserRoleBuyer}.ref(),
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				BuyerID:     order.BuyerID,
				FarmerIDs:   farmerIDs,
				Total:       order.Total,
				Currency:    order.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
	}), "order created")
	return orderFromModel(order), nil
}

// GetOrder loads an order scoped to its buyer.
func (s *Service) GetOrder(ctx context.Context, orderID, buyerID uuid.UUID) (*OrderDTO, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return orderFromModel(order), nil
}

// ListBuyerOrders pages the buyer's order history.
func (s *Service) ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	rows, next, err := s.repo.ListByBuyer(ctx, buyerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return toOrderList(rows, next), nil
}

// GetFarmerOrders pages orders containing the farmer's items, with only
// those items attached.
func (s *Service) GetFarmerOrders(ctx context.Context, farmerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	rows, next, err := s.repo.ListByFarmer(ctx, farmerID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list farmer orders")
	}
	return toOrderList(rows, next), nil
}

// UpdateOrderStatus applies one legal transition with its audit row.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, to enums.OrderStatus, actor Actor, note *string) (*OrderDTO, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}

	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		next, err := s.transition(ctx, tx, order, to, actor, note)
		if err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orderFromModel(updated), nil
}

// BulkUpdateOrderStatus runs the transition per order in its own
// transaction so one illegal move never blocks the rest.
func (s *Service) BulkUpdateOrderStatus(ctx context.Context, orderIDs []uuid.UUID, to enums.OrderStatus, actor Actor) (*BulkStatusResult, error) {
	if len(orderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no order ids given")
	}

	result := &BulkStatusResult{Updated: []uuid.UUID{}, Failed: []BulkStatusFailure{}}
	for _, id := range orderIDs {
		if _, err := s.UpdateOrderStatus(ctx, id, to, actor, nil); err != nil {
			result.Failed = append(result.Failed, BulkStatusFailure{OrderID: id, Reason: err.Error()})
			continue
		}
		result.Updated = append(result.Updated, id)
	}
	return result, nil
}

// UpdateItemFulfillment moves one of the farmer's items forward. Fulfillment
// never goes backwards. After the item write the order's items are reloaded
// in the same transaction and the order auto-advances when they agree.
func (s *Service) UpdateItemFulfillment(ctx context.Context, farmerID uuid.UUID, input FulfillmentUpdateInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid fulfillment status")
	}

	var orderID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindItem(ctx, input.OrderID, input.ItemID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order item not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order item")
		}
		if item.FarmerID != farmerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "item belongs to another farmer")
		}
		if input.Status.Rank() <= item.FulfillmentStatus.Rank() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fulfillment status cannot move backwards").
				WithDetails(map[string]any{
					"current":   item.FulfillmentStatus,
					"requested": input.Status,
				})
		}

		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid yet")
		}

		updates := fulfillmentStamps(item, input.Status, input.TrackingNumber, time.Now())
		if err := repo.UpdateItem(ctx, item.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
		}

		if err := s.autoAdvanceOrder(ctx, tx, order, farmerID, nil); err != nil {
			return err
		}

		if input.Status == enums.FulfillmentStatusShipped {
			tracking := ""
			if input.TrackingNumber != nil {
				tracking = *input.TrackingNumber
			}
			err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventItemShipped,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         Actor{UserID: farmerID, Role: enums.UserRoleFarmer}.ref(),
				Data: payloads.ItemShippedEvent{
					OrderID:        order.ID,
					OrderItemID:    item.ID,
					FarmerID:       farmerID,
					TrackingNumber: tracking,
				},
			})
			if err != nil {
				return err
			}
		}
		orderID = order.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return orderFromModel(order), nil
}

// BulkUpdateFulfillment advances the farmer's items across many orders, one
// transaction each, so a failure on one order never blocks the rest. Orders
// carrying none of the farmer's items fail with an access error; orders whose
// items are already at or past the target status fail with a state conflict.
func (s *Service) BulkUpdateFulfillment(ctx context.Context, farmerID uuid.UUID, orderIDs []uuid.UUID, to enums.FulfillmentStatus, note *string) (*BulkStatusResult, error) {
	if len(orderIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no order ids given")
	}
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid fulfillment status")
	}

	result := &BulkStatusResult{Updated: []uuid.UUID{}, Failed: []BulkStatusFailure{}}
	for _, orderID := range orderIDs {
		if err := s.advanceFarmerItems(ctx, farmerID, orderID, to, note); err != nil {
			result.Failed = append(result.Failed, BulkStatusFailure{OrderID: orderID, Reason: err.Error()})
			continue
		}
		result.Updated = append(result.Updated, orderID)
	}
	return result, nil
}

// advanceFarmerItems moves every one of the farmer's items on the order that
// is still behind the target status, then auto-advances the order itself.
func (s *Service) advanceFarmerItems(ctx context.Context, farmerID, orderID uuid.UUID, to enums.FulfillmentStatus, note *string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.PaymentStatus != enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid yet")
		}

		items, err := repo.ListFarmerItems(ctx, orderID, farmerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load farmer items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeForbidden, "no items for this farmer on the order")
		}

		now := time.Now()
		advanced := 0
		for i := range items {
			item := &items[i]
			if to.Rank() <= item.FulfillmentStatus.Rank() {
				continue
			}
			if err := repo.UpdateItem(ctx, item.ID, fulfillmentStamps(item, to, nil, now)); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order item")
			}
			advanced++
		}
		if advanced == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "fulfillment status cannot move backwards").
				WithDetails(map[string]any{"requested": to})
		}

		return s.autoAdvanceOrder(ctx, tx, order, farmerID, note)
	})
}

// fulfillmentStamps builds the column map for one item-level fulfillment move.
func fulfillmentStamps(item *models.OrderItem, to enums.FulfillmentStatus, tracking *string, now time.Time) map[string]any {
	updates := map[string]any{"fulfillment_status": to}
	switch to {
	case enums.FulfillmentStatusShipped:
		updates["shipped_at"] = now
		if tracking != nil {
			updates["tracking_number"] = *tracking
		}
	case enums.FulfillmentStatusDelivered:
		updates["delivered_at"] = now
		if item.ShippedAt == nil {
			updates["shipped_at"] = now
		}
	}
	return updates
}

// autoAdvanceOrder reloads the order's items inside the transaction and walks
// the order forward when their fulfillment states agree on a later status.
func (s *Service) autoAdvanceOrder(ctx context.Context, tx *gorm.DB, order *models.Order, farmerID uuid.UUID, note *string) error {
	repo := s.repo.WithTx(tx)
	items, err := repo.ListItems(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order items")
	}
	statuses := make([]enums.FulfillmentStatus, 0, len(items))
	for _, it := range items {
		statuses = append(statuses, it.FulfillmentStatus)
	}
	next, ok := DeriveOrderStatus(statuses, order.Status)
	if !ok {
		return nil
	}
	actor := Actor{UserID: farmerID, Role: enums.UserRoleFarmer}
	for _, step := range AdvancePath(order.Status, next) {
		if _, err := s.transition(ctx, tx, order, step, actor, note); err != nil {
			return err
		}
	}
	return nil
}

// GenerateShippingLabel issues a tracking number for the farmer's unshipped
// items on a paid order and stamps it on them.
func (s *Service) GenerateShippingLabel(ctx context.Context, farmerID, orderID uuid.UUID) (*ShippingLabel, error) {
	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid yet")
	}

	items, err := s.repo.ListFarmerItems(ctx, orderID, farmerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load farmer items")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no items for this farmer on the order")
	}

	tracking := generateTrackingNumber()
	eta := time.Now().AddDate(0, 0, 5)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		for _, item := range items {
			if item.FulfillmentStatus != enums.FulfillmentStatusPending || item.TrackingNumber != nil {
				continue
			}
			if err := repo.UpdateItem(ctx, item.ID, map[string]any{"tracking_number": tracking}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp tracking number")
			}
		}
		// The order carries the latest label's tracking number and ETA.
		updates := map[string]any{
			"tracking_number":    tracking,
			"estimated_delivery": eta,
		}
		if err := repo.Update(ctx, orderID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp order tracking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ShippingLabel{
		OrderID:           orderID,
		TrackingNumber:    tracking,
		Carrier:           "FarmFresh Ground",
		EstimatedDelivery: eta,
	}, nil
}

// GetFarmerOrderAnalytics aggregates the farmer's revenue and breakdowns.
// Revenue counts only items on orders that were not cancelled or refunded.
func (s *Service) GetFarmerOrderAnalytics(ctx context.Context, farmerID uuid.UUID, from, to *time.Time) (*FarmerAnalytics, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "analytics window end precedes start")
	}

	rows, err := s.repo.FarmerItemStats(ctx, farmerID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load farmer stats")
	}

	analytics := &FarmerAnalytics{
		TotalRevenue:         decimal.Zero,
		AverageOrderValue:    decimal.Zero,
		StatusBreakdown:      map[enums.OrderStatus]int64{},
		FulfillmentBreakdown: map[enums.FulfillmentStatus]int64{},
		From:                 from,
		To:                   to,
	}

	orderTotals := map[uuid.UUID]decimal.Decimal{}
	orderStatus := map[uuid.UUID]enums.OrderStatus{}
	for _, row := range rows {
		analytics.FulfillmentBreakdown[row.FulfillmentStatus]++
		orderStatus[row.OrderID] = row.OrderStatus
		if row.OrderStatus == enums.OrderStatusCancelled || row.OrderStatus == enums.OrderStatusRefunded {
			continue
		}
		lineTotal, err := decimal.NewFromString(row.LineTotal)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse line total")
		}
		orderTotals[row.OrderID] = orderTotals[row.OrderID].Add(lineTotal)
	}
	for _, status := range orderStatus {
		analytics.StatusBreakdown[status]++
	}
	analytics.TotalOrders = int64(len(orderStatus))
	for _, total := range orderTotals {
		analytics.TotalRevenue = analytics.TotalRevenue.Add(total)
	}
	if len(orderTotals) > 0 {
		analytics.AverageOrderValue = analytics.TotalRevenue.
			Div(decimal.NewFromInt(int64(len(orderTotals)))).Round(2)
	}
	return analytics, nil
}

// Cancel stops a pre-shipment order. Stock is released only when payment
// already decremented it. Refunding money is the payment service's job.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*OrderDTO, error) {
	var updated *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !CanTransition(order.Status, enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]any{"status": order.Status})
		}

		stockReleased := false
		if order.PaymentStatus == enums.PaymentStatusPaid {
			adjuster := s.adjuster.Bind(tx)
			for _, item := range order.Items {
				if item.ProductID == nil {
					continue
				}
				adj := catalog.StockAdjustment{
					ProductID:  *item.ProductID,
					Delta:      item.Quantity,
					ChangeType: enums.InventoryChangeRelease,
					OrderID:    &order.ID,
					ActorID:    &actor.UserID,
				}
				if err := adjuster.Adjust(ctx, adj); err != nil {
					return err
				}
			}
			stockReleased = true
		}

		now := time.Now()
		updates := map[string]any{
			"status":              enums.OrderStatusCancelled,
			"cancelled_at":        now,
			"cancellation_reason": reason,
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		from := order.Status
		history := &models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: &from,
			ToStatus:   enums.OrderStatusCancelled,
			ActorID:    actorID(actor),
			Note:       &reason,
		}
		if err := repo.InsertStatusHistory(ctx, history); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation")
		}

		err = s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actor.ref(),
			Data: payloads.OrderCancelledEvent{
				OrderID:       order.ID,
				BuyerID:       order.BuyerID,
				CancelledAt:   now,
				Reason:        reason,
				StockReleased: stockReleased,
			},
		})
		if err != nil {
			return err
		}

		order.Status = enums.OrderStatusCancelled
		order.CancelledAt = &now
		order.CancelReason = &reason
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "order_id", orderID), "order cancelled")
	return orderFromModel(updated), nil
}

// transition applies one legal status change plus its history row inside the
// caller's transaction and mutates the passed order in place.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, actor Actor, note *string) (*models.Order, error) {
	if !CanTransition(order.Status, to) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "illegal order transition").
			WithDetails(map[string]any{"from": order.Status, "to": to})
	}

	repo := s.repo.WithTx(tx)
	updates := map[string]any{"status": to}
	now := time.Now()
	if to == enums.OrderStatusDelivered {
		updates["delivered_at"] = now
	}
	if err := repo.Update(ctx, order.ID, updates); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}

	from := order.Status
	history := &models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: &from,
		ToStatus:   to,
		ActorID:    actorID(actor),
		Note:       note,
	}
	if err := repo.InsertStatusHistory(ctx, history); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record status change")
	}

	err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor.ref(),
		Data: payloads.OrderStateChangedEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			FromStatus: from,
			ToStatus:   to,
		},
	})
	if err != nil {
		return nil, err
	}

	order.Status = to
	if to == enums.OrderStatusDelivered {
		order.DeliveredAt = &now
	}
	return order, nil
}

func (s *Service) loadOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func toOrderList(rows []models.Order, next string) *OrderList {
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		list.Orders = append(list.Orders, *orderFromModel(&rows[i]))
	}
	return list
}

func actorID(actor Actor) *uuid.UUID {
	if actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

func generateOrderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("FF-%s-%s", time.Now().UTC().Format("20060102"), suffix)
}

func generateTrackingNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return "FFG" + suffix
}
