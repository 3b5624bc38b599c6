package orders

import (
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
)

// orderTransitions is the explicit legality table. Anything not listed is
// rejected, including self-transitions. Delivered, cancelled, and refunded
// are terminal.
var orderTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled, enums.OrderStatusRefunded},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered, enums.OrderStatusRefunded},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// autoAdvanceRank orders the statuses an order can auto-advance through.
var autoAdvanceRank = map[enums.OrderStatus]int{
	enums.OrderStatusConfirmed:  0,
	enums.OrderStatusProcessing: 1,
	enums.OrderStatusShipped:    2,
	enums.OrderStatusDelivered:  3,
}

// DeriveOrderStatus computes the order status implied by its item
// fulfillment states. It is pure: callers pass the item statuses loaded
// inside their transaction. The second return is false when no advance
// applies. Pending orders never auto-advance; payment confirmation owns
// that transition. Terminal and cancelled orders are left alone.
func DeriveOrderStatus(itemStatuses []enums.FulfillmentStatus, current enums.OrderStatus) (enums.OrderStatus, bool) {
	currentRank, eligible := autoAdvanceRank[current]
	if !eligible || len(itemStatuses) == 0 {
		return current, false
	}

	allDelivered := true
	allShipped := true
	anyMoved := false
	for _, status := range itemStatuses {
		switch status {
		case enums.FulfillmentStatusDelivered:
			anyMoved = true
		case enums.FulfillmentStatusShipped:
			allDelivered = false
			anyMoved = true
		default:
			allDelivered = false
			allShipped = false
		}
	}

	target := current
	switch {
	case allDelivered:
		target = enums.OrderStatusDelivered
	case allShipped:
		target = enums.OrderStatusShipped
	case anyMoved:
		target = enums.OrderStatusProcessing
	}

	if autoAdvanceRank[target] <= currentRank {
		return current, false
	}
	return target, true
}

// autoAdvanceChain lists the auto-advance statuses in rank order.
var autoAdvanceChain = []enums.OrderStatus{
	enums.OrderStatusConfirmed,
	enums.OrderStatusProcessing,
	enums.OrderStatusShipped,
	enums.OrderStatusDelivered,
}

// AdvancePath returns the statuses between from and to on the auto-advance
// chain, exclusive of from and inclusive of to. A single item shipment can
// imply a jump of more than one step; walking the path keeps every hop legal
// and leaves a complete audit trail. Nil when no forward path exists.
func AdvancePath(from, to enums.OrderStatus) []enums.OrderStatus {
	fromRank, ok := autoAdvanceRank[from]
	if !ok {
		return nil
	}
	toRank, ok := autoAdvanceRank[to]
	if !ok || toRank <= fromRank {
		return nil
	}
	return autoAdvanceChain[fromRank+1 : toRank+1]
}
