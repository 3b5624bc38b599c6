package enums

import "fmt"

// FulfillmentStatus tracks per-item shipping progress, distinct from the
// order-level status.
type FulfillmentStatus string

const (
	FulfillmentStatusPending   FulfillmentStatus = "pending"
	FulfillmentStatusShipped   FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered FulfillmentStatus = "delivered"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPending,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
}

// String implements fmt.Stringer.
func (f FulfillmentStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (f FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// Rank orders fulfillment progress so transitions can be checked for
// monotonicity.
func (f FulfillmentStatus) Rank() int {
	switch f {
	case FulfillmentStatusPending:
		return 0
	case FulfillmentStatusShipped:
		return 1
	case FulfillmentStatusDelivered:
		return 2
	default:
		return -1
	}
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}
