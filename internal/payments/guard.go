package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/luiscamargo/farmfresh-backend/pkg/redis"
)

const guardScope = "stripe-webhook"

// Guard is the fast-path replay filter for provider webhooks. It is an
// optimization only; the unique index on payment_events plus the
// payment-status conditional update are the correctness barrier.
type Guard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewGuard(store redis.IdempotencyStore, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("guard ttl must be positive")
	}
	return &Guard{store: store, ttl: ttl}, nil
}

// CheckAndMark records the event id and reports whether it was seen before.
func (g *Guard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, fmt.Errorf("event id required")
	}
	key := g.store.IdempotencyKey(guardScope, eventID)
	stored, err := g.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), g.ttl)
	if err != nil {
		return false, err
	}
	return !stored, nil
}

// Delete clears the mark so a failed handler can be retried.
func (g *Guard) Delete(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, eventID))
}
