package payments

import (
	"context"
	"testing"
	"time"
)

type stubIdempotencyStore struct {
	seen    map[string]string
	deleted []string
}

func newStubIdempotencyStore() *stubIdempotencyStore {
	return &stubIdempotencyStore{seen: map[string]string{}}
}

func (s *stubIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	return s.seen[key], nil
}

func (s *stubIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = "marked"
	return true, nil
}

func (s *stubIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "ff:idempotency:" + scope + ":" + id
}

func (s *stubIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.seen, key)
		s.deleted = append(s.deleted, key)
	}
	return nil
}

func TestGuardCheckAndMark(t *testing.T) {
	t.Parallel()

	guard, err := NewGuard(newStubIdempotencyStore(), time.Hour)
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}

	replay, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if replay {
		t.Fatal("first delivery flagged as replay")
	}

	replay, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if !replay {
		t.Fatal("redelivery not flagged as replay")
	}
}

func TestGuardDeleteAllowsRetry(t *testing.T) {
	t.Parallel()

	store := newStubIdempotencyStore()
	guard, err := NewGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}

	if _, err := guard.CheckAndMark(context.Background(), "evt_2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := guard.Delete(context.Background(), "evt_2"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	replay, err := guard.CheckAndMark(context.Background(), "evt_2")
	if err != nil {
		t.Fatalf("re-check: %v", err)
	}
	if replay {
		t.Fatal("event still marked after delete")
	}
}

func TestGuardRejectsEmptyEventID(t *testing.T) {
	t.Parallel()

	guard, err := NewGuard(newStubIdempotencyStore(), time.Hour)
	if err != nil {
		t.Fatalf("setup guard: %v", err)
	}
	if _, err := guard.CheckAndMark(context.Background(), "  "); err == nil {
		t.Fatal("expected error for blank event id")
	}
}

func TestNewGuardValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewGuard(nil, time.Hour); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := NewGuard(newStubIdempotencyStore(), 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
