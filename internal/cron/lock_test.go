package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubLockStore struct {
	values map[string]string
	dels   []string
}

func newStubLockStore() *stubLockStore {
	return &stubLockStore{values: map[string]string{}}
}

func (s *stubLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value.(string)
	return true, nil
}

func (s *stubLockStore) Get(_ context.Context, key string) (string, error) {
	value, ok := s.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (s *stubLockStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.values, key)
		s.dels = append(s.dels, key)
	}
	return nil
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	t.Parallel()

	store := newStubLockStore()
	lock, err := NewRedisLock(store, "ff:cron-worker:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("setup lock: %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !ok {
		t.Fatal("expected to win the lock")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if len(store.dels) != 1 {
		t.Fatalf("lock key deleted %d times", len(store.dels))
	}
}

func TestRedisLockContention(t *testing.T) {
	t.Parallel()

	store := newStubLockStore()
	first, err := NewRedisLock(store, "ff:cron-worker:lock:contended", time.Minute)
	if err != nil {
		t.Fatalf("setup first lock: %v", err)
	}
	second, err := NewRedisLock(store, "ff:cron-worker:lock:contended", time.Minute)
	if err != nil {
		t.Fatalf("setup second lock: %v", err)
	}

	if ok, _ := first.Acquire(context.Background()); !ok {
		t.Fatal("first acquire lost")
	}
	if ok, _ := second.Acquire(context.Background()); ok {
		t.Fatal("second acquire should lose while held")
	}

	// The loser must not free the winner's lock.
	if err := second.Release(context.Background()); err != nil {
		t.Fatalf("loser release: %v", err)
	}
	if len(store.dels) != 0 {
		t.Fatal("loser deleted the winner's lock")
	}

	if err := first.Release(context.Background()); err != nil {
		t.Fatalf("winner release: %v", err)
	}
	if ok, _ := second.Acquire(context.Background()); !ok {
		t.Fatal("lock not reacquirable after release")
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	t.Parallel()

	store := newStubLockStore()
	lock, err := NewRedisLock(store, "ff:cron-worker:lock:expired", time.Minute)
	if err != nil {
		t.Fatalf("setup lock: %v", err)
	}
	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("acquire lost")
	}

	// Simulate TTL expiry plus takeover by another instance.
	delete(store.values, "ff:cron-worker:lock:expired")
	store.values["ff:cron-worker:lock:expired"] = "someone-else"

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, held := store.values["ff:cron-worker:lock:expired"]; !held {
		t.Fatal("released a lock owned by another instance")
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewRedisLock(nil, "key", time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(newStubLockStore(), "", time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
}
