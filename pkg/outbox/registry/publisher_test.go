package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/luiscamargo/farmfresh-backend/pkg/config"
	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox"
	"github.com/luiscamargo/farmfresh-backend/pkg/outbox/payloads"
)

func testRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		OrdersTopic:        "orders-events",
		NotificationsTopic: "notification-events",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func orderCreatedRow(t *testing.T) models.OutboxEvent {
	t.Helper()
	data, err := json.Marshal(payloads.OrderCreatedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "FF-20260901-0001",
		BuyerID:     uuid.New(),
		FarmerIDs:   []uuid.UUID{uuid.New()},
		Total:       decimal.RequireFromString("42.50"),
		Currency:    enums.CurrencyUSD,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	t.Parallel()

	if _, err := NewEventRegistry(config.PubSubConfig{NotificationsTopic: "n"}); err == nil {
		t.Fatal("expected error for missing orders topic")
	}
	if _, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "o"}); err == nil {
		t.Fatal("expected error for missing notifications topic")
	}
}

func TestResolveDecodesTypedPayload(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	row := orderCreatedRow(t)

	resolved, err := reg.Resolve(row)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "orders-events" {
		t.Fatalf("topic = %s", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	if !ok {
		t.Fatalf("payload type = %T", resolved.Payload)
	}
	if payload.OrderNumber != "FF-20260901-0001" {
		t.Fatalf("order number = %s", payload.OrderNumber)
	}
	if resolved.Envelope.Version != 1 {
		t.Fatalf("envelope version = %d", resolved.Envelope.Version)
	}
}

func TestResolveRoutesNotificationsTopic(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	data, _ := json.Marshal(payloads.ItemShippedEvent{OrderID: uuid.New()})
	envelope, _ := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), Data: data})

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventItemShipped,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Descriptor.Topic != "notification-events" {
		t.Fatalf("topic = %s", resolved.Descriptor.Topic)
	}
}

func TestResolveRejectsMalformedRows(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)

	cases := []struct {
		name   string
		mutate func(*models.OutboxEvent)
	}{
		{"unknown event type", func(e *models.OutboxEvent) { e.EventType = "order_imploded" }},
		{"aggregate mismatch", func(e *models.OutboxEvent) { e.AggregateType = enums.AggregateCart }},
		{"missing aggregate id", func(e *models.OutboxEvent) { e.AggregateID = uuid.Nil }},
		{"malformed envelope", func(e *models.OutboxEvent) { e.Payload = json.RawMessage(`{not json`) }},
		{"null data", func(e *models.OutboxEvent) { e.Payload = json.RawMessage(`{"version":1,"data":null}`) }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			row := orderCreatedRow(t)
			tc.mutate(&row)

			_, err := reg.Resolve(row)
			if err == nil {
				t.Fatal("expected error")
			}
			var nonRetryable NonRetryableError
			if !errors.As(err, &nonRetryable) {
				t.Fatalf("expected non-retryable error, got %v", err)
			}
		})
	}
}
