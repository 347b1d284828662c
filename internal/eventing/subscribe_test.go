package eventing

import (
	"context"
	"testing"

	"hydromet-cloud/internal/eventing/eventbus"
)

type memoryProcessedStore struct {
	seen map[string]struct{}
}

func newMemoryProcessedStore() *memoryProcessedStore {
	return &memoryProcessedStore{seen: map[string]struct{}{}}
}

func (s *memoryProcessedStore) HasProcessed(_ context.Context, eventID, consumerName string) (bool, error) {
	_, ok := s.seen[eventID+"|"+consumerName]
	return ok, nil
}

func (s *memoryProcessedStore) MarkProcessed(_ context.Context, eventID, consumerName string) error {
	s.seen[eventID+"|"+consumerName] = struct{}{}
	return nil
}

type testEvent struct {
	StationID string
}

func TestSubscribeDeliversEvents(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	delivered := 0
	Subscribe(bus, eventbus.EventTypeOf[testEvent](), "test.consumer", func(ctx context.Context, event any) error {
		delivered++
		return nil
	}, nil)

	if err := bus.Publish(context.Background(), testEvent{StationID: "st-01"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected 1 delivery, got %d", delivered)
	}
}

func TestWrapHandlerSkipsProcessedEvents(t *testing.T) {
	store := newMemoryProcessedStore()
	delivered := 0
	handler := WrapHandler("test.consumer", func(ctx context.Context, event any) error {
		delivered++
		return nil
	}, store)

	env := Envelope{EventID: "evt-1"}
	ctx := WithEnvelope(context.Background(), env)

	if err := handler(ctx, testEvent{}); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := handler(ctx, testEvent{}); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if delivered != 1 {
		t.Fatalf("expected single delivery, got %d", delivered)
	}
}

func TestWrapHandlerWithoutEnvelopeAlwaysDelivers(t *testing.T) {
	store := newMemoryProcessedStore()
	delivered := 0
	handler := WrapHandler("test.consumer", func(ctx context.Context, event any) error {
		delivered++
		return nil
	}, store)

	for i := 0; i < 2; i++ {
		if err := handler(context.Background(), testEvent{}); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", delivered)
	}
}

func TestBuildEnvelopeExtractsPartitionKey(t *testing.T) {
	env, err := BuildEnvelope(testEvent{StationID: "st-07"}, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.StationID != "st-07" {
		t.Fatalf("expected station st-07, got %q", env.StationID)
	}
	if env.EventID == "" {
		t.Fatal("expected generated event id")
	}
	if env.EventType != eventbus.EventTypeOf[testEvent]() {
		t.Fatalf("unexpected event type %q", env.EventType)
	}
}
