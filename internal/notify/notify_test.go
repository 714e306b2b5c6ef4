package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
)

func TestRedisBrokerRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	broker, err := NewRedisBroker(redis.Addr(), "", "test:changes")
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := broker.Subscribe(ctx)

	// give the subscriber a moment to register before publishing
	time.Sleep(50 * time.Millisecond)

	want := ChangeEvent{
		Kind:       KindReaction,
		GroupID:    uuid.New(),
		EntityID:   uuid.New(),
		OccurredAt: time.Now().UTC().Truncate(time.Second),
	}
	broker.Publish(ctx, want)

	select {
	case got := <-events:
		if got.Kind != want.Kind || got.EntityID != want.EntityID || got.GroupID != want.GroupID {
			t.Fatalf("received event %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestRedisBrokerSubscribeStopsOnCancel(t *testing.T) {
	redis := miniredis.RunT(t)
	broker, err := NewRedisBroker(redis.Addr(), "", "test:changes")
	if err != nil {
		t.Fatalf("new broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := broker.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestNewRedisBrokerRequiresAddr(t *testing.T) {
	if _, err := NewRedisBroker("", "", "test:changes"); err == nil {
		t.Fatal("expected constructor error for empty redis addr")
	}
}
