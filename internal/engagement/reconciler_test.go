package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/notify"
)

func TestReconcilerHandlesReactionEvents(t *testing.T) {
	reactionRemote := newFakeReactionRemote()
	pinRemote := newFakePinRemote()
	reactions := NewReactionCache(reactionRemote, nil)
	pins := NewPinCache(pinRemote)

	messageID := uuid.New()
	userID := uuid.New()
	if _, err := reactions.Toggle(context.Background(), messageID, userID, "🙏"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// moderator removed the reaction server-side
	delete(reactionRemote.tuples, reactionRemote.key(messageID, userID, "🙏"))

	events := make(chan notify.ChangeEvent, 1)
	events <- notify.ChangeEvent{Kind: notify.KindReaction, EntityID: messageID}
	close(events)

	NewReconciler(reactions, pins).Run(context.Background(), events)

	if got := len(reactions.Reactions(messageID)); got != 0 {
		t.Fatalf("reaction event should trigger a reconcile, got %d records", got)
	}
}

func TestReconcilerHandlesPinEvents(t *testing.T) {
	reactions := NewReactionCache(newFakeReactionRemote(), nil)
	pinRemote := newFakePinRemote()
	pins := NewPinCache(pinRemote)

	groupID := uuid.New()
	messageID := uuid.New()
	pinRemote.pinned[messageID] = PinRecord{MessageID: messageID, PinnedAt: time.Now()}

	events := make(chan notify.ChangeEvent, 1)
	events <- notify.ChangeEvent{Kind: notify.KindPin, GroupID: groupID, EntityID: messageID}
	close(events)

	NewReconciler(reactions, pins).Run(context.Background(), events)

	if !pins.Pinned(messageID) {
		t.Error("pin event should refresh the pinned set")
	}
}

func TestReconcilerStopsOnContextCancel(t *testing.T) {
	reactions := NewReactionCache(newFakeReactionRemote(), nil)
	pins := NewPinCache(newFakePinRemote())

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan notify.ChangeEvent)

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewReconciler(reactions, pins).Run(ctx, events)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop on cancel")
	}
}
