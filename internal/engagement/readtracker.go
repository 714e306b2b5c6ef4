package engagement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type ReceiptRemote interface {
	MarkRead(ctx context.Context, announcementID uuid.UUID) error
	Acknowledge(ctx context.Context, announcementID uuid.UUID) error
}

// ReadTracker deduplicates read and acknowledgment submissions for one
// user. The mark is recorded in the KV store before the remote call so a
// crash after a successful send cannot produce a second submission; the
// server's uniqueness guarantee covers the opposite ordering.
type ReadTracker struct {
	remote ReceiptRemote
	store  KV
	userID uuid.UUID

	mu sync.Mutex
}

func NewReadTracker(remote ReceiptRemote, store KV, userID uuid.UUID) *ReadTracker {
	return &ReadTracker{remote: remote, store: store, userID: userID}
}

func (t *ReadTracker) readKey(announcementID uuid.UUID) string {
	return fmt.Sprintf("read:%s:%s", t.userID, announcementID)
}

func (t *ReadTracker) ackKey(announcementID uuid.UUID) string {
	return fmt.Sprintf("ack:%s:%s", t.userID, announcementID)
}

// MarkRead submits a read receipt at most once. Repeat calls for the
// same announcement return nil without a round trip.
func (t *ReadTracker) MarkRead(ctx context.Context, announcementID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.readKey(announcementID)
	if _, seen := t.store.Get(key); seen {
		return nil
	}

	t.store.Set(key, "1")
	if err := t.remote.MarkRead(ctx, announcementID); err != nil {
		t.store.Clear(key)
		return err
	}
	return nil
}

// Acknowledge submits an acknowledgment at most once. An acknowledgment
// implies a read, so the read mark is recorded alongside it.
func (t *ReadTracker) Acknowledge(ctx context.Context, announcementID uuid.UUID) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := t.ackKey(announcementID)
	if _, seen := t.store.Get(key); seen {
		return nil
	}

	t.store.Set(key, "1")
	if err := t.remote.Acknowledge(ctx, announcementID); err != nil {
		t.store.Clear(key)
		return err
	}
	t.store.Set(t.readKey(announcementID), "1")
	return nil
}

// Seen reports whether a read receipt was already submitted locally.
func (t *ReadTracker) Seen(announcementID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.store.Get(t.readKey(announcementID))
	return ok
}
