package engagement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/permissions"
)

// PinRecord mirrors a pinned-message marker in the view's cache.
type PinRecord struct {
	MessageID uuid.UUID
	PinnedBy  uuid.UUID
	PinnedAt  time.Time
}

type PinRemote interface {
	PinMessage(ctx context.Context, messageID uuid.UUID) error
	UnpinMessage(ctx context.Context, messageID uuid.UUID) error
	FetchPins(ctx context.Context, groupID uuid.UUID) ([]PinRecord, error)
}

// Actor is the current session's standing in the group, supplied by the
// identity collaborator. The engine checks permissions locally before any
// remote call; raw role strings must be normalized before they get here.
type Actor struct {
	UserID     uuid.UUID
	Role       models.Role
	CustomRole *models.CustomRole
}

// PinCache owns the pinned set for one group view.
type PinCache struct {
	remote PinRemote

	mu   sync.Mutex
	pins map[uuid.UUID]PinRecord
}

func NewPinCache(remote PinRemote) *PinCache {
	return &PinCache{remote: remote, pins: make(map[uuid.UUID]PinRecord)}
}

func (c *PinCache) Pinned(messageID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pins[messageID]
	return ok
}

// Pins returns the cached pinned set, most recent first.
func (c *PinCache) Pins() []PinRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PinRecord, 0, len(c.pins))
	for _, record := range c.pins {
		out = append(out, record)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].PinnedAt.After(out[i].PinnedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Pin marks a message pinned optimistically. Pinning an already-pinned
// message is a no-op without a round trip.
func (c *PinCache) Pin(ctx context.Context, actor Actor, messageID uuid.UUID) error {
	if !permissions.Has(actor.Role, permissions.PermPinMessages, actor.CustomRole) {
		return ErrPermissionDenied
	}

	c.mu.Lock()
	if _, ok := c.pins[messageID]; ok {
		c.mu.Unlock()
		return nil
	}
	record := PinRecord{MessageID: messageID, PinnedBy: actor.UserID, PinnedAt: time.Now().UTC()}
	c.pins[messageID] = record
	c.mu.Unlock()

	err := c.remote.PinMessage(ctx, messageID)
	if err == nil || errors.Is(err, ErrAlreadyExists) {
		return nil
	}

	c.mu.Lock()
	delete(c.pins, messageID)
	c.mu.Unlock()
	return err
}

// Unpin removes the marker optimistically and reinstates it on failure.
func (c *PinCache) Unpin(ctx context.Context, actor Actor, messageID uuid.UUID) error {
	if !permissions.Has(actor.Role, permissions.PermPinMessages, actor.CustomRole) {
		return ErrPermissionDenied
	}

	c.mu.Lock()
	record, ok := c.pins[messageID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.pins, messageID)
	c.mu.Unlock()

	err := c.remote.UnpinMessage(ctx, messageID)
	if err == nil || errors.Is(err, ErrNotFound) {
		return nil
	}

	c.mu.Lock()
	c.pins[messageID] = record
	c.mu.Unlock()
	return err
}

// Reconcile replaces the group's pinned set with the authoritative one.
// Cancelled contexts discard the fetch result.
func (c *PinCache) Reconcile(ctx context.Context, groupID uuid.UUID) error {
	authoritative, err := c.remote.FetchPins(ctx, groupID)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins = make(map[uuid.UUID]PinRecord, len(authoritative))
	for _, record := range authoritative {
		c.pins[record.MessageID] = record
	}
	return nil
}
