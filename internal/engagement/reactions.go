package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/ratelimit"
)

// ReactionRecord is one cached (message, user, emoji) tuple. Pending marks
// an optimistic addition whose authoritative id has not arrived yet.
type ReactionRecord struct {
	ID        uuid.UUID
	MessageID uuid.UUID
	UserID    uuid.UUID
	Emoji     string
	Pending   bool
}

// ReactionRemote is the persistence collaborator surface the cache needs.
// Add returns the authoritative id of the created tuple. Implementations
// return ErrAlreadyExists / ErrNotFound for toggle races.
type ReactionRemote interface {
	AddReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (uuid.UUID, error)
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) error
	FetchReactions(ctx context.Context, messageID uuid.UUID) ([]ReactionRecord, error)
}

// ReactionCache owns the reaction state for one view (a chat or group
// screen). Nothing else mutates it; the view discards the whole cache when
// it closes.
type ReactionCache struct {
	remote ReactionRemote
	guard  *ratelimit.SlidingWindowGuard

	mu        sync.Mutex
	byMessage map[uuid.UUID][]ReactionRecord
	inFlight  map[string]struct{}
}

func NewReactionCache(remote ReactionRemote, guard *ratelimit.SlidingWindowGuard) *ReactionCache {
	return &ReactionCache{
		remote:    remote,
		guard:     guard,
		byMessage: make(map[uuid.UUID][]ReactionRecord),
		inFlight:  make(map[string]struct{}),
	}
}

func toggleKey(messageID, userID uuid.UUID, emoji string) string {
	return fmt.Sprintf("%s|%s|%s", messageID, userID, emoji)
}

// Reactions returns the cached tuples for one message.
func (c *ReactionCache) Reactions(messageID uuid.UUID) []ReactionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := c.byMessage[messageID]
	out := make([]ReactionRecord, len(cached))
	copy(out, cached)
	return out
}

// Toggle flips the tuple optimistically, then confirms with the remote.
// It reports whether the tuple ended up present. A failed remote call
// restores the cache to its pre-toggle state and returns the error.
func (c *ReactionCache) Toggle(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	if c.guard != nil && !c.guard.Allow("reaction_toggle") {
		return false, ErrRateLimited
	}

	key := toggleKey(messageID, userID, emoji)

	c.mu.Lock()
	if _, busy := c.inFlight[key]; busy {
		c.mu.Unlock()
		return false, ErrToggleInFlight
	}
	c.inFlight[key] = struct{}{}

	existing, found := c.lookupLocked(messageID, userID, emoji)
	if found {
		c.removeLocked(messageID, existing.ID)
		c.mu.Unlock()
		err := c.confirmRemoval(ctx, messageID, userID, emoji, existing)
		c.clearInFlight(key)
		return false, err
	}

	provisional := ReactionRecord{
		ID:        uuid.New(),
		MessageID: messageID,
		UserID:    userID,
		Emoji:     emoji,
		Pending:   true,
	}
	c.byMessage[messageID] = append(c.byMessage[messageID], provisional)
	c.mu.Unlock()

	err := c.confirmAddition(ctx, messageID, userID, emoji, provisional.ID)
	c.clearInFlight(key)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *ReactionCache) confirmRemoval(ctx context.Context, messageID, userID uuid.UUID, emoji string, removed ReactionRecord) error {
	err := c.remote.RemoveReaction(ctx, messageID, userID, emoji)
	if err == nil || errors.Is(err, ErrNotFound) {
		// another actor removed it first; the tuple is gone either way
		return nil
	}

	c.mu.Lock()
	if _, present := c.lookupLocked(messageID, userID, emoji); !present {
		c.byMessage[messageID] = append(c.byMessage[messageID], removed)
	}
	c.mu.Unlock()
	return err
}

func (c *ReactionCache) confirmAddition(ctx context.Context, messageID, userID uuid.UUID, emoji string, provisionalID uuid.UUID) error {
	authoritativeID, err := c.remote.AddReaction(ctx, messageID, userID, emoji)
	if err != nil && !errors.Is(err, ErrAlreadyExists) {
		c.mu.Lock()
		c.removeLocked(messageID, provisionalID)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if errors.Is(err, ErrAlreadyExists) {
		// the remote tuple exists but its id is unknown; the next
		// reconciliation pass settles it
		if record, found := c.lookupLocked(messageID, userID, emoji); found {
			c.updateLocked(messageID, record.ID, func(r *ReactionRecord) { r.Pending = false })
		}
		return nil
	}

	if _, found := c.lookupLocked(messageID, userID, emoji); found {
		c.updateLocked(messageID, provisionalID, func(r *ReactionRecord) {
			r.ID = authoritativeID
			r.Pending = false
		})
	} else {
		// a reconciliation pass replaced this message's slice mid-flight;
		// re-assert the confirmed tuple
		c.byMessage[messageID] = append(c.byMessage[messageID], ReactionRecord{
			ID:        authoritativeID,
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
		})
	}
	return nil
}

// Reconcile fetches the authoritative reaction list for one message and
// replaces only that message's cached slice. A cancelled context discards
// the results instead of applying them to a cache the view no longer owns.
func (c *ReactionCache) Reconcile(ctx context.Context, messageID uuid.UUID) error {
	authoritative, err := c.remote.FetchReactions(ctx, messageID)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	replacement := make([]ReactionRecord, 0, len(authoritative))
	for _, record := range authoritative {
		record.MessageID = messageID
		record.Pending = false
		replacement = append(replacement, record)
	}
	// in-flight optimistic tuples for this message survive the replace;
	// their confirmation step settles them against the remote
	for _, record := range c.byMessage[messageID] {
		if record.Pending && !containsTuple(replacement, record.UserID, record.Emoji) {
			replacement = append(replacement, record)
		}
	}
	c.byMessage[messageID] = replacement
	return nil
}

func containsTuple(records []ReactionRecord, userID uuid.UUID, emoji string) bool {
	for _, record := range records {
		if record.UserID == userID && record.Emoji == emoji {
			return true
		}
	}
	return false
}

func (c *ReactionCache) lookupLocked(messageID, userID uuid.UUID, emoji string) (ReactionRecord, bool) {
	for _, record := range c.byMessage[messageID] {
		if record.UserID == userID && record.Emoji == emoji {
			return record, true
		}
	}
	return ReactionRecord{}, false
}

func (c *ReactionCache) removeLocked(messageID, id uuid.UUID) {
	cached := c.byMessage[messageID]
	for i, record := range cached {
		if record.ID == id {
			c.byMessage[messageID] = append(cached[:i], cached[i+1:]...)
			return
		}
	}
}

func (c *ReactionCache) updateLocked(messageID, id uuid.UUID, apply func(*ReactionRecord)) {
	cached := c.byMessage[messageID]
	for i := range cached {
		if cached[i].ID == id {
			apply(&cached[i])
			return
		}
	}
}

func (c *ReactionCache) clearInFlight(key string) {
	c.mu.Lock()
	delete(c.inFlight, key)
	c.mu.Unlock()
}
