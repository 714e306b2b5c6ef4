// Package notify carries change events from the write path to listening
// clients. Every mutation of announcements, reactions, and pins publishes an
// event naming the entity that changed, so a subscriber can re-fetch exactly
// the slice of state the event is about.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koinonia/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type EventKind string

const (
	KindAnnouncement EventKind = "announcement"
	KindReaction     EventKind = "reaction"
	KindPin          EventKind = "pin"
	KindRSVP         EventKind = "rsvp"
)

// ChangeEvent identifies one changed entity. EntityID is the announcement id
// for announcement events, the message id for reaction and pin events, and
// the event id for RSVP events.
type ChangeEvent struct {
	Kind       EventKind `json:"kind"`
	GroupID    uuid.UUID `json:"groupID"`
	EntityID   uuid.UUID `json:"entityID"`
	BypassMute bool      `json:"bypassMute,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event ChangeEvent)
}

// Noop drops every event. Used where no broker is configured, and in tests
// that do not exercise reconciliation.
type Noop struct{}

func (Noop) Publish(context.Context, ChangeEvent) {}

type RedisBroker struct {
	client  *redis.Client
	channel string
}

func NewRedisBroker(addr, password, channel string) (*RedisBroker, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errEmptyAddr
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "koinonia:changes"
	}
	return &RedisBroker{
		client:  redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		channel: channel,
	}, nil
}

// Publish is best-effort: a broker outage must never fail the mutation that
// triggered the event, so errors are logged and swallowed.
func (b *RedisBroker) Publish(ctx context.Context, event ChangeEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("notify_marshal_failed", err, map[string]interface{}{
			"kind":      string(event.Kind),
			"entity_id": event.EntityID.String(),
		})
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		logger.Error("notify_publish_failed", err, map[string]interface{}{
			"kind":      string(event.Kind),
			"entity_id": event.EntityID.String(),
		})
	}
}

// Subscribe delivers change events until ctx is cancelled. Malformed
// payloads are skipped.
func (b *RedisBroker) Subscribe(ctx context.Context) <-chan ChangeEvent {
	sub := b.client.Subscribe(ctx, b.channel)
	out := make(chan ChangeEvent)

	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Warn("notify_unmarshal_failed", map[string]interface{}{
						"error": err.Error(),
					})
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

var errEmptyAddr = redisAddrError{}

type redisAddrError struct{}

func (redisAddrError) Error() string { return "notify broker redis addr is required" }
