package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/notify"
	"github.com/koinonia/backend/internal/permissions"
	"gorm.io/gorm"
)

// ReactionService owns the server side of the reaction and pin protocols.
// The unique index on (message, user, emoji) is the sole at-most-once
// guarantee across clients; a duplicate insert or a missing delete is an
// acceptable outcome of a toggle race, not an error.
type ReactionService struct {
	DB     *gorm.DB
	Events notify.Publisher
}

func NewReactionService(db *gorm.DB, events notify.Publisher) *ReactionService {
	if events == nil {
		events = notify.Noop{}
	}
	return &ReactionService{DB: db, Events: events}
}

type ToggleResult struct {
	Added    bool             `json:"added"`
	Reaction *models.Reaction `json:"reaction,omitempty"`
}

// Toggle adds the (message, user, emoji) tuple when absent and removes it
// when present.
func (s *ReactionService) Toggle(ctx context.Context, messageID, userID uuid.UUID, emoji string) (*ToggleResult, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, invalid("emoji", "is required")
	}

	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := requirePermission(ctx, s.DB, message.GroupID, userID, permissions.PermReact); err != nil {
		return nil, err
	}

	var result ToggleResult
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Reaction
		err := tx.First(&existing, "message_id = ? AND user_id = ? AND emoji = ?", message.ID, userID, emoji).Error
		switch {
		case err == nil:
			// removing a row someone else already removed is still a removal
			if err := tx.Delete(&models.Reaction{}, "id = ?", existing.ID).Error; err != nil {
				return err
			}
			result = ToggleResult{Added: false}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			reaction := models.Reaction{MessageID: message.ID, UserID: userID, Emoji: emoji}
			if err := tx.Create(&reaction).Error; err != nil {
				var raced models.Reaction
				if tx.First(&raced, "message_id = ? AND user_id = ? AND emoji = ?", message.ID, userID, emoji).Error == nil {
					result = ToggleResult{Added: true, Reaction: &raced}
					return nil
				}
				return err
			}
			result = ToggleResult{Added: true, Reaction: &reaction}
			return nil
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}

	s.Events.Publish(ctx, notify.ChangeEvent{
		Kind:     notify.KindReaction,
		GroupID:  message.GroupID,
		EntityID: message.ID,
	})
	return &result, nil
}

// ListForMessage is the authoritative reaction set reconciliation fetches.
func (s *ReactionService) ListForMessage(ctx context.Context, messageID uuid.UUID) ([]models.Reaction, error) {
	if _, err := s.getMessage(ctx, messageID); err != nil {
		return nil, err
	}
	var reactions []models.Reaction
	err := s.DB.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("created_at ASC").
		Find(&reactions).Error
	return reactions, err
}

// Pin marks a message pinned in its group. Pinning an already-pinned message
// is a no-op.
func (s *ReactionService) Pin(ctx context.Context, messageID, actorID uuid.UUID) (*models.PinnedMessage, error) {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := requirePermission(ctx, s.DB, message.GroupID, actorID, permissions.PermPinMessages); err != nil {
		return nil, err
	}

	var existing models.PinnedMessage
	err = s.DB.WithContext(ctx).First(&existing, "message_id = ?", message.ID).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	pin := models.PinnedMessage{
		MessageID: message.ID,
		GroupID:   message.GroupID,
		PinnedBy:  actorID,
		PinnedAt:  time.Now().UTC(),
	}
	if err := s.DB.WithContext(ctx).Create(&pin).Error; err != nil {
		var raced models.PinnedMessage
		if s.DB.WithContext(ctx).First(&raced, "message_id = ?", message.ID).Error == nil {
			return &raced, nil
		}
		return nil, err
	}

	s.Events.Publish(ctx, notify.ChangeEvent{
		Kind:     notify.KindPin,
		GroupID:  message.GroupID,
		EntityID: message.ID,
	})
	return &pin, nil
}

// Unpin removes the marker only; the message itself is untouched. Unpinning
// a message that is not pinned is a no-op.
func (s *ReactionService) Unpin(ctx context.Context, messageID, actorID uuid.UUID) error {
	message, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if _, err := requirePermission(ctx, s.DB, message.GroupID, actorID, permissions.PermPinMessages); err != nil {
		return err
	}

	if err := s.DB.WithContext(ctx).
		Delete(&models.PinnedMessage{}, "message_id = ?", message.ID).Error; err != nil {
		return err
	}

	s.Events.Publish(ctx, notify.ChangeEvent{
		Kind:     notify.KindPin,
		GroupID:  message.GroupID,
		EntityID: message.ID,
	})
	return nil
}

func (s *ReactionService) PinnedList(ctx context.Context, groupID, actorID uuid.UUID) ([]models.PinnedMessage, error) {
	if _, err := membershipOf(ctx, s.DB, groupID, actorID); err != nil {
		return nil, err
	}
	var pins []models.PinnedMessage
	err := s.DB.WithContext(ctx).
		Preload("Message").
		Where("group_id = ?", groupID).
		Order("pinned_at DESC").
		Find(&pins).Error
	return pins, err
}

func (s *ReactionService) getMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := s.DB.WithContext(ctx).First(&message, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &message, nil
}
