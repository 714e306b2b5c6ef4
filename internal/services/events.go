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
	"github.com/koinonia/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventService creates events and accepts RSVPs under the capacity
// constraint. Capacity is checked at the moment a user transitions to going,
// never reserved ahead of time.
type EventService struct {
	DB     *gorm.DB
	Events notify.Publisher
}

func NewEventService(db *gorm.DB, events notify.Publisher) *EventService {
	if events == nil {
		events = notify.Noop{}
	}
	return &EventService{DB: db, Events: events}
}

type CreateEventInput struct {
	Title            string
	Description      *string
	StartTime        time.Time
	EndTime          *time.Time
	Location         *string
	Recurrence       models.Recurrence
	MaxCapacity      *int
	RemindDayBefore  bool
	RemindHourBefore bool
}

func (s *EventService) Create(ctx context.Context, groupID, creatorID uuid.UUID, input CreateEventInput) (*models.Event, error) {
	if _, err := requirePermission(ctx, s.DB, groupID, creatorID, permissions.PermCreateEvents); err != nil {
		return nil, err
	}

	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, invalid("title", "is required")
	}
	if input.StartTime.IsZero() {
		return nil, invalid("startTime", "is required")
	}
	if input.EndTime != nil && !input.EndTime.After(input.StartTime) {
		return nil, invalid("endTime", "must be after startTime")
	}
	if input.MaxCapacity != nil && *input.MaxCapacity <= 0 {
		return nil, invalid("maxCapacity", "must be a positive integer")
	}
	if input.Recurrence == "" {
		input.Recurrence = models.RecurrenceOnce
	}
	if !input.Recurrence.Valid() {
		return nil, invalid("recurrence", "is not a known recurrence")
	}

	event := models.Event{
		GroupID:          groupID,
		CreatorID:        creatorID,
		Title:            input.Title,
		Description:      input.Description,
		StartTime:        input.StartTime,
		EndTime:          input.EndTime,
		Location:         input.Location,
		Recurrence:       input.Recurrence,
		MaxCapacity:      input.MaxCapacity,
		RemindDayBefore:  input.RemindDayBefore,
		RemindHourBefore: input.RemindHourBefore,
	}
	if err := s.DB.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(creatorID.String(), "event_created", map[string]interface{}{
		"event_id": event.ID.String(),
		"group_id": groupID.String(),
	})
	return &event, nil
}

// RSVP records a user's attendance response, last write wins. A transition
// to going on a capacity-bound event succeeds only while the count of OTHER
// users already going is below the cap, so re-submitting going never double
// counts the caller.
func (s *EventService) RSVP(ctx context.Context, eventID, userID uuid.UUID, status models.RSVPStatus) (*models.RSVP, error) {
	if !status.Valid() {
		return nil, invalid("status", "is not a known rsvp status")
	}

	var result *models.RSVP
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The event row is locked for the life of the transaction so two
		// concurrent going transitions serialize on it; without the lock both
		// would count the same N-1 others and overfill the event. sqlite has
		// no FOR UPDATE and its single writer already serializes the check.
		eventQuery := tx
		if tx.Dialector.Name() == "postgres" {
			eventQuery = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var event models.Event
		if err := eventQuery.First(&event, "id = ?", eventID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if event.IsCancelled {
			return ErrEventCancelled
		}
		if _, err := membershipOf(ctx, tx, event.GroupID, userID); err != nil {
			return err
		}

		if status == models.RSVPGoing && event.MaxCapacity != nil {
			var going int64
			if err := tx.Model(&models.RSVP{}).
				Where("event_id = ? AND status = ? AND user_id <> ?", event.ID, models.RSVPGoing, userID).
				Count(&going).Error; err != nil {
				return err
			}
			if going >= int64(*event.MaxCapacity) {
				return ErrCapacityExceeded
			}
		}

		var rsvp models.RSVP
		err := tx.First(&rsvp, "event_id = ? AND user_id = ?", event.ID, userID).Error
		switch {
		case err == nil:
			if err := tx.Model(&rsvp).Update("status", status).Error; err != nil {
				return err
			}
			rsvp.Status = status
		case errors.Is(err, gorm.ErrRecordNotFound):
			rsvp = models.RSVP{EventID: event.ID, UserID: userID, Status: status}
			if err := tx.Create(&rsvp).Error; err != nil {
				return err
			}
		default:
			return err
		}
		result = &rsvp
		return nil
	})
	if err != nil {
		return nil, err
	}

	var event models.Event
	if s.DB.WithContext(ctx).First(&event, "id = ?", eventID).Error == nil {
		s.Events.Publish(ctx, notify.ChangeEvent{
			Kind:     notify.KindRSVP,
			GroupID:  event.GroupID,
			EntityID: event.ID,
		})
	}
	return result, nil
}

// Cancel is terminal: no further RSVPs are accepted, existing responses stay
// for history. Cancelling twice is a no-op.
func (s *EventService) Cancel(ctx context.Context, eventID, actorID uuid.UUID) (*models.Event, error) {
	var event models.Event
	if err := s.DB.WithContext(ctx).First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if event.CreatorID != actorID {
		if _, err := requirePermission(ctx, s.DB, event.GroupID, actorID, permissions.PermManageGroup); err != nil {
			return nil, err
		}
	} else if _, err := membershipOf(ctx, s.DB, event.GroupID, actorID); err != nil {
		return nil, err
	}

	if event.IsCancelled {
		return &event, nil
	}
	if err := s.DB.WithContext(ctx).Model(&event).Update("is_cancelled", true).Error; err != nil {
		return nil, err
	}
	event.IsCancelled = true

	logger.InfoWithUser(actorID.String(), "event_cancelled", map[string]interface{}{
		"event_id": event.ID.String(),
	})
	return &event, nil
}

func (s *EventService) List(ctx context.Context, groupID, actorID uuid.UUID) ([]models.Event, error) {
	if _, err := membershipOf(ctx, s.DB, groupID, actorID); err != nil {
		return nil, err
	}
	var events []models.Event
	err := s.DB.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("start_time ASC").
		Find(&events).Error
	return events, err
}

// RSVPList groups responses by status for the attendee view.
func (s *EventService) RSVPList(ctx context.Context, eventID, actorID uuid.UUID) (map[models.RSVPStatus][]models.RSVP, error) {
	var event models.Event
	if err := s.DB.WithContext(ctx).First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if _, err := membershipOf(ctx, s.DB, event.GroupID, actorID); err != nil {
		return nil, err
	}

	var rsvps []models.RSVP
	if err := s.DB.WithContext(ctx).
		Preload("User").
		Where("event_id = ?", event.ID).
		Order("updated_at ASC").
		Find(&rsvps).Error; err != nil {
		return nil, err
	}

	grouped := map[models.RSVPStatus][]models.RSVP{
		models.RSVPGoing:    {},
		models.RSVPMaybe:    {},
		models.RSVPNotGoing: {},
	}
	for _, rsvp := range rsvps {
		grouped[rsvp.Status] = append(grouped[rsvp.Status], rsvp)
	}
	return grouped, nil
}
