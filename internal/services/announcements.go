package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/koinonia/backend/internal/models"
	"github.com/koinonia/backend/internal/notify"
	"github.com/koinonia/backend/internal/permissions"
	"github.com/koinonia/backend/pkg/logger"
	"gorm.io/gorm"
)

// AnnouncementService drives the announcement lifecycle:
// draft/scheduled -> published -> deleted. Publication happens either through
// the background sweep, a manual Publish call, or immediately at creation
// when no future schedule is given.
type AnnouncementService struct {
	DB     *gorm.DB
	Events notify.Publisher

	now func() time.Time
}

func NewAnnouncementService(db *gorm.DB, events notify.Publisher) *AnnouncementService {
	if events == nil {
		events = notify.Noop{}
	}
	return &AnnouncementService{DB: db, Events: events, now: time.Now}
}

type CreateAnnouncementInput struct {
	Title         string
	Content       string
	Category      models.AnnouncementCategory
	BypassMute    bool
	ScheduledFor  *time.Time
	CrossGroupIDs []uuid.UUID
}

// Create posts an announcement to a group. With CrossGroupIDs set it also
// writes one independent copy per target group; each copy carries a nil
// cross-group list so copies can never fan out again.
func (s *AnnouncementService) Create(ctx context.Context, groupID, authorID uuid.UUID, input CreateAnnouncementInput) (*models.Announcement, error) {
	if _, err := requirePermission(ctx, s.DB, groupID, authorID, permissions.PermPostAnnouncements); err != nil {
		return nil, err
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Content = strings.TrimSpace(input.Content)
	if input.Title == "" {
		return nil, invalid("title", "is required")
	}
	if input.Content == "" {
		return nil, invalid("content", "is required")
	}
	if input.Category == "" {
		input.Category = models.CategoryInfo
	}
	if !input.Category.Valid() {
		return nil, invalid("category", "is not a known category")
	}

	now := s.now().UTC()
	published := input.ScheduledFor == nil || !input.ScheduledFor.After(now)

	announcement := models.Announcement{
		GroupID:      groupID,
		AuthorID:     authorID,
		Title:        input.Title,
		Content:      input.Content,
		Category:     input.Category,
		BypassMute:   input.BypassMute,
		IsPublished:  published,
		ScheduledFor: input.ScheduledFor,
	}

	if len(input.CrossGroupIDs) > 0 {
		raw, err := json.Marshal(input.CrossGroupIDs)
		if err != nil {
			return nil, err
		}
		announcement.CrossGroupIDs = raw
	}

	copies := make([]*models.Announcement, 0, len(input.CrossGroupIDs))
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&announcement).Error; err != nil {
			return err
		}

		for _, targetID := range input.CrossGroupIDs {
			if targetID == groupID {
				continue
			}
			if _, err := requirePermission(ctx, tx, targetID, authorID, permissions.PermPostAnnouncements); err != nil {
				return err
			}
			copy := models.Announcement{
				GroupID:      targetID,
				AuthorID:     authorID,
				Title:        input.Title,
				Content:      input.Content,
				Category:     input.Category,
				BypassMute:   input.BypassMute,
				IsPublished:  published,
				ScheduledFor: input.ScheduledFor,
			}
			if err := tx.Create(&copy).Error; err != nil {
				return err
			}
			copies = append(copies, &copy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if published {
		s.publishEvent(ctx, &announcement)
		for _, copy := range copies {
			s.publishEvent(ctx, copy)
		}
	}

	logger.InfoWithUser(authorID.String(), "announcement_created", map[string]interface{}{
		"announcement_id": announcement.ID.String(),
		"group_id":        groupID.String(),
		"published":       published,
		"broadcast_count": len(copies),
	})

	return &announcement, nil
}

// ListPublished returns the visible feed for a group, pinned rows first, then
// newest first. A row whose schedule has not elapsed is treated as
// unpublished here regardless of its flag, so sweep lag can never leak it.
func (s *AnnouncementService) ListPublished(ctx context.Context, groupID uuid.UUID) ([]models.Announcement, error) {
	var announcements []models.Announcement
	err := s.DB.WithContext(ctx).
		Where("group_id = ? AND is_published = ?", groupID, true).
		Where("scheduled_for IS NULL OR scheduled_for <= ?", s.now().UTC()).
		Order("is_pinned DESC").
		Order("created_at DESC").
		Find(&announcements).Error
	return announcements, err
}

// ListScheduled is visible only to holders of post-announcements.
func (s *AnnouncementService) ListScheduled(ctx context.Context, groupID, actorID uuid.UUID) ([]models.Announcement, error) {
	if _, err := requirePermission(ctx, s.DB, groupID, actorID, permissions.PermPostAnnouncements); err != nil {
		return nil, err
	}

	var announcements []models.Announcement
	err := s.DB.WithContext(ctx).
		Where("group_id = ? AND is_published = ?", groupID, false).
		Order("scheduled_for ASC").
		Find(&announcements).Error
	return announcements, err
}

// Publish flips a scheduled announcement live ahead of its schedule.
// Publishing an already-published row is a no-op, not an error.
func (s *AnnouncementService) Publish(ctx context.Context, announcementID, actorID uuid.UUID) (*models.Announcement, error) {
	announcement, err := s.get(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if _, err := requirePermission(ctx, s.DB, announcement.GroupID, actorID, permissions.PermPostAnnouncements); err != nil {
		return nil, err
	}
	if announcement.IsPublished {
		return announcement, nil
	}

	now := s.now().UTC()
	err = s.DB.WithContext(ctx).Model(announcement).
		Updates(map[string]interface{}{"is_published": true, "scheduled_for": now}).Error
	if err != nil {
		return nil, err
	}
	announcement.IsPublished = true
	announcement.ScheduledFor = &now

	s.publishEvent(ctx, announcement)
	return announcement, nil
}

// MarkRead records that a user opened an announcement. At most one receipt
// per (announcement, user) exists; repeats and races both leave the read
// counter bumped exactly once.
func (s *AnnouncementService) MarkRead(ctx context.Context, announcementID, userID uuid.UUID) error {
	announcement, err := s.get(ctx, announcementID)
	if err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.createReceipt(tx, announcement.ID, userID)
		if err != nil || !created {
			return err
		}
		return tx.Model(&models.Announcement{}).
			Where("id = ?", announcement.ID).
			Update("read_count", gorm.Expr("read_count + 1")).Error
	})
}

// Acknowledge records an explicit confirmation beyond reading. A user only
// reaches the acknowledge control from the detail view, so a missing receipt
// is backfilled rather than rejected.
func (s *AnnouncementService) Acknowledge(ctx context.Context, announcementID, userID uuid.UUID) error {
	announcement, err := s.get(ctx, announcementID)
	if err != nil {
		return err
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receiptCreated, err := s.createReceipt(tx, announcement.ID, userID)
		if err != nil {
			return err
		}
		if receiptCreated {
			if err := tx.Model(&models.Announcement{}).
				Where("id = ?", announcement.ID).
				Update("read_count", gorm.Expr("read_count + 1")).Error; err != nil {
				return err
			}
		}

		var existing models.Acknowledgment
		err = tx.First(&existing, "announcement_id = ? AND user_id = ?", announcement.ID, userID).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		ack := models.Acknowledgment{
			AnnouncementID: announcement.ID,
			UserID:         userID,
			AcknowledgedAt: s.now().UTC(),
		}
		if err := tx.Create(&ack).Error; err != nil {
			// another session acknowledged in between; same outcome
			var again models.Acknowledgment
			if tx.First(&again, "announcement_id = ? AND user_id = ?", announcement.ID, userID).Error == nil {
				return nil
			}
			return err
		}
		return tx.Model(&models.Announcement{}).
			Where("id = ?", announcement.ID).
			Update("ack_count", gorm.Expr("ack_count + 1")).Error
	})
}

// ReceiptEntry is one row of the author-facing audit list.
type ReceiptEntry struct {
	UserID         uuid.UUID  `json:"userID"`
	ReadAt         time.Time  `json:"readAt"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
}

func (s *AnnouncementService) Receipts(ctx context.Context, announcementID, actorID uuid.UUID) ([]ReceiptEntry, error) {
	announcement, err := s.get(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if _, err := requirePermission(ctx, s.DB, announcement.GroupID, actorID, permissions.PermPostAnnouncements); err != nil {
		return nil, err
	}

	var receipts []models.ReadReceipt
	if err := s.DB.WithContext(ctx).
		Where("announcement_id = ?", announcement.ID).
		Order("read_at ASC").
		Find(&receipts).Error; err != nil {
		return nil, err
	}

	var acks []models.Acknowledgment
	if err := s.DB.WithContext(ctx).
		Where("announcement_id = ?", announcement.ID).
		Find(&acks).Error; err != nil {
		return nil, err
	}

	ackByUser := make(map[uuid.UUID]time.Time, len(acks))
	for _, ack := range acks {
		ackByUser[ack.UserID] = ack.AcknowledgedAt
	}

	entries := make([]ReceiptEntry, 0, len(receipts))
	for _, receipt := range receipts {
		entry := ReceiptEntry{UserID: receipt.UserID, ReadAt: receipt.ReadAt}
		if at, ok := ackByUser[receipt.UserID]; ok {
			ackedAt := at
			entry.AcknowledgedAt = &ackedAt
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SetPinned pins or unpins an announcement in its group's feed.
func (s *AnnouncementService) SetPinned(ctx context.Context, announcementID, actorID uuid.UUID, pinned bool) (*models.Announcement, error) {
	announcement, err := s.get(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if _, err := requirePermission(ctx, s.DB, announcement.GroupID, actorID, permissions.PermPinMessages); err != nil {
		return nil, err
	}
	if announcement.IsPinned == pinned {
		return announcement, nil
	}
	if err := s.DB.WithContext(ctx).Model(announcement).Update("is_pinned", pinned).Error; err != nil {
		return nil, err
	}
	announcement.IsPinned = pinned
	s.publishEvent(ctx, announcement)
	return announcement, nil
}

// Delete removes an announcement and everything hanging off it. Allowed for
// the author and for manage-group holders.
func (s *AnnouncementService) Delete(ctx context.Context, announcementID, actorID uuid.UUID) error {
	announcement, err := s.get(ctx, announcementID)
	if err != nil {
		return err
	}

	if announcement.AuthorID != actorID {
		if _, err := requirePermission(ctx, s.DB, announcement.GroupID, actorID, permissions.PermManageGroup); err != nil {
			return err
		}
	} else if _, err := membershipOf(ctx, s.DB, announcement.GroupID, actorID); err != nil {
		return err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("announcement_id = ?", announcement.ID).Delete(&models.ReadReceipt{}).Error; err != nil {
			return err
		}
		if err := tx.Where("announcement_id = ?", announcement.ID).Delete(&models.Acknowledgment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Announcement{}, "id = ?", announcement.ID).Error
	})
	if err != nil {
		return err
	}

	s.publishEvent(ctx, announcement)
	return nil
}

// SweepScheduled publishes every row whose schedule has elapsed and returns
// how many rows it flipped.
func (s *AnnouncementService) SweepScheduled(ctx context.Context) (int, error) {
	now := s.now().UTC()

	var due []models.Announcement
	if err := s.DB.WithContext(ctx).
		Where("is_published = ? AND scheduled_for IS NOT NULL AND scheduled_for <= ?", false, now).
		Find(&due).Error; err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	ids := make([]uuid.UUID, len(due))
	for i, row := range due {
		ids[i] = row.ID
	}

	if err := s.DB.WithContext(ctx).Model(&models.Announcement{}).
		Where("id IN ?", ids).
		Update("is_published", true).Error; err != nil {
		return 0, err
	}

	for i := range due {
		due[i].IsPublished = true
		s.publishEvent(ctx, &due[i])
	}

	logger.Info("announcements_swept", map[string]interface{}{"count": len(due)})
	return len(due), nil
}

// StartScheduler runs the sweep until ctx is cancelled.
func (s *AnnouncementService) StartScheduler(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.SweepScheduled(ctx); err != nil {
					logger.Error("announcement_sweep_failed", err, nil)
				}
			}
		}
	}()
}

func (s *AnnouncementService) get(ctx context.Context, id uuid.UUID) (*models.Announcement, error) {
	var announcement models.Announcement
	err := s.DB.WithContext(ctx).First(&announcement, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &announcement, nil
}

// createReceipt reports whether a new receipt row was written. A duplicate,
// whether found up front or hit as a constraint violation in a race, counts
// as not created.
func (s *AnnouncementService) createReceipt(tx *gorm.DB, announcementID, userID uuid.UUID) (bool, error) {
	var existing models.ReadReceipt
	err := tx.First(&existing, "announcement_id = ? AND user_id = ?", announcementID, userID).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, err
	}

	receipt := models.ReadReceipt{
		AnnouncementID: announcementID,
		UserID:         userID,
		ReadAt:         s.now().UTC(),
	}
	if err := tx.Create(&receipt).Error; err != nil {
		var again models.ReadReceipt
		if tx.First(&again, "announcement_id = ? AND user_id = ?", announcementID, userID).Error == nil {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *AnnouncementService) publishEvent(ctx context.Context, announcement *models.Announcement) {
	s.Events.Publish(ctx, notify.ChangeEvent{
		Kind:       notify.KindAnnouncement,
		GroupID:    announcement.GroupID,
		EntityID:   announcement.ID,
		BypassMute: announcement.BypassMute,
	})
}
