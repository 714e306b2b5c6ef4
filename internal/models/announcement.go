package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AnnouncementCategory string

const (
	CategoryUrgent      AnnouncementCategory = "urgent"
	CategoryInfo        AnnouncementCategory = "info"
	CategoryReminder    AnnouncementCategory = "reminder"
	CategoryCelebration AnnouncementCategory = "celebration"
)

func (c AnnouncementCategory) Valid() bool {
	switch c {
	case CategoryUrgent, CategoryInfo, CategoryReminder, CategoryCelebration:
		return true
	default:
		return false
	}
}

type Announcement struct {
	BaseModel
	GroupID      uuid.UUID            `json:"groupID" gorm:"type:uuid;not null;index"`
	AuthorID     uuid.UUID            `json:"authorID" gorm:"type:uuid;not null;index"`
	Title        string               `json:"title" gorm:"type:varchar(255);not null"`
	Content      string               `json:"content" gorm:"type:text;not null"`
	Category     AnnouncementCategory `json:"category" gorm:"type:varchar(20);not null;default:'info'"`
	IsPinned     bool                 `json:"isPinned" gorm:"not null;default:false"`
	IsPublished  bool                 `json:"isPublished" gorm:"not null;default:false;index"`
	BypassMute   bool                 `json:"bypassMute" gorm:"not null;default:false"`
	ScheduledFor *time.Time           `json:"scheduledFor,omitempty" gorm:"index"`
	// CrossGroupIDs holds the broadcast targets on the originating row only;
	// broadcast copies are written with this field null so a copy can never
	// fan out again.
	CrossGroupIDs datatypes.JSON `json:"crossGroupIDs,omitempty"`
	AttachmentKey *string        `json:"attachmentKey,omitempty" gorm:"type:text"`
	ReadCount     int            `json:"readCount" gorm:"not null;default:0"`
	AckCount      int            `json:"ackCount" gorm:"not null;default:0"`

	Author User `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
}

type ReadReceipt struct {
	BaseModel
	AnnouncementID uuid.UUID `json:"announcementID" gorm:"type:uuid;not null;index;uniqueIndex:idx_receipt_announcement_user"`
	UserID         uuid.UUID `json:"userID" gorm:"type:uuid;not null;uniqueIndex:idx_receipt_announcement_user"`
	ReadAt         time.Time `json:"readAt" gorm:"not null"`
	User           User      `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

type Acknowledgment struct {
	BaseModel
	AnnouncementID uuid.UUID `json:"announcementID" gorm:"type:uuid;not null;index;uniqueIndex:idx_ack_announcement_user"`
	UserID         uuid.UUID `json:"userID" gorm:"type:uuid;not null;uniqueIndex:idx_ack_announcement_user"`
	AcknowledgedAt time.Time `json:"acknowledgedAt" gorm:"not null"`
	User           User      `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
