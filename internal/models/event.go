package models

import (
	"time"

	"github.com/google/uuid"
)

type Recurrence string

const (
	RecurrenceOnce     Recurrence = "once"
	RecurrenceWeekly   Recurrence = "weekly"
	RecurrenceBiweekly Recurrence = "biweekly"
	RecurrenceMonthly  Recurrence = "monthly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurrenceOnce, RecurrenceWeekly, RecurrenceBiweekly, RecurrenceMonthly:
		return true
	default:
		return false
	}
}

type RSVPStatus string

const (
	RSVPGoing    RSVPStatus = "going"
	RSVPMaybe    RSVPStatus = "maybe"
	RSVPNotGoing RSVPStatus = "not_going"
)

func (s RSVPStatus) Valid() bool {
	switch s {
	case RSVPGoing, RSVPMaybe, RSVPNotGoing:
		return true
	default:
		return false
	}
}

// Event is a single occurrence. Recurrence is descriptive metadata; recurring
// series are stored as separate rows, one per occurrence.
type Event struct {
	BaseModel
	GroupID          uuid.UUID  `json:"groupID" gorm:"type:uuid;not null;index"`
	CreatorID        uuid.UUID  `json:"creatorID" gorm:"type:uuid;not null;index"`
	Title            string     `json:"title" gorm:"type:varchar(255);not null"`
	Description      *string    `json:"description,omitempty" gorm:"type:text"`
	StartTime        time.Time  `json:"startTime" gorm:"not null;index"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	Location         *string    `json:"location,omitempty" gorm:"type:varchar(255)"`
	Recurrence       Recurrence `json:"recurrence" gorm:"type:varchar(20);not null;default:'once'"`
	MaxCapacity      *int       `json:"maxCapacity,omitempty"`
	RemindDayBefore  bool       `json:"remindDayBefore" gorm:"not null;default:false"`
	RemindHourBefore bool       `json:"remindHourBefore" gorm:"not null;default:false"`
	IsCancelled      bool       `json:"isCancelled" gorm:"not null;default:false"`

	Creator User   `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	RSVPs   []RSVP `json:"rsvps,omitempty" gorm:"foreignKey:EventID"`
}

type RSVP struct {
	BaseModel
	EventID uuid.UUID  `json:"eventID" gorm:"type:uuid;not null;index;uniqueIndex:idx_rsvp_event_user"`
	UserID  uuid.UUID  `json:"userID" gorm:"type:uuid;not null;uniqueIndex:idx_rsvp_event_user"`
	Status  RSVPStatus `json:"status" gorm:"type:varchar(20);not null"`
	User    User       `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
