package models

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	BaseModel
	GroupID   uuid.UUID  `json:"groupID" gorm:"type:uuid;not null;index"`
	SenderID  uuid.UUID  `json:"senderID" gorm:"type:uuid;not null;index"`
	Content   string     `json:"content" gorm:"type:text;not null"`
	Sender    User       `json:"sender,omitempty" gorm:"foreignKey:SenderID"`
	Reactions []Reaction `json:"reactions,omitempty" gorm:"foreignKey:MessageID"`
}

// Reaction presence is the whole state: the tuple existing means the user has
// reacted with that emoji, absence means they have not.
type Reaction struct {
	BaseModel
	MessageID uuid.UUID `json:"messageID" gorm:"type:uuid;not null;index;uniqueIndex:idx_reaction_message_user_emoji"`
	UserID    uuid.UUID `json:"userID" gorm:"type:uuid;not null;uniqueIndex:idx_reaction_message_user_emoji"`
	Emoji     string    `json:"emoji" gorm:"type:varchar(32);not null;uniqueIndex:idx_reaction_message_user_emoji"`
}

// PinnedMessage marks a message as pinned in its group. Unpinning deletes the
// marker, never the message.
type PinnedMessage struct {
	BaseModel
	MessageID uuid.UUID `json:"messageID" gorm:"type:uuid;not null;uniqueIndex"`
	GroupID   uuid.UUID `json:"groupID" gorm:"type:uuid;not null;index"`
	PinnedBy  uuid.UUID `json:"pinnedBy" gorm:"type:uuid;not null"`
	PinnedAt  time.Time `json:"pinnedAt" gorm:"not null"`
	Message   Message   `json:"message,omitempty" gorm:"foreignKey:MessageID"`
}
