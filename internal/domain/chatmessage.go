package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an append-only audit record of one side of a turn. Rows are
// retained after their session is archived.
type ChatMessage struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID         `gorm:"index;not null" json:"session_id"`
	Session   *StorySession     `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"-"`
	Role      string            `gorm:"not null;column:role" json:"role"`
	Content   string            `gorm:"type:text;not null;column:content" json:"content"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time         `gorm:"index;not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

func (ChatMessage) TableName() string {
	return "chat_message"
}
