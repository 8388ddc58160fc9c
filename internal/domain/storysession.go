package domain

import (
	"time"

	"github.com/google/uuid"
)

// StorySession tracks one user's progress through one book. At most one
// non-archived session exists per (user, book); restarting archives the old
// session instead of deleting it.
type StorySession struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"index:idx_story_session_user_book;not null" json:"user_id"`
	User           *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	BookID         uuid.UUID `gorm:"index:idx_story_session_user_book;not null" json:"book_id"`
	Book           *Book     `gorm:"constraint:OnDelete:CASCADE;foreignKey:BookID;references:ID" json:"-"`
	CurrentStage   int       `gorm:"not null;default:1;column:current_stage" json:"current_stage"`
	StageTurnCount int       `gorm:"not null;default:0;column:stage_turn_count" json:"stage_turn_count"`
	// StoryContext is the append-only running transcript fed back into the
	// generation prompt. Windowing happens at read time, never here.
	StoryContext string    `gorm:"type:text;column:story_context" json:"story_context"`
	IsFinished   bool      `gorm:"not null;default:false;column:is_finished" json:"is_finished"`
	IsArchived   bool      `gorm:"index:idx_story_session_user_book;not null;default:false;column:is_archived" json:"is_archived"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

func (StorySession) TableName() string {
	return "story_session"
}
