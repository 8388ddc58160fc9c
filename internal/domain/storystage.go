package domain

import (
	"time"

	"github.com/google/uuid"
)

// StoryStage is one step of a book's narrative sequence. Stages are immutable
// once authored and totally ordered by StageNumber within a book.
type StoryStage struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	BookID      uuid.UUID `gorm:"index:idx_story_stage_book_number,unique;not null" json:"book_id"`
	Book        *Book     `gorm:"constraint:OnDelete:CASCADE;foreignKey:BookID;references:ID" json:"-"`
	StageNumber int       `gorm:"index:idx_story_stage_book_number,unique;not null;column:stage_number" json:"stage_number"`
	Theme       string    `gorm:"not null;column:theme" json:"theme"`
	// ImageRef is an opaque illustration locator: either a full URL or a
	// storage bucket key resolved at read time.
	ImageRef  string    `gorm:"column:image_ref" json:"image_ref"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (StoryStage) TableName() string {
	return "story_stage"
}
