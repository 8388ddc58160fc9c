package domain

import (
	"time"

	"github.com/google/uuid"
)

// Book is one authorable picture-book template. Its stages form the fixed
// narrative sequence the child writes through.
type Book struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug        string    `gorm:"uniqueIndex;not null;column:slug" json:"slug"`
	Title       string    `gorm:"not null;column:title" json:"title"`
	Description string    `gorm:"column:description" json:"description"`
	// OpeningLine is the greeting returned when a session starts on stage 1.
	OpeningLine string    `gorm:"column:opening_line" json:"opening_line"`
	CoverImage  string    `gorm:"column:cover_image" json:"cover_image"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Book) TableName() string {
	return "book"
}
