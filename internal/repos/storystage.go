package repos

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
)

type StoryStageRepo interface {
	Create(dbc dbctx.Context, rows []*domain.StoryStage) ([]*domain.StoryStage, error)
	// ListByBook returns the book's full catalog ordered by stage number.
	ListByBook(dbc dbctx.Context, bookID uuid.UUID) ([]*domain.StoryStage, error)
	// GetByBookAndNumber returns pkg/errors.ErrNotFound when the stage is absent,
	// which is how the engine detects the final stage.
	GetByBookAndNumber(dbc dbctx.Context, bookID uuid.UUID, stageNumber int) (*domain.StoryStage, error)
	CountByBook(dbc dbctx.Context, bookID uuid.UUID) (int64, error)
}

type storyStageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStoryStageRepo(db *gorm.DB, baseLog *logger.Logger) StoryStageRepo {
	return &storyStageRepo{db: db, log: baseLog.With("repo", "StoryStageRepo")}
}

func (r *storyStageRepo) Create(dbc dbctx.Context, rows []*domain.StoryStage) ([]*domain.StoryStage, error) {
	if len(rows) == 0 {
		return []*domain.StoryStage{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *storyStageRepo) ListByBook(dbc dbctx.Context, bookID uuid.UUID) ([]*domain.StoryStage, error) {
	if bookID == uuid.Nil {
		return nil, fmt.Errorf("missing book_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.StoryStage
	if err := txx.WithContext(dbc.Ctx).
		Where("book_id = ?", bookID).
		Order("stage_number ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *storyStageRepo) GetByBookAndNumber(dbc dbctx.Context, bookID uuid.UUID, stageNumber int) (*domain.StoryStage, error) {
	if bookID == uuid.Nil {
		return nil, fmt.Errorf("missing book_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.StoryStage
	err := txx.WithContext(dbc.Ctx).
		Where("book_id = ? AND stage_number = ?", bookID, stageNumber).
		First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *storyStageRepo) CountByBook(dbc dbctx.Context, bookID uuid.UUID) (int64, error) {
	if bookID == uuid.Nil {
		return 0, fmt.Errorf("missing book_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var count int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&domain.StoryStage{}).
		Where("book_id = ?", bookID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
