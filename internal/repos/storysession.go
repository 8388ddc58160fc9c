package repos

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
)

// ProgressUpdate is the full progression tuple applied in one write. From*
// fields carry the expected current values for the optimistic guard.
type ProgressUpdate struct {
	FromStage     int
	FromTurnCount int
	ToStage       int
	ToTurnCount   int
	StoryContext  string
	Finished      bool
}

type StorySessionRepo interface {
	Create(dbc dbctx.Context, rows []*domain.StorySession) ([]*domain.StorySession, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.StorySession, error)
	// GetActive returns the single non-archived session for (user, book), or
	// pkg/errors.ErrNotFound when none exists.
	GetActive(dbc dbctx.Context, userID, bookID uuid.UUID) (*domain.StorySession, error)
	ArchiveByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	// UpdateProgress atomically applies the progression tuple. It returns
	// pkg/errors.ErrConflict when the row no longer matches the From* values,
	// i.e. a concurrent turn got there first.
	UpdateProgress(dbc dbctx.Context, id uuid.UUID, upd ProgressUpdate) error
}

type storySessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStorySessionRepo(db *gorm.DB, baseLog *logger.Logger) StorySessionRepo {
	return &storySessionRepo{db: db, log: baseLog.With("repo", "StorySessionRepo")}
}

func (r *storySessionRepo) Create(dbc dbctx.Context, rows []*domain.StorySession) ([]*domain.StorySession, error) {
	if len(rows) == 0 {
		return []*domain.StorySession{}, nil
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

func (r *storySessionRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.StorySession, error) {
	var out []*domain.StorySession
	if len(ids) == 0 {
		return out, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *storySessionRepo) GetActive(dbc dbctx.Context, userID, bookID uuid.UUID) (*domain.StorySession, error) {
	if userID == uuid.Nil || bookID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id or book_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out domain.StorySession
	err := txx.WithContext(dbc.Ctx).
		Where("user_id = ? AND book_id = ? AND is_archived = ?", userID, bookID, false).
		Order("created_at DESC").
		First(&out).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *storySessionRepo) ArchiveByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&domain.StorySession{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_archived": true,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *storySessionRepo) UpdateProgress(dbc dbctx.Context, id uuid.UUID, upd ProgressUpdate) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing session id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&domain.StorySession{}).
		Where("id = ? AND is_archived = ?", id, false).
		Where("current_stage = ? AND stage_turn_count = ?", upd.FromStage, upd.FromTurnCount).
		Updates(map[string]interface{}{
			"current_stage":    upd.ToStage,
			"stage_turn_count": upd.ToTurnCount,
			"story_context":    upd.StoryContext,
			"is_finished":      upd.Finished,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.ErrConflict
	}
	return nil
}
