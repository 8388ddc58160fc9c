package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
)

type BookRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Book) ([]*domain.Book, error)
	List(dbc dbctx.Context) ([]*domain.Book, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Book, error)
	GetBySlugs(dbc dbctx.Context, slugs []string) ([]*domain.Book, error)
}

type bookRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBookRepo(db *gorm.DB, baseLog *logger.Logger) BookRepo {
	return &bookRepo{db: db, log: baseLog.With("repo", "BookRepo")}
}

func (r *bookRepo) Create(dbc dbctx.Context, rows []*domain.Book) ([]*domain.Book, error) {
	if len(rows) == 0 {
		return []*domain.Book{}, nil
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

func (r *bookRepo) List(dbc dbctx.Context) ([]*domain.Book, error) {
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*domain.Book
	if err := txx.WithContext(dbc.Ctx).
		Order("title ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bookRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.Book, error) {
	var out []*domain.Book
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

func (r *bookRepo) GetBySlugs(dbc dbctx.Context, slugs []string) ([]*domain.Book, error) {
	var out []*domain.Book
	if len(slugs) == 0 {
		return out, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).
		Where("slug IN ?", slugs).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
