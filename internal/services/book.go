package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/clients/gcs"
	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/repos"
)

// BookService exposes the stage catalog. Stages are authored externally and
// seeded from a YAML file; the controller only ever reads them.
type BookService interface {
	ListBooks(ctx context.Context) ([]*domain.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error)
	StagesFor(ctx context.Context, bookID uuid.UUID) ([]*domain.StoryStage, error)
	// StageAt returns pkg/errors.ErrNotFound for a stage number past the end
	// of the catalog; callers use that to detect the final stage.
	StageAt(ctx context.Context, bookID uuid.UUID, stageNumber int) (*domain.StoryStage, error)
	StageCount(ctx context.Context, bookID uuid.UUID) (int64, error)
	// ResolveImageURL turns an opaque stage/cover locator into a client URL.
	ResolveImageURL(ref string) string
	SeedFromFile(ctx context.Context, path string) error
}

type bookService struct {
	db        *gorm.DB
	log       *logger.Logger
	bookRepo  repos.BookRepo
	stageRepo repos.StoryStageRepo
	bucket    gcs.BucketService
}

func NewBookService(db *gorm.DB, log *logger.Logger, bookRepo repos.BookRepo, stageRepo repos.StoryStageRepo, bucket gcs.BucketService) BookService {
	return &bookService{
		db:        db,
		log:       log.With("service", "BookService"),
		bookRepo:  bookRepo,
		stageRepo: stageRepo,
		bucket:    bucket,
	}
}

func (bs *bookService) ListBooks(ctx context.Context) ([]*domain.Book, error) {
	return bs.bookRepo.List(dbctx.New(ctx, nil))
}

func (bs *bookService) GetBook(ctx context.Context, id uuid.UUID) (*domain.Book, error) {
	books, err := bs.bookRepo.GetByIDs(dbctx.New(ctx, nil), []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("book %s: %w", id, pkgerrors.ErrNotFound)
	}
	return books[0], nil
}

func (bs *bookService) StagesFor(ctx context.Context, bookID uuid.UUID) ([]*domain.StoryStage, error) {
	return bs.stageRepo.ListByBook(dbctx.New(ctx, nil), bookID)
}

func (bs *bookService) StageAt(ctx context.Context, bookID uuid.UUID, stageNumber int) (*domain.StoryStage, error) {
	return bs.stageRepo.GetByBookAndNumber(dbctx.New(ctx, nil), bookID, stageNumber)
}

func (bs *bookService) StageCount(ctx context.Context, bookID uuid.UUID) (int64, error) {
	return bs.stageRepo.CountByBook(dbctx.New(ctx, nil), bookID)
}

func (bs *bookService) ResolveImageURL(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if bs.bucket != nil {
		return bs.bucket.GetPublicURL(ref)
	}
	return ref
}

// ----- seed loading -----

type seedFile struct {
	Books []seedBook `yaml:"books"`
}

type seedBook struct {
	Slug        string      `yaml:"slug"`
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	OpeningLine string      `yaml:"opening_line"`
	CoverImage  string      `yaml:"cover_image"`
	Stages      []seedStage `yaml:"stages"`
}

type seedStage struct {
	Number int    `yaml:"number"`
	Theme  string `yaml:"theme"`
	Image  string `yaml:"image"`
}

// SeedFromFile inserts books and stages that do not exist yet. Existing books
// are left untouched: stages are immutable once authored.
func (bs *bookService) SeedFromFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read book seed %q: %w", path, err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse book seed %q: %w", path, err)
	}

	for _, sb := range seed.Books {
		if strings.TrimSpace(sb.Slug) == "" || strings.TrimSpace(sb.Title) == "" {
			return fmt.Errorf("book seed entry missing slug or title: %w", pkgerrors.ErrInvalidArgument)
		}
		if err := bs.seedBook(ctx, sb); err != nil {
			return err
		}
	}
	return nil
}

func (bs *bookService) seedBook(ctx context.Context, sb seedBook) error {
	return bs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx, tx)

		existing, err := bs.bookRepo.GetBySlugs(dbc, []string{sb.Slug})
		if err != nil {
			return fmt.Errorf("check book %q: %w", sb.Slug, err)
		}
		if len(existing) > 0 {
			bs.log.Debug("Book already seeded, skipping", "slug", sb.Slug)
			return nil
		}

		book := &domain.Book{
			ID:          uuid.New(),
			Slug:        sb.Slug,
			Title:       sb.Title,
			Description: sb.Description,
			OpeningLine: sb.OpeningLine,
			CoverImage:  sb.CoverImage,
		}
		if _, err := bs.bookRepo.Create(dbc, []*domain.Book{book}); err != nil {
			return fmt.Errorf("create book %q: %w", sb.Slug, err)
		}

		stages := make([]*domain.StoryStage, 0, len(sb.Stages))
		for _, st := range sb.Stages {
			if st.Number < 1 || strings.TrimSpace(st.Theme) == "" {
				return fmt.Errorf("book %q stage %d invalid: %w", sb.Slug, st.Number, pkgerrors.ErrInvalidArgument)
			}
			stages = append(stages, &domain.StoryStage{
				ID:          uuid.New(),
				BookID:      book.ID,
				StageNumber: st.Number,
				Theme:       st.Theme,
				ImageRef:    st.Image,
			})
		}
		if _, err := bs.stageRepo.Create(dbc, stages); err != nil {
			return fmt.Errorf("create stages for %q: %w", sb.Slug, err)
		}
		bs.log.Info("Seeded book", "slug", sb.Slug, "stages", len(stages))
		return nil
	})
}
