package repos

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/repos/testutil"
)

func seedSession(t *testing.T, gdb *gorm.DB, repo StorySessionRepo) *domain.StorySession {
	t.Helper()
	userID := uuid.New()
	bookID := uuid.New()
	if err := gdb.Create(&domain.User{ID: userID, Email: uuid.NewString() + "@example.com"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := gdb.Create(&domain.Book{ID: bookID, Slug: uuid.NewString(), Title: "The Rainbow Story"}).Error; err != nil {
		t.Fatalf("seed book: %v", err)
	}
	session := &domain.StorySession{
		ID:             uuid.New(),
		UserID:         userID,
		BookID:         bookID,
		CurrentStage:   1,
		StageTurnCount: 0,
		StoryContext:   "The story begins.",
	}
	if _, err := repo.Create(dbctx.New(context.Background(), nil), []*domain.StorySession{session}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestStorySessionUpdateProgress(t *testing.T) {
	gdb := testutil.OpenTestDB(t)
	log := testutil.NewTestLogger(t)
	repo := NewStorySessionRepo(gdb, log)
	dbc := dbctx.New(context.Background(), nil)

	session := seedSession(t, gdb, repo)

	err := repo.UpdateProgress(dbc, session.ID, ProgressUpdate{
		FromStage:     1,
		FromTurnCount: 0,
		ToStage:       1,
		ToTurnCount:   1,
		StoryContext:  "The story begins. Child: The boy is Tom.",
	})
	if err != nil {
		t.Fatalf("update progress: %v", err)
	}

	got, err := repo.GetByIDs(dbc, []uuid.UUID{session.ID})
	if err != nil || len(got) != 1 {
		t.Fatalf("reload session: %v (%d rows)", err, len(got))
	}
	if got[0].CurrentStage != 1 || got[0].StageTurnCount != 1 {
		t.Fatalf("progress = %d/%d, want 1/1", got[0].CurrentStage, got[0].StageTurnCount)
	}
	if got[0].StoryContext != "The story begins. Child: The boy is Tom." {
		t.Fatalf("context = %q", got[0].StoryContext)
	}
}

func TestStorySessionUpdateProgressConflict(t *testing.T) {
	gdb := testutil.OpenTestDB(t)
	log := testutil.NewTestLogger(t)
	repo := NewStorySessionRepo(gdb, log)
	dbc := dbctx.New(context.Background(), nil)

	session := seedSession(t, gdb, repo)

	// Stale From* tuple simulates a concurrent turn that already advanced.
	err := repo.UpdateProgress(dbc, session.ID, ProgressUpdate{
		FromStage:     1,
		FromTurnCount: 2,
		ToStage:       2,
		ToTurnCount:   0,
		StoryContext:  "x",
	})
	if !errors.Is(err, pkgerrors.ErrConflict) {
		t.Fatalf("stale update = %v, want ErrConflict", err)
	}

	got, _ := repo.GetByIDs(dbc, []uuid.UUID{session.ID})
	if got[0].CurrentStage != 1 || got[0].StageTurnCount != 0 {
		t.Fatalf("conflicting update mutated the row: %+v", got[0])
	}
}

func TestStorySessionUpdateProgressSkipsArchived(t *testing.T) {
	gdb := testutil.OpenTestDB(t)
	log := testutil.NewTestLogger(t)
	repo := NewStorySessionRepo(gdb, log)
	dbc := dbctx.New(context.Background(), nil)

	session := seedSession(t, gdb, repo)
	if err := repo.ArchiveByIDs(dbc, []uuid.UUID{session.ID}); err != nil {
		t.Fatalf("archive: %v", err)
	}

	err := repo.UpdateProgress(dbc, session.ID, ProgressUpdate{
		FromStage: 1, FromTurnCount: 0, ToStage: 1, ToTurnCount: 1, StoryContext: "x",
	})
	if !errors.Is(err, pkgerrors.ErrConflict) {
		t.Fatalf("archived update = %v, want ErrConflict", err)
	}
}

func TestStorySessionGetActive(t *testing.T) {
	gdb := testutil.OpenTestDB(t)
	log := testutil.NewTestLogger(t)
	repo := NewStorySessionRepo(gdb, log)
	dbc := dbctx.New(context.Background(), nil)

	session := seedSession(t, gdb, repo)

	got, err := repo.GetActive(dbc, session.UserID, session.BookID)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if got.ID != session.ID {
		t.Fatalf("wrong active session")
	}

	if err := repo.ArchiveByIDs(dbc, []uuid.UUID{session.ID}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, err := repo.GetActive(dbc, session.UserID, session.BookID); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Fatalf("archived GetActive = %v, want ErrNotFound", err)
	}
}
