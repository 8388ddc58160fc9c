package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/repos"
)

// StartResult is what a start/resume hands back to the HTTP layer. Messages
// is populated only on resume, for UI replay.
type StartResult struct {
	Session  *domain.StorySession
	Resumed  bool
	Messages []*domain.ChatMessage
}

// SessionService owns the NONE → ACTIVE → ARCHIVED lifecycle. Archiving is
// the only way an active session goes away; nothing is physically deleted,
// and chat messages outlive their session for audit.
type SessionService interface {
	Start(ctx context.Context, userID, bookID uuid.UUID, restart bool) (*StartResult, error)
	// Check is a pure query: the active session for (user, book), or
	// pkg/errors.ErrNotFound. Never mutates.
	Check(ctx context.Context, userID, bookID uuid.UUID) (*domain.StorySession, error)
	// GetOwned loads a session and verifies ownership.
	GetOwned(ctx context.Context, sessionID, userID uuid.UUID) (*domain.StorySession, error)
	History(ctx context.Context, sessionID uuid.UUID, limit int) ([]*domain.ChatMessage, error)
}

type sessionService struct {
	db          *gorm.DB
	log         *logger.Logger
	sessionRepo repos.StorySessionRepo
	messageRepo repos.ChatMessageRepo
}

func NewSessionService(db *gorm.DB, log *logger.Logger, sessionRepo repos.StorySessionRepo, messageRepo repos.ChatMessageRepo) SessionService {
	return &sessionService{
		db:          db,
		log:         log.With("service", "SessionService"),
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
	}
}

func (ss *sessionService) Start(ctx context.Context, userID, bookID uuid.UUID, restart bool) (*StartResult, error) {
	var out StartResult
	err := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx, tx)

		active, err := ss.sessionRepo.GetActive(dbc, userID, bookID)
		if err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
			return fmt.Errorf("load active session: %w", err)
		}

		if active != nil && restart {
			if err := ss.sessionRepo.ArchiveByIDs(dbc, []uuid.UUID{active.ID}); err != nil {
				return fmt.Errorf("archive session %s: %w", active.ID, err)
			}
			ss.log.Info("Archived session on restart", "session_id", active.ID, "user_id", userID, "book_id", bookID)
			active = nil
		}

		if active != nil {
			out.Session = active
			out.Resumed = true
			return nil
		}

		session := &domain.StorySession{
			ID:             uuid.New(),
			UserID:         userID,
			BookID:         bookID,
			CurrentStage:   1,
			StageTurnCount: 0,
			StoryContext:   InitialStoryContext,
		}
		if _, err := ss.sessionRepo.Create(dbc, []*domain.StorySession{session}); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		out.Session = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.Resumed {
		msgs, err := ss.messageRepo.ListBySession(dbctx.New(ctx, nil), out.Session.ID, 100)
		if err != nil {
			// Replay history is a convenience, not a correctness requirement.
			ss.log.Warn("Failed to load replay history", "session_id", out.Session.ID, "error", err)
		} else {
			out.Messages = msgs
		}
	}
	return &out, nil
}

func (ss *sessionService) Check(ctx context.Context, userID, bookID uuid.UUID) (*domain.StorySession, error) {
	return ss.sessionRepo.GetActive(dbctx.New(ctx, nil), userID, bookID)
}

func (ss *sessionService) GetOwned(ctx context.Context, sessionID, userID uuid.UUID) (*domain.StorySession, error) {
	sessions, err := ss.sessionRepo.GetByIDs(dbctx.New(ctx, nil), []uuid.UUID{sessionID})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, pkgerrors.ErrNotFound)
	}
	session := sessions[0]
	if session.UserID != userID {
		return nil, fmt.Errorf("session %s not owned by caller: %w", sessionID, pkgerrors.ErrUnauthorized)
	}
	return session, nil
}

func (ss *sessionService) History(ctx context.Context, sessionID uuid.UUID, limit int) ([]*domain.ChatMessage, error) {
	return ss.messageRepo.ListBySession(dbctx.New(ctx, nil), sessionID, limit)
}
