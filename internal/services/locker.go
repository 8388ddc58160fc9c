package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
)

// SessionLocker serializes turns per session. Correctness of the progression
// update depends on at most one in-flight turn per session; a second
// concurrent turn is rejected with ErrConflict rather than queued.
type SessionLocker interface {
	Acquire(ctx context.Context, sessionID uuid.UUID) (release func(), err error)
}

// localSessionLocker is the single-process fallback used when no redis
// address is configured.
type localSessionLocker struct {
	log  *logger.Logger
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

func NewLocalSessionLocker(log *logger.Logger) SessionLocker {
	return &localSessionLocker{
		log:  log.With("service", "LocalSessionLocker"),
		held: make(map[uuid.UUID]struct{}),
	}
}

func (l *localSessionLocker) Acquire(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[sessionID]; busy {
		return nil, fmt.Errorf("session %s busy: %w", sessionID, pkgerrors.ErrConflict)
	}
	l.held[sessionID] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, sessionID)
		l.mu.Unlock()
	}, nil
}
