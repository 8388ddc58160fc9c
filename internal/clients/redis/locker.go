package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/utils"
)

// SessionLocker serializes chat turns per session across processes using
// SET NX PX. Used when REDIS_ADDR is configured; the app falls back to an
// in-process locker otherwise.
type SessionLocker struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSessionLocker(log *logger.Logger) (*SessionLocker, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ttlSec := utils.GetEnvAsInt("REDIS_LOCK_TTL_SECONDS", 60, log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &SessionLocker{
		log: log.With("client", "RedisSessionLocker"),
		rdb: rdb,
		ttl: time.Duration(ttlSec) * time.Second,
	}, nil
}

// Acquire takes the per-session lock or fails with ErrConflict when another
// turn is already in flight for the same session.
func (l *SessionLocker) Acquire(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	key := "storybuddy:session_lock:" + sessionID.String()
	token := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("session %s busy: %w", sessionID, pkgerrors.ErrConflict)
	}

	release := func() {
		// Only delete our own lock; an expired lock may belong to someone else.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.rdb.Eval(ctx, script, []string{key}, token).Err(); err != nil {
			l.log.Warn("failed to release session lock", "key", key, "error", err)
		}
	}
	return release, nil
}

func (l *SessionLocker) Close() error {
	return l.rdb.Close()
}
