package app

import (
	"strings"

	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/clients/gcs"
	"github.com/balaprakas/storybuddy-backend/internal/clients/gemini"
	redisclient "github.com/balaprakas/storybuddy-backend/internal/clients/redis"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/services"
	"github.com/balaprakas/storybuddy-backend/internal/utils"
)

type appServices struct {
	auth    services.AuthService
	user    services.UserService
	book    services.BookService
	session services.SessionService
	chat    services.ChatService

	redisLocker *redisclient.SessionLocker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg *Config, r *appRepos) (*appServices, error) {
	out := &appServices{}

	// Bucket storage is optional; without it avatars are skipped and stage
	// image refs must be absolute URLs.
	var bucket gcs.BucketService
	if utils.GetEnv("GCS_BUCKET_NAME", "", log) != "" {
		b, err := gcs.NewBucketService(log)
		if err != nil {
			return nil, err
		}
		bucket = b
	} else {
		log.Warn("GCS_BUCKET_NAME not set, bucket storage disabled")
	}

	var avatar services.AvatarService
	if bucket != nil {
		avatar = services.NewAvatarService(log, bucket)
	}

	var verifier services.GoogleVerifier
	if cfg.GoogleOAuthClientID != "" {
		v, err := services.NewGoogleVerifier(nil, cfg.GoogleOAuthClientID)
		if err != nil {
			return nil, err
		}
		verifier = v
	} else {
		log.Warn("GOOGLE_OAUTH_CLIENT_ID not set, google sign-in disabled")
	}

	generator, err := gemini.New(log)
	if err != nil {
		return nil, err
	}

	var locker services.SessionLocker
	if strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log)) != "" {
		rl, err := redisclient.NewSessionLocker(log)
		if err != nil {
			return nil, err
		}
		out.redisLocker = rl
		locker = rl
	} else {
		log.Warn("REDIS_ADDR not set, using in-process session locks")
		locker = services.NewLocalSessionLocker(log)
	}

	out.auth = services.NewAuthService(
		db, log,
		r.user, r.userToken,
		avatar, verifier,
		cfg.JWTSecretKey, cfg.AccessTTL, cfg.RefreshTTL,
	)
	out.user = services.NewUserService(db, log, r.user)
	out.book = services.NewBookService(db, log, r.book, r.stage, bucket)
	out.session = services.NewSessionService(db, log, r.session, r.message)
	out.chat = services.NewChatService(
		db, log, cfg.Story,
		out.session, out.book,
		r.session, r.message,
		generator, locker,
	)

	return out, nil
}
