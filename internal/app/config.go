package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/services"
	"github.com/balaprakas/storybuddy-backend/internal/utils"
)

type Config struct {
	Mode string
	Port string

	JWTSecretKey string
	AccessTTL    time.Duration
	RefreshTTL   time.Duration

	GoogleOAuthClientID string
	CORSAllowedOrigins  []string
	BookSeedPath        string

	Story services.StoryConfig
}

func LoadConfig(log *logger.Logger) (*Config, error) {
	cfg := &Config{
		Mode: utils.GetEnv("APP_MODE", "dev", log),
		Port: utils.GetEnv("PORT", "8080", log),

		JWTSecretKey: utils.GetEnv("JWT_SECRET_KEY", "", log),
		AccessTTL:    time.Duration(utils.GetEnvAsInt("ACCESS_TOKEN_TTL_MINUTES", 30, log)) * time.Minute,
		RefreshTTL:   time.Duration(utils.GetEnvAsInt("REFRESH_TOKEN_TTL_MINUTES", 60*24*7, log)) * time.Minute,

		GoogleOAuthClientID: utils.GetEnv("GOOGLE_OAUTH_CLIENT_ID", "", log),
		BookSeedPath:        utils.GetEnv("BOOK_SEED_PATH", "config/books.yaml", log),

		Story: services.StoryConfig{
			Engine: services.EngineConfig{
				MinTurnsBeforeAdvance: utils.GetEnvAsInt("STORY_MIN_TURNS", 1, log),
				MaxTurnsPerStage:      utils.GetEnvAsInt("STORY_MAX_TURNS", 3, log),
			},
			ContextWindow:  utils.GetEnvAsInt("STORY_CONTEXT_WINDOW", 10, log),
			TwoPassWelcome: strings.EqualFold(utils.GetEnv("STORY_TWO_PASS_WELCOME", "true", log), "true"),
		},
	}

	if origins := strings.TrimSpace(utils.GetEnv("CORS_ALLOWED_ORIGINS", "", log)); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	if cfg.JWTSecretKey == "" {
		return nil, fmt.Errorf("missing env var JWT_SECRET_KEY")
	}
	return cfg, nil
}
