package app

import (
	"github.com/gin-gonic/gin"

	"github.com/balaprakas/storybuddy-backend/internal/handlers"
	"github.com/balaprakas/storybuddy-backend/internal/middleware"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/server"
)

func wireRouter(log *logger.Logger, cfg *Config, s *appServices) *gin.Engine {
	if cfg.Mode == "prod" || cfg.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.NewRouter(server.RouterConfig{
		AuthHandler:    handlers.NewAuthHandler(s.auth),
		AuthMiddleware: middleware.NewAuthMiddleware(log, s.auth),
		UserHandler:    handlers.NewUserHandler(s.user),
		BookHandler:    handlers.NewBookHandler(s.book),
		SessionHandler: handlers.NewSessionHandler(s.session, s.book),
		ChatHandler:    handlers.NewChatHandler(s.chat),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
}
