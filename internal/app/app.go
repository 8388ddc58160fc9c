package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/balaprakas/storybuddy-backend/internal/db"
	"github.com/balaprakas/storybuddy-backend/internal/observability"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
)

type App struct {
	cfg    *Config
	log    *logger.Logger
	router *gin.Engine

	services     *appServices
	shutdownOtel func(context.Context) error
}

func New() (*App, error) {
	bootLog, err := logger.New(os.Getenv("APP_MODE"))
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	cfg, err := LoadConfig(bootLog)
	if err != nil {
		return nil, err
	}

	shutdownOtel, err := observability.Setup(context.Background(), bootLog)
	if err != nil {
		return nil, err
	}

	dbService, err := db.New(bootLog)
	if err != nil {
		return nil, err
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	gdb := dbService.DB()
	appRepos := wireRepos(gdb, bootLog)
	appServices, err := wireServices(gdb, bootLog, cfg, appRepos)
	if err != nil {
		return nil, err
	}

	if cfg.BookSeedPath != "" {
		if err := appServices.book.SeedFromFile(context.Background(), cfg.BookSeedPath); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				bootLog.Warn("Book seed file not found, skipping", "path", cfg.BookSeedPath)
			} else {
				return nil, err
			}
		}
	}

	return &App{
		cfg:          cfg,
		log:          bootLog,
		router:       wireRouter(bootLog, cfg, appServices),
		services:     appServices,
		shutdownOtel: shutdownOtel,
	}, nil
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:    ":" + a.cfg.Port,
		Handler: a.router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Starting server", "port", a.cfg.Port, "mode", a.cfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.log.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.log.Warn("Server shutdown error", "error", err)
	}
	if a.services.redisLocker != nil {
		_ = a.services.redisLocker.Close()
	}
	if err := a.shutdownOtel(ctx); err != nil {
		a.log.Warn("Tracer shutdown error", "error", err)
	}
	a.log.Sync()
	return nil
}
