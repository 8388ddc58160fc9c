package app

import (
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/repos"
)

type appRepos struct {
	user      repos.UserRepo
	userToken repos.UserTokenRepo
	book      repos.BookRepo
	stage     repos.StoryStageRepo
	session   repos.StorySessionRepo
	message   repos.ChatMessageRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) *appRepos {
	return &appRepos{
		user:      repos.NewUserRepo(db, log),
		userToken: repos.NewUserTokenRepo(db, log),
		book:      repos.NewBookRepo(db, log),
		stage:     repos.NewStoryStageRepo(db, log),
		session:   repos.NewStorySessionRepo(db, log),
		message:   repos.NewChatMessageRepo(db, log),
	}
}
