package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/requestdata"
	"github.com/balaprakas/storybuddy-backend/internal/services"
)

type SessionHandler struct {
	sessionService services.SessionService
	bookService    services.BookService
}

func NewSessionHandler(sessionService services.SessionService, bookService services.BookService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, bookService: bookService}
}

// Check reports whether the caller has an active session for the book,
// without creating one.
func (sh *SessionHandler) Check(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_book_id", err)
		return
	}

	session, err := sh.sessionService.Check(c.Request.Context(), userID, bookID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		RespondOK(c, gin.H{"has_session": false})
		return
	}
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"has_session": true,
		"session":     session,
	})
}

// Start creates a session at the first stage, or resumes the caller's active
// one. restart=true archives the active session and starts over.
func (sh *SessionHandler) Start(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_book_id", err)
		return
	}
	restart := c.Query("restart") == "true"

	book, err := sh.bookService.GetBook(c.Request.Context(), bookID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	result, err := sh.sessionService.Start(c.Request.Context(), userID, bookID, restart)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	imageURL := ""
	if stage, err := sh.bookService.StageAt(c.Request.Context(), bookID, result.Session.CurrentStage); err == nil {
		imageURL = sh.bookService.ResolveImageURL(stage.ImageRef)
	}

	totalStages, err := sh.bookService.StageCount(c.Request.Context(), bookID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	payload := gin.H{
		"session":      result.Session,
		"resumed":      result.Resumed,
		"image_url":    imageURL,
		"total_stages": totalStages,
	}
	if result.Resumed {
		payload["messages"] = result.Messages
	} else {
		payload["reply"] = book.OpeningLine
		payload["emotion"] = services.EmotionHappy
	}
	RespondOK(c, payload)
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("no authenticated user"))
		return uuid.Nil, false
	}
	return rd.UserID, true
}
