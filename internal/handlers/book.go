package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/balaprakas/storybuddy-backend/internal/services"
)

type BookHandler struct {
	bookService services.BookService
}

func NewBookHandler(bookService services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

func (bh *BookHandler) ListBooks(c *gin.Context) {
	books, err := bh.bookService.ListBooks(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(books))
	for _, b := range books {
		out = append(out, gin.H{
			"id":          b.ID,
			"slug":        b.Slug,
			"title":       b.Title,
			"description": b.Description,
			"cover_image": bh.bookService.ResolveImageURL(b.CoverImage),
		})
	}
	RespondOK(c, gin.H{"books": out})
}

func (bh *BookHandler) ListStages(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_book_id", err)
		return
	}
	stages, err := bh.bookService.StagesFor(c.Request.Context(), bookID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	out := make([]gin.H, 0, len(stages))
	for _, st := range stages {
		out = append(out, gin.H{
			"number": st.StageNumber,
			"theme":  st.Theme,
			"image":  bh.bookService.ResolveImageURL(st.ImageRef),
		})
	}
	RespondOK(c, gin.H{"stages": out})
}
