package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
)

func TestRespondServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid argument", fmt.Errorf("bad input: %w", pkgerrors.ErrInvalidArgument), http.StatusBadRequest},
		{"unauthorized", fmt.Errorf("nope: %w", pkgerrors.ErrUnauthorized), http.StatusUnauthorized},
		{"not found", fmt.Errorf("gone: %w", pkgerrors.ErrNotFound), http.StatusNotFound},
		{"conflict", fmt.Errorf("busy: %w", pkgerrors.ErrConflict), http.StatusConflict},
		{"unmapped", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			RespondServiceError(c, tc.err)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
