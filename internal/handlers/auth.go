package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/balaprakas/storybuddy-backend/internal/services"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (ah *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Password  string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, err := ah.authService.RegisterUser(c.Request.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"user": user})
}

func (ah *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	pair, err := ah.authService.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	ah.respondTokens(c, pair)
}

func (ah *AuthHandler) GoogleLogin(c *gin.Context) {
	// Google Identity Services posts the ID token as "credential"; older
	// clients send "id_token".
	var req struct {
		Credential string `json:"credential"`
		IDToken    string `json:"id_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	idToken := req.Credential
	if idToken == "" {
		idToken = req.IDToken
	}
	pair, err := ah.authService.LoginWithGoogle(c.Request.Context(), idToken)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	ah.respondTokens(c, pair)
}

func (ah *AuthHandler) Refresh(c *gin.Context) {
	pair, err := ah.authService.RefreshUser(c.Request.Context())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	ah.respondTokens(c, pair)
}

func (ah *AuthHandler) Logout(c *gin.Context) {
	if err := ah.authService.LogoutUser(c.Request.Context()); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "logged out successfully"})
}

func (ah *AuthHandler) respondTokens(c *gin.Context, pair *services.TokenPair) {
	expiresIn := int(ah.authService.GetAccessTTL().Seconds())
	payload := gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_in":    expiresIn,
	}
	if pair.User != nil {
		payload["user"] = pair.User
	}
	RespondOK(c, payload)
}
