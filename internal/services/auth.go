package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/domain"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/dbctx"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/pkg/logger"
	"github.com/balaprakas/storybuddy-backend/internal/repos"
	"github.com/balaprakas/storybuddy-backend/internal/requestdata"
)

type JWTClaims struct {
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// TokenPair is a fresh access token plus the rotating refresh token that
// goes with it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

type AuthService interface {
	RegisterUser(ctx context.Context, in RegisterInput) (*domain.User, error)
	LoginUser(ctx context.Context, email, password string) (*TokenPair, error)
	// LoginWithGoogle verifies the Google ID token and signs in the matching
	// user, creating one on first sign-in.
	LoginWithGoogle(ctx context.Context, idToken string) (*TokenPair, error)
	RefreshUser(ctx context.Context) (*TokenPair, error)
	LogoutUser(ctx context.Context) error
	// SetContextFromToken validates the bearer token and attaches request data
	// (user id, token strings) to the context for downstream handlers.
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	avatarService AvatarService
	verifier      GoogleVerifier
	jwtSecretKey  string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	avatarService AvatarService,
	verifier GoogleVerifier,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		avatarService: avatarService,
		verifier:      verifier,
		jwtSecretKey:  jwtSecretKey,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (as *authService) RegisterUser(ctx context.Context, in RegisterInput) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", pkgerrors.ErrInvalidArgument)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", pkgerrors.ErrInvalidArgument)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		Password:  string(hashed),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}

	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx, tx)

		exists, err := as.userRepo.EmailExists(dbc, email)
		if err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if exists {
			return fmt.Errorf("email already registered: %w", pkgerrors.ErrConflict)
		}

		if as.avatarService != nil {
			if err := as.avatarService.CreateAndUploadUserAvatar(ctx, user); err != nil {
				// A missing avatar should never block signup.
				as.log.Warn("Failed to create user avatar", "user_id", user.ID, "error", err)
			}
		}

		if _, err := as.userRepo.Create(dbc, []*domain.User{user}); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	as.log.Info("Registered user", "user_id", user.ID)
	return user, nil
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	users, err := as.userRepo.GetByEmails(dbctx.New(ctx, nil), []string{email})
	if err != nil {
		return nil, fmt.Errorf("load user by email: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("invalid email or password: %w", pkgerrors.ErrUnauthorized)
	}
	user := users[0]
	if user.Password == "" {
		// Google-only account.
		return nil, fmt.Errorf("invalid email or password: %w", pkgerrors.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid email or password: %w", pkgerrors.ErrUnauthorized)
	}

	return as.issueTokens(ctx, user)
}

func (as *authService) LoginWithGoogle(ctx context.Context, idToken string) (*TokenPair, error) {
	if as.verifier == nil {
		return nil, fmt.Errorf("google sign-in not configured: %w", pkgerrors.ErrInvalidArgument)
	}
	identity, err := as.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("google token rejected: %w", pkgerrors.ErrUnauthorized)
	}
	if identity.Email == "" || !identity.EmailVerified {
		return nil, fmt.Errorf("google account email not verified: %w", pkgerrors.ErrUnauthorized)
	}
	email := strings.ToLower(identity.Email)

	var user *domain.User
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx, tx)

		users, err := as.userRepo.GetByEmails(dbc, []string{email})
		if err != nil {
			return fmt.Errorf("load user by email: %w", err)
		}
		if len(users) > 0 {
			user = users[0]
			return nil
		}

		user = &domain.User{
			ID:        uuid.New(),
			Email:     email,
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			AvatarURL: identity.PictureURL,
		}
		if user.AvatarURL == "" && as.avatarService != nil {
			if err := as.avatarService.CreateAndUploadUserAvatar(ctx, user); err != nil {
				as.log.Warn("Failed to create user avatar", "user_id", user.ID, "error", err)
			}
		}
		if _, err := as.userRepo.Create(dbc, []*domain.User{user}); err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		as.log.Info("Created user from google sign-in", "user_id", user.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return as.issueTokens(ctx, user)
}

// issueTokens mints an access/refresh pair, replacing any tokens the user
// still holds, and records the login time.
func (as *authService) issueTokens(ctx context.Context, user *domain.User) (*TokenPair, error) {
	pair := TokenPair{User: user}
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx, tx)

		if err := as.userTokenRepo.DeleteByUserIDs(dbc, []uuid.UUID{user.ID}); err != nil {
			return fmt.Errorf("clear stale tokens: %w", err)
		}

		accessToken, err := as.generateAccessToken(user)
		if err != nil {
			return fmt.Errorf("generate access token: %w", err)
		}
		pair.AccessToken = accessToken
		pair.RefreshToken = uuid.New().String()

		userToken := &domain.UserToken{
			ID:           uuid.New(),
			UserID:       user.ID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    time.Now().Add(as.refreshTTL),
		}
		if _, err := as.userTokenRepo.Create(dbc, []*domain.UserToken{userToken}); err != nil {
			return fmt.Errorf("create user token: %w", err)
		}

		return as.userRepo.UpdateFields(dbc, user.ID, map[string]interface{}{"last_login_at": time.Now()})
	})
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (as *authService) RefreshUser(ctx context.Context) (*TokenPair, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token in request: %w", pkgerrors.ErrUnauthorized)
	}

	var pair TokenPair
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx, tx)

		foundTokens, err := as.userTokenRepo.GetByRefreshTokens(dbc, []string{rd.RefreshToken})
		if err != nil {
			return fmt.Errorf("load refresh token: %w", err)
		}
		if len(foundTokens) == 0 {
			return fmt.Errorf("unknown refresh token: %w", pkgerrors.ErrUnauthorized)
		}
		existing := foundTokens[0]

		if existing.ExpiresAt.Before(time.Now()) {
			if err := as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{existing.ID}); err != nil {
				return fmt.Errorf("delete expired token: %w", err)
			}
			return fmt.Errorf("refresh token expired: %w", pkgerrors.ErrUnauthorized)
		}

		users, err := as.userRepo.GetByIDs(dbc, []uuid.UUID{existing.UserID})
		if err != nil {
			return fmt.Errorf("load user for refresh: %w", err)
		}
		if len(users) == 0 {
			return fmt.Errorf("no user for refresh token: %w", pkgerrors.ErrUnauthorized)
		}
		user := users[0]
		pair.User = user

		accessToken, err := as.generateAccessToken(user)
		if err != nil {
			return fmt.Errorf("generate access token: %w", err)
		}
		pair.AccessToken = accessToken
		pair.RefreshToken = uuid.New().String()

		replacement := &domain.UserToken{
			ID:           uuid.New(),
			UserID:       user.ID,
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			ExpiresAt:    time.Now().Add(as.refreshTTL),
		}
		if _, err := as.userTokenRepo.Create(dbc, []*domain.UserToken{replacement}); err != nil {
			return fmt.Errorf("create replacement token: %w", err)
		}
		return as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{existing.ID})
	})
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

func (as *authService) LogoutUser(ctx context.Context) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.TokenString == "" {
		return fmt.Errorf("no access token in request: %w", pkgerrors.ErrUnauthorized)
	}
	return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.New(ctx, tx)
		foundTokens, err := as.userTokenRepo.GetByAccessTokens(dbc, []string{rd.TokenString})
		if err != nil {
			return fmt.Errorf("load token for logout: %w", err)
		}
		if len(foundTokens) == 0 {
			return nil
		}
		return as.userTokenRepo.DeleteByIDs(dbc, []uuid.UUID{foundTokens[0].ID})
	})
}

func (as *authService) generateAccessToken(user *domain.User) (string, error) {
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.jwtSecretKey))
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, fmt.Errorf("missing bearer token: %w", pkgerrors.ErrUnauthorized)
	}

	parsedToken, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(as.jwtSecretKey), nil
	})
	if err != nil || !parsedToken.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ctx, fmt.Errorf("token expired: %w", pkgerrors.ErrUnauthorized)
		}
		return ctx, fmt.Errorf("invalid token: %w", pkgerrors.ErrUnauthorized)
	}
	claims, ok := parsedToken.Claims.(*JWTClaims)
	if !ok {
		return ctx, fmt.Errorf("invalid token claims: %w", pkgerrors.ErrUnauthorized)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, fmt.Errorf("invalid user id in token: %w", pkgerrors.ErrUnauthorized)
	}

	rd := &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}
	// The refresh token rides along so /auth/refresh can rotate it without a
	// second lookup. Missing row means the token was revoked.
	foundTokens, err := as.userTokenRepo.GetByAccessTokens(dbctx.New(ctx, nil), []string{tokenString})
	if err != nil {
		return ctx, fmt.Errorf("load user token: %w", err)
	}
	if len(foundTokens) == 0 {
		return ctx, fmt.Errorf("token revoked: %w", pkgerrors.ErrUnauthorized)
	}
	rd.RefreshToken = foundTokens[0].RefreshToken

	return requestdata.WithRequestData(ctx, rd), nil
}

func (as *authService) GetAccessTTL() time.Duration {
	return as.accessTTL
}
