package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/domain"
	pkgerrors "github.com/balaprakas/storybuddy-backend/internal/pkg/errors"
	"github.com/balaprakas/storybuddy-backend/internal/repos"
	"github.com/balaprakas/storybuddy-backend/internal/repos/testutil"
	"github.com/balaprakas/storybuddy-backend/internal/requestdata"
)

func newAuthFixture(t *testing.T) (AuthService, *gorm.DB) {
	t.Helper()
	gdb := testutil.OpenTestDB(t)
	log := testutil.NewTestLogger(t)
	userRepo := repos.NewUserRepo(gdb, log)
	tokenRepo := repos.NewUserTokenRepo(gdb, log)
	svc := NewAuthService(gdb, log, userRepo, tokenRepo, nil, nil, "test-secret", 30*time.Minute, 24*time.Hour)
	return svc, gdb
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, RegisterInput{
		Email:     "Tom@Example.com",
		Password:  "supersecret",
		FirstName: "Tom",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Email != "tom@example.com" {
		t.Fatalf("email not normalized: %q", user.Email)
	}
	if user.Password == "supersecret" {
		t.Fatalf("password stored in plaintext")
	}

	pair, err := svc.LoginUser(ctx, "tom@example.com", "supersecret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("incomplete token pair: %+v", pair)
	}

	if _, err := svc.LoginUser(ctx, "tom@example.com", "wrongpass"); !errors.Is(err, pkgerrors.ErrUnauthorized) {
		t.Fatalf("wrong password = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.LoginUser(ctx, "nobody@example.com", "supersecret"); !errors.Is(err, pkgerrors.ErrUnauthorized) {
		t.Fatalf("unknown email = %v, want ErrUnauthorized", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	if _, err := svc.RegisterUser(ctx, RegisterInput{Email: "not-an-email", Password: "supersecret"}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("bad email = %v, want ErrInvalidArgument", err)
	}
	if _, err := svc.RegisterUser(ctx, RegisterInput{Email: "a@b.com", Password: "short"}); !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("short password = %v, want ErrInvalidArgument", err)
	}

	if _, err := svc.RegisterUser(ctx, RegisterInput{Email: "dup@example.com", Password: "supersecret"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.RegisterUser(ctx, RegisterInput{Email: "dup@example.com", Password: "supersecret"}); !errors.Is(err, pkgerrors.ErrConflict) {
		t.Fatalf("duplicate email = %v, want ErrConflict", err)
	}
}

func TestSetContextFromToken(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	user, err := svc.RegisterUser(ctx, RegisterInput{Email: "tom@example.com", Password: "supersecret"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := svc.LoginUser(ctx, "tom@example.com", "supersecret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	authed, err := svc.SetContextFromToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("set context: %v", err)
	}
	rd := requestdata.GetRequestData(authed)
	if rd == nil || rd.UserID != user.ID {
		t.Fatalf("request data = %+v", rd)
	}
	if rd.RefreshToken != pair.RefreshToken {
		t.Fatalf("refresh token not attached")
	}

	if _, err := svc.SetContextFromToken(ctx, "garbage"); !errors.Is(err, pkgerrors.ErrUnauthorized) {
		t.Fatalf("garbage token = %v, want ErrUnauthorized", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	svc, gdb := newAuthFixture(t)
	ctx := context.Background()

	if _, err := svc.RegisterUser(ctx, RegisterInput{Email: "tom@example.com", Password: "supersecret"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := svc.LoginUser(ctx, "tom@example.com", "supersecret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	authed, err := svc.SetContextFromToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("set context: %v", err)
	}
	next, err := svc.RefreshUser(authed)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken || next.AccessToken == pair.AccessToken {
		t.Fatalf("refresh did not rotate tokens")
	}

	// The old pair is revoked.
	if _, err := svc.SetContextFromToken(ctx, pair.AccessToken); !errors.Is(err, pkgerrors.ErrUnauthorized) {
		t.Fatalf("old access token = %v, want ErrUnauthorized", err)
	}

	var count int64
	if err := gdb.Model(&domain.UserToken{}).Count(&count).Error; err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if count != 1 {
		t.Fatalf("token rows = %d, want 1", count)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newAuthFixture(t)
	ctx := context.Background()

	if _, err := svc.RegisterUser(ctx, RegisterInput{Email: "tom@example.com", Password: "supersecret"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := svc.LoginUser(ctx, "tom@example.com", "supersecret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	authed, err := svc.SetContextFromToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("set context: %v", err)
	}

	if err := svc.LogoutUser(authed); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.SetContextFromToken(ctx, pair.AccessToken); !errors.Is(err, pkgerrors.ErrUnauthorized) {
		t.Fatalf("post-logout token = %v, want ErrUnauthorized", err)
	}
}
