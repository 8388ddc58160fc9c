package dbctx

import (
	"context"

	"gorm.io/gorm"

	"github.com/balaprakas/storybuddy-backend/internal/pkg/ctxutil"
)

// Context bundles a request context with an optional GORM transaction.
// Repos fall back to their own *gorm.DB when Tx is nil.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

func New(ctx context.Context, tx *gorm.DB) Context {
	return Context{Ctx: ctxutil.Default(ctx), Tx: tx}
}
