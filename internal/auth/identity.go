package auth

import (
	"context"

	"feedcast/internal/apperr"
	"feedcast/internal/models"
)

// Identity is the authenticated caller. Handlers pass it down explicitly.
type Identity struct {
	UserID int64
	Plan   models.Plan
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.UserID > 0
}

// RequireOwner hides resources of other users behind the same NotFound a
// missing resource gets.
func RequireOwner(id Identity, ownerID int64, notFoundKey string) error {
	if id.UserID == 0 || id.UserID != ownerID {
		return apperr.NotFound(notFoundKey)
	}
	return nil
}
