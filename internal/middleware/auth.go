package middleware

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/auth"
	"feedcast/internal/httpx"
	"feedcast/internal/models"
)

// UserFinder loads the user behind a verified token.
type UserFinder interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// Authenticator verifies the session cookie and stores the caller's
// auth.Identity in the request context.
type Authenticator struct {
	tokens     *auth.TokenManager
	users      UserFinder
	cookieName string
}

func NewAuthenticator(tokens *auth.TokenManager, users UserFinder, cookieName string) *Authenticator {
	return &Authenticator{tokens: tokens, users: users, cookieName: cookieName}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(a.cookieName)
		if err != nil {
			httpx.Error(w, r, auth.ErrUnauthorized)
			return
		}
		userID, err := a.tokens.Verify(cookie.Value)
		if err != nil {
			log.Debugf("Rejected session token: %v", err)
			httpx.Error(w, r, auth.ErrUnauthorized)
			return
		}
		user, err := a.users.GetUserByID(r.Context(), userID)
		if apperr.IsKind(err, apperr.KindNotFound) {
			httpx.Error(w, r, auth.ErrUnauthorized)
			return
		}
		if err != nil {
			httpx.Error(w, r, err)
			return
		}

		ctx := auth.WithIdentity(r.Context(), auth.Identity{UserID: user.ID, Plan: user.Plan})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
