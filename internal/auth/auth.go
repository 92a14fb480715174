package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

// HeaderUserID carries the signed-in user's id, set by the identity gateway
// in front of this service.
const HeaderUserID = "X-User-ID"

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrForbidden        = errors.New("administrator role required")
)

// Actor is the caller of an operation. The zero value is anonymous.
type Actor struct {
	ID      int64  `json:"id"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"is_admin"`
}

func Anonymous() Actor {
	return Actor{}
}

func FromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Email: u.Email, IsAdmin: u.IsAdmin}
}

func (a Actor) Authenticated() bool {
	return a.ID > 0
}

func RequireAuthenticated(a Actor) error {
	if !a.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

func RequireAdmin(a Actor) error {
	if err := RequireAuthenticated(a); err != nil {
		return err
	}
	if !a.IsAdmin {
		return ErrForbidden
	}
	return nil
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(ctxKey{}).(Actor)
	return a
}

// UserResolver looks up the user behind an id asserted by the gateway.
type UserResolver interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Middleware attaches the resolved Actor to the request context. Missing,
// malformed or unknown ids leave the request anonymous; lookup failures
// other than not-found are reported through onError and also leave it
// anonymous.
func Middleware(users UserResolver, onError func(r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := Anonymous()

			if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
					user, err := users.GetUser(r.Context(), id)
					switch {
					case err == nil:
						actor = FromUser(user)
					case onError != nil && !errors.Is(err, database.ErrUserNotFound):
						onError(r, err)
					}
				}
			}

			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
