package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"gather_auth/internal/lib/api/response"
	"gather_auth/internal/lib/jwt"
	"gather_auth/internal/models"

	"github.com/go-chi/render"
)

type ctxKey struct{}

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID int64
	Role   models.Role
}

// FromContext returns the identity set by Require or Optional.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

type Middleware struct {
	log    *slog.Logger
	secret string
}

func New(log *slog.Logger, secret string) *Middleware {
	return &Middleware{
		log:    log,
		secret: secret,
	}
}

// Require rejects requests without a valid bearer token. A missing token and
// an invalid or expired one both answer 401.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := m.bearerClaims(r)
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.Unauthorized("missing or invalid access token"))

			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), claims)))
	})
}

// Optional attaches the identity when a valid token is present and proceeds
// anonymously otherwise. Used by public endpoints that personalize output.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims, ok := m.bearerClaims(r); ok {
			r = r.WithContext(withIdentity(r.Context(), claims))
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole gates on the role claim. Runs after Require; a valid token with
// the wrong role answers 403, never 401.
func (m *Middleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		allowed[role] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Unauthorized("missing or invalid access token"))

				return
			}

			if !allowed[id.Role] {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error(response.CodeForbidden, "insufficient role"))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) bearerClaims(r *http.Request) (jwt.AccessClaims, bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return jwt.AccessClaims{}, false
	}

	claims, err := jwt.ParseAccessToken(strings.TrimPrefix(header, "Bearer "), m.secret)
	if err != nil {
		return jwt.AccessClaims{}, false
	}

	return claims, true
}

func withIdentity(ctx context.Context, claims jwt.AccessClaims) context.Context {
	return context.WithValue(ctx, ctxKey{}, Identity{
		UserID: claims.UserID,
		Role:   claims.Role,
	})
}
