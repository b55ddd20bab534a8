package refresh

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gather_auth/internal/auth/session"
	"gather_auth/internal/lib/api/cookie"
	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	AccessToken string `json:"access_token"`
}

// New exchanges the refresh cookie for a new access token and rotates the
// cookie. On any failure the cookie is cleared so the client stops retrying
// a dead token.
func New(
	log *slog.Logger,
	sessions *session.Manager,
	cookies *cookie.Manager,
	refreshTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		rawToken := cookie.Refresh(r)
		if rawToken == "" {
			cookies.ClearRefresh(w)

			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Unauthorized("missing refresh token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		pair, _, err := sessions.Refresh(ctx, rawToken)
		if err != nil {
			if errors.Is(err, session.ErrInvalidSession) {
				cookies.ClearRefresh(w)

				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Unauthorized("invalid or expired refresh token"))

				return
			}

			log.Error("failed to refresh session", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		cookies.SetRefresh(w, pair.RefreshToken, refreshTTL)

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			AccessToken: pair.AccessToken,
		})
	}
}
