package revokeSessions

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"gather_auth/internal/auth/session"
	"gather_auth/internal/lib/api/cookie"
	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

// New deletes every session of the caller, signing them out everywhere.
func New(
	log *slog.Logger,
	sessions *session.Manager,
	cookies *cookie.Manager,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.revokeSessions.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id, ok := authn.FromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Unauthorized("missing or invalid access token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := sessions.InvalidateAll(ctx, id.UserID); err != nil {
			log.Error("failed to revoke sessions", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		cookies.ClearRefresh(w)

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
