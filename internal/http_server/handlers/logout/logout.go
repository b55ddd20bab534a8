package logout

import (
	"context"
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
}

// New deletes the session behind the refresh cookie and clears the cookie.
// Idempotent: logging out without a live session still succeeds.
func New(
	log *slog.Logger,
	sessions *session.Manager,
	cookies *cookie.Manager,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := sessions.Invalidate(ctx, cookie.Refresh(r)); err != nil {
			log.Error("failed to invalidate session", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		cookies.ClearRefresh(w)

		log.Info("user logged out")

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
