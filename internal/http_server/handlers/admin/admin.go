package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type StatsProvider interface {
	CountUsers(ctx context.Context) (int64, error)
	CountActiveSessions(ctx context.Context) (int64, error)
}

type UserLister interface {
	RecentUsers(ctx context.Context, limit int) ([]models.User, error)
}

type StatsResponse struct {
	resp.Response
	Users          int64 `json:"users"`
	ActiveSessions int64 `json:"active_sessions"`
}

// NewStats reports aggregate counts. Reachable by moderators and admins.
func NewStats(log *slog.Logger, stats StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.NewStats"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		users, err := stats.CountUsers(ctx)
		if err != nil {
			log.Error("failed to count users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		sessions, err := stats.CountActiveSessions(ctx)
		if err != nil {
			log.Error("failed to count sessions", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		render.JSON(w, r, StatsResponse{
			Response:       resp.OK(),
			Users:          users,
			ActiveSessions: sessions,
		})
	}
}

type UsersResponse struct {
	resp.Response
	Users []models.Public `json:"users"`
}

// NewUsers lists the most recently registered accounts. Admin only.
func NewUsers(log *slog.Logger, lister UserLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.NewUsers"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		users, err := lister.RecentUsers(ctx, 50)
		if err != nil {
			log.Error("failed to list users", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		public := make([]models.Public, 0, len(users))
		for _, u := range users {
			public = append(public, u.Public())
		}

		render.JSON(w, r, UsersResponse{
			Response: resp.OK(),
			Users:    public,
		})
	}
}
