package me

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/middleware/authn"
	"gather_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
}

type Response struct {
	resp.Response
	User models.Public `json:"user"`
}

func New(log *slog.Logger, users UserProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.me.New"

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

		user, err := users.UserByID(ctx, id.UserID)
		if err != nil {
			log.Error("failed to load user", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			User:     user.Public(),
		})
	}
}
