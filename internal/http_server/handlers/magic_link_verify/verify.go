package magicLinkVerify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gather_auth/internal/auth/onetime"
	"gather_auth/internal/auth/session"
	"gather_auth/internal/lib/api/cookie"
	"gather_auth/internal/lib/api/request"
	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Token string `json:"token" validate:"required"`
}

type Response struct {
	resp.Response
	User        models.Public `json:"user"`
	AccessToken string        `json:"access_token"`
}

// New consumes a magic-link token and signs the resolved user in. An expired
// and an unknown token produce the same 401.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	tokens *onetime.Service,
	sessions *session.Manager,
	cookies *cookie.Manager,
	refreshTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.magicLinkVerify.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error(resp.CodeValidation, "failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Info("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		user, err := tokens.VerifyMagicLink(ctx, req.Token)
		if err != nil {
			if errors.Is(err, onetime.ErrInvalidToken) {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Unauthorized("invalid or expired token"))

				return
			}

			log.Error("failed to verify magic link", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		pair, err := sessions.Create(ctx, user, r.UserAgent(), request.ClientIP(r))
		if err != nil {
			log.Error("failed to create session", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		cookies.SetRefresh(w, pair.RefreshToken, refreshTTL)

		render.JSON(w, r, Response{
			Response:    resp.OK(),
			User:        user.Public(),
			AccessToken: pair.AccessToken,
		})
	}
}
