package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gather_auth/internal/auth"
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
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name"`
}

type Response struct {
	resp.Response
	User        models.Public `json:"user"`
	AccessToken string        `json:"access_token"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
	sessions *session.Manager,
	cookies *cookie.Manager,
	refreshTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

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

		user, err := authService.Register(ctx, req.Email, req.Password, req.DisplayName)
		if err != nil {
			if errors.Is(err, auth.ErrUserExists) {
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error(resp.CodeUserExists, "an account with this email already exists"))

				return
			}

			log.Error("failed to register user", sl.Err(err))

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

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, Response{
			Response:    resp.OK(),
			User:        user.Public(),
			AccessToken: pair.AccessToken,
		})
	}
}
