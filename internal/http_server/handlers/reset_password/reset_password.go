package resetPassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gather_auth/internal/auth/onetime"
	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

type Response struct {
	resp.Response
}

// New sets a new password from a reset token. All sessions of the user are
// invalidated on success.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	tokens *onetime.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.resetPassword.New"

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

		if err := tokens.ResetPassword(ctx, req.Token, req.Password); err != nil {
			if errors.Is(err, onetime.ErrInvalidToken) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.CodeValidation, "invalid or expired token"))

				return
			}

			log.Error("failed to reset password", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		log.Info("password reset completed")

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
