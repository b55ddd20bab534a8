package changePassword

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"gather_auth/internal/auth"
	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type Response struct {
	resp.Response
}

// New changes the caller's password. Requires authentication; every session
// of the user is invalidated afterwards, this one included.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	authService *auth.Auth,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.changePassword.New"

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

		err = authService.ChangePassword(ctx, id.UserID, req.CurrentPassword, req.NewPassword)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidCredentials):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error(resp.CodeInvalidCredentials, "current password is wrong"))
			case errors.Is(err, auth.ErrSamePassword):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(resp.CodeSamePassword, "new password must differ from the current one"))
			default:
				log.Error("failed to change password", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Internal())
			}

			return
		}

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
