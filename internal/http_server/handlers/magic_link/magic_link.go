package magicLink

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gather_auth/internal/auth/onetime"
	"gather_auth/internal/lib/api/request"
	resp "gather_auth/internal/lib/api/response"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/ratelimit"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email string `json:"email" validate:"required,email"`
}

type Response struct {
	resp.Response
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

const sentMessage = "If the address is valid, a sign-in link is on its way."

// New queues a magic-link email. The response is the same whether or not an
// account exists for the address.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	tokens *onetime.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.magicLink.New"

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

		if err := tokens.RequestMagicLink(ctx, req.Email, request.ClientIP(r)); err != nil {
			var limitErr *ratelimit.LimitExceededError
			if errors.As(err, &limitErr) {
				retryAfter := ratelimit.RetryAfterSeconds(limitErr.RetryAfter)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, resp.RateLimited(retryAfter))

				return
			}

			log.Error("failed to issue magic link", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Internal())

			return
		}

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			Message:   sentMessage,
			ExpiresIn: int(tokens.TokenTTL().Seconds()),
		})
	}
}
