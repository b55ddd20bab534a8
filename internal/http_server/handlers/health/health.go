package health

import (
	"context"
	"net/http"
	"time"

	resp "gather_auth/internal/lib/api/response"

	"github.com/go-chi/render"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Response struct {
	resp.Response
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// New reports liveness of the backing stores. The service answers 200 as
// long as it is up; per-store status is in the body.
func New(db, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Postgres: status(db.Ping(ctx)),
			Redis:    status(cache.Ping(ctx)),
		})
	}
}

func status(err error) string {
	if err != nil {
		return "down"
	}

	return "up"
}
