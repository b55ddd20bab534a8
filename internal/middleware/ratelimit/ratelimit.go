package rateLimit

import (
	"net/http"
	"time"

	httprate "github.com/go-chi/httprate"
)

// Per-IP route limits. The email-keyed limits for magic-link and
// password-reset requests live in the onetime service, backed by redis.

func SignIn() func(http.Handler) http.Handler {
	return limitByIP(10, 5*time.Minute)
}

func Register() func(http.Handler) http.Handler {
	return limitByIP(5, time.Hour)
}

func Refresh() func(http.Handler) http.Handler {
	return limitByIP(30, 10*time.Minute)
}

func Logout() func(http.Handler) http.Handler {
	return limitByIP(20, 10*time.Minute)
}

func VerifyMagicLink() func(http.Handler) http.Handler {
	return limitByIP(10, 10*time.Minute)
}

func ResetPassword() func(http.Handler) http.Handler {
	return limitByIP(10, time.Hour)
}

func limitByIP(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(limit, window)
}
