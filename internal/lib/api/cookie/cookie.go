package cookie

import (
	"net/http"
	"time"
)

const refreshName = "refresh_token"

// Manager writes and clears the refresh-token cookie. The Secure flag is
// driven by the environment so local setups keep working over plain HTTP.
type Manager struct {
	secure bool
}

func New(secure bool) *Manager {
	return &Manager{secure: secure}
}

func (m *Manager) SetRefresh(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (m *Manager) ClearRefresh(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Refresh returns the presented refresh token, or "" when the cookie is absent.
func Refresh(r *http.Request) string {
	c, err := r.Cookie(refreshName)
	if err != nil {
		return ""
	}

	return c.Value
}
