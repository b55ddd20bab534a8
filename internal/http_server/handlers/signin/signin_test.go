package signin_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"gather_auth/internal/auth"
	"gather_auth/internal/auth/session"
	"gather_auth/internal/http_server/handlers/signin"
	"gather_auth/internal/lib/api/cookie"
	"gather_auth/internal/models"
	"gather_auth/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type store struct {
	users    map[string]*models.User
	sessions map[string]models.Session
	nextID   int64
}

func newStore() *store {
	return &store{
		users:    make(map[string]*models.User),
		sessions: make(map[string]models.Session),
		nextID:   1,
	}
}

func (s *store) SaveUser(_ context.Context, email, displayName string, passHash []byte) (int64, error) {
	id := s.nextID
	s.nextID++
	s.users[strings.ToLower(email)] = &models.User{
		ID: id, Email: strings.ToLower(email), DisplayName: displayName,
		PassHash: passHash, Role: models.RoleRegular, Status: models.StatusActive,
	}

	return id, nil
}

func (s *store) UpdatePassword(context.Context, int64, []byte) error { return nil }

func (s *store) User(_ context.Context, email string) (models.User, error) {
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return *u, nil
}

func (s *store) UserByID(_ context.Context, id int64) (models.User, error) {
	for _, u := range s.users {
		if u.ID == id {
			return *u, nil
		}
	}

	return models.User{}, storage.ErrUserNotFound
}

func (s *store) SaveSession(_ context.Context, userID int64, tokenHash, userAgent, ip string, expiresAt time.Time) (int64, error) {
	id := s.nextID
	s.nextID++
	s.sessions[tokenHash] = models.Session{ID: id, UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}

	return id, nil
}

func (s *store) SessionByTokenHash(_ context.Context, tokenHash string) (models.Session, error) {
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return models.Session{}, storage.ErrSessionNotFound
	}

	return sess, nil
}

func (s *store) RotateSession(context.Context, int64, string, time.Time) error { return nil }

func (s *store) DeleteSessionByTokenHash(context.Context, string) error { return nil }

func (s *store) DeleteSessionsByUserID(context.Context, int64) error { return nil }

func newHandler(t *testing.T) (http.HandlerFunc, *store) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	st := newStore()

	sessions := session.New(log, st, st, "test-secret", 15*time.Minute, 30*24*time.Hour)
	authService := auth.New(log, st, st, st)
	cookies := cookie.New(false)

	return signin.New(log, validator.New(), authService, sessions, cookies, 30*24*time.Hour), st
}

func seedUser(t *testing.T, st *store, email, password string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	_, err = st.SaveUser(context.Background(), email, "", hash)
	require.NoError(t, err)
}

func post(handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)

	return rec
}

func TestSignIn_Success(t *testing.T) {
	handler, st := newHandler(t)
	seedUser(t, st, "ann@example.com", "s3cretpass")

	rec := post(handler, `{"email":"ann@example.com","password":"s3cretpass"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refresh_token", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
	assert.Equal(t, "/", cookies[0].Path)
	assert.NotEmpty(t, cookies[0].Value)
}

func TestSignIn_WrongPassword(t *testing.T) {
	handler, st := newHandler(t)
	seedUser(t, st, "ann@example.com", "s3cretpass")

	rec := post(handler, `{"email":"ann@example.com","password":"wrongpass"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_CREDENTIALS")
	assert.Empty(t, rec.Result().Cookies())
}

func TestSignIn_Suspended(t *testing.T) {
	handler, st := newHandler(t)
	seedUser(t, st, "ann@example.com", "s3cretpass")
	st.users["ann@example.com"].Status = models.StatusSuspended

	rec := post(handler, `{"email":"ann@example.com","password":"s3cretpass"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "ACCOUNT_SUSPENDED")
}

func TestSignIn_MissingFields(t *testing.T) {
	handler, _ := newHandler(t)

	rec := post(handler, `{"email":"ann@example.com"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
