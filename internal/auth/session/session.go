package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gather_auth/internal/lib/jwt"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/models"
	"gather_auth/internal/storage"
)

// ErrInvalidSession covers a missing, expired or already-rotated refresh
// token. Callers clear the client cookie and answer 401; the cases are not
// distinguished.
var ErrInvalidSession = errors.New("invalid session")

// Pair is the tokens handed to a client: the access token goes into the
// response body, the refresh token into the http-only cookie.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

type Store interface {
	SaveSession(ctx context.Context, userID int64, tokenHash string, userAgent, ip string, expiresAt time.Time) (int64, error)
	SessionByTokenHash(ctx context.Context, tokenHash string) (models.Session, error)
	RotateSession(ctx context.Context, id int64, newTokenHash string, expiresAt time.Time) error
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteSessionsByUserID(ctx context.Context, userID int64) error
}

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
}

// Manager owns the refresh-token-backed session lifecycle.
type Manager struct {
	log        *slog.Logger
	store      Store
	users      UserProvider
	secret     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func New(
	log *slog.Logger,
	store Store,
	users UserProvider,
	secret string,
	accessTTL, refreshTTL time.Duration,
) *Manager {
	return &Manager{
		log:        log,
		store:      store,
		users:      users,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// Create persists a new session for the user and returns a fresh token pair.
func (m *Manager) Create(ctx context.Context, user models.User, userAgent, ip string) (Pair, error) {
	const op = "session.Create"

	log := m.log.With(slog.String("op", op), slog.Int64("uid", user.ID))

	accessToken, err := jwt.NewAccessToken(user, m.secret, m.accessTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return Pair{}, fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := jwt.NewRandomToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return Pair{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = m.store.SaveSession(
		ctx,
		user.ID,
		jwt.HashToken(refreshToken),
		userAgent,
		ip,
		time.Now().Add(m.refreshTTL),
	)
	if err != nil {
		log.Error("failed to save session", sl.Err(err))
		return Pair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session created")

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// Refresh rotates the presented refresh token. The stored hash is replaced in
// place, so presenting the same token a second time fails.
func (m *Manager) Refresh(ctx context.Context, rawToken string) (Pair, models.User, error) {
	const op = "session.Refresh"

	log := m.log.With(slog.String("op", op))

	sess, err := m.store.SessionByTokenHash(ctx, jwt.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			log.Info("refresh token not found or expired")
			return Pair{}, models.User{}, ErrInvalidSession
		}

		log.Error("failed to look up session", sl.Err(err))
		return Pair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := m.users.UserByID(ctx, sess.UserID)
	if err != nil {
		log.Error("failed to load session user", sl.Err(err))
		return Pair{}, models.User{}, ErrInvalidSession
	}

	if user.Status == models.StatusSuspended {
		log.Warn("refresh for suspended account", slog.Int64("uid", user.ID))
		return Pair{}, models.User{}, ErrInvalidSession
	}

	accessToken, err := jwt.NewAccessToken(user, m.secret, m.accessTTL)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return Pair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	newRefresh, err := jwt.NewRandomToken()
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return Pair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	err = m.store.RotateSession(ctx, sess.ID, jwt.HashToken(newRefresh), time.Now().Add(m.refreshTTL))
	if err != nil {
		log.Error("failed to rotate session", sl.Err(err))
		return Pair{}, models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("session refreshed", slog.Int64("uid", user.ID))

	return Pair{AccessToken: accessToken, RefreshToken: newRefresh}, user, nil
}

// Invalidate deletes the session matching the presented refresh token.
// Idempotent: a missing session is not an error.
func (m *Manager) Invalidate(ctx context.Context, rawToken string) error {
	const op = "session.Invalidate"

	if rawToken == "" {
		return nil
	}

	if err := m.store.DeleteSessionByTokenHash(ctx, jwt.HashToken(rawToken)); err != nil {
		m.log.Error("failed to delete session", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// InvalidateAll deletes every session of the user.
func (m *Manager) InvalidateAll(ctx context.Context, userID int64) error {
	const op = "session.InvalidateAll"

	if err := m.store.DeleteSessionsByUserID(ctx, userID); err != nil {
		m.log.Error("failed to delete sessions", slog.String("op", op), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	m.log.Info("all sessions invalidated", slog.String("op", op), slog.Int64("uid", userID))

	return nil
}

func (m *Manager) DeleteSessionsByUserID(ctx context.Context, userID int64) error {
	return m.InvalidateAll(ctx, userID)
}
