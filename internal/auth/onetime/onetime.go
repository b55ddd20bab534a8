package onetime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gather_auth/internal/lib/jwt"
	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/models"
	"gather_auth/internal/ratelimit"
	"gather_auth/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken covers a missing, expired and already-consumed token alike,
// so callers cannot probe which tokens exist.
var ErrInvalidToken = errors.New("invalid or expired token")

type TokenStore interface {
	SaveOneTimeToken(ctx context.Context, tokenHash, email, purpose string, expiresAt time.Time) error
	ConsumeOneTimeToken(ctx context.Context, tokenHash, purpose string) (models.OneTimeToken, error)
}

type UserStore interface {
	User(ctx context.Context, email string) (models.User, error)
	SaveUser(ctx context.Context, email string, displayName string, passHash []byte) (int64, error)
	SetEmailVerified(ctx context.Context, userID int64) error
	UpdatePassword(ctx context.Context, userID int64, passHash []byte) error
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

type SessionRevoker interface {
	DeleteSessionsByUserID(ctx context.Context, userID int64) error
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) ratelimit.Decision
}

// Limits holds the ceilings for one flow: a per-IP ceiling and a per-email
// ceiling sharing one window.
type Limits struct {
	PerIP    int
	PerEmail int
	Window   time.Duration
}

// Service issues and consumes magic-link and password-reset tokens.
type Service struct {
	log         *slog.Logger
	tokens      TokenStore
	users       UserStore
	publisher   Publisher
	limiter     Limiter
	sessions    SessionRevoker
	tokenTTL    time.Duration
	baseURL     string
	magicLimits Limits
	resetLimits Limits
}

func New(
	log *slog.Logger,
	tokens TokenStore,
	users UserStore,
	publisher Publisher,
	limiter Limiter,
	sessions SessionRevoker,
	tokenTTL time.Duration,
	baseURL string,
	magicLimits, resetLimits Limits,
) *Service {
	return &Service{
		log:         log,
		tokens:      tokens,
		users:       users,
		publisher:   publisher,
		limiter:     limiter,
		sessions:    sessions,
		tokenTTL:    tokenTTL,
		baseURL:     baseURL,
		magicLimits: magicLimits,
		resetLimits: resetLimits,
	}
}

func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

// RequestMagicLink creates a sign-in token for the email and queues the
// delivery. Whether the email belongs to an account is not checked here;
// identity is resolved at verification time, so the response never reveals
// account existence.
func (s *Service) RequestMagicLink(ctx context.Context, email, ip string) error {
	const op = "onetime.RequestMagicLink"

	log := s.log.With(slog.String("op", op))

	if err := s.checkLimits(ctx, "magic-link", email, ip, s.magicLimits); err != nil {
		return err
	}

	token, err := jwt.NewRandomToken()
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.tokens.SaveOneTimeToken(
		ctx,
		jwt.HashToken(token),
		email,
		models.PurposeMagicLink,
		time.Now().Add(s.tokenTTL),
	)
	if err != nil {
		log.Error("failed to save token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	link := fmt.Sprintf("%s/auth/magic-link/verify?token=%s", s.baseURL, token)

	s.publish(ctx, log, models.Message{
		Email:   email,
		Link:    link,
		Purpose: models.PurposeMagicLink,
	})

	log.Info("magic link issued")

	return nil
}

// VerifyMagicLink consumes the token and resolves the user by the token's
// email. An unseen email creates a new account on the spot: the link proves
// mailbox ownership, and sign-in and sign-up are deliberately one flow.
func (s *Service) VerifyMagicLink(ctx context.Context, rawToken string) (models.User, error) {
	const op = "onetime.VerifyMagicLink"

	log := s.log.With(slog.String("op", op))

	token, err := s.tokens.ConsumeOneTimeToken(ctx, jwt.HashToken(rawToken), models.PurposeMagicLink)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Info("magic link token rejected")
			return models.User{}, ErrInvalidToken
		}

		log.Error("failed to consume token", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.User(ctx, token.Email)
	if errors.Is(err, storage.ErrUserNotFound) {
		id, saveErr := s.users.SaveUser(ctx, token.Email, "", nil)
		if saveErr != nil {
			log.Error("failed to create user", sl.Err(saveErr))
			return models.User{}, fmt.Errorf("%s: %w", op, saveErr)
		}

		log.Info("account created from magic link", slog.Int64("uid", id))

		user, err = s.users.User(ctx, token.Email)
	}
	if err != nil {
		log.Error("failed to load user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if user.Status == models.StatusSuspended {
		log.Warn("magic link for suspended account", slog.Int64("uid", user.ID))
		return models.User{}, ErrInvalidToken
	}

	if !user.EmailVerified {
		if err := s.users.SetEmailVerified(ctx, user.ID); err != nil {
			log.Error("failed to mark email verified", sl.Err(err))
			return models.User{}, fmt.Errorf("%s: %w", op, err)
		}

		user.EmailVerified = true
	}

	log.Info("magic link verified", slog.Int64("uid", user.ID))

	return user, nil
}

// RequestPasswordReset queues a reset link when the account exists. The
// distinction is visible only in server logs; callers get the same nil
// result either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email, ip string) error {
	const op = "onetime.RequestPasswordReset"

	log := s.log.With(slog.String("op", op))

	if err := s.checkLimits(ctx, "password-reset", email, ip, s.resetLimits); err != nil {
		return err
	}

	if _, err := s.users.User(ctx, email); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("password reset for unknown email")
			return nil
		}

		log.Error("failed to look up user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	token, err := jwt.NewRandomToken()
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	err = s.tokens.SaveOneTimeToken(
		ctx,
		jwt.HashToken(token),
		email,
		models.PurposePasswordReset,
		time.Now().Add(s.tokenTTL),
	)
	if err != nil {
		log.Error("failed to save token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	link := fmt.Sprintf("%s/auth/reset-password?token=%s", s.baseURL, token)

	s.publish(ctx, log, models.Message{
		Email:   email,
		Link:    link,
		Purpose: models.PurposePasswordReset,
	})

	log.Info("password reset issued")

	return nil
}

// ResetPassword consumes a reset token, sets the new password and drops all
// sessions of the user.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	const op = "onetime.ResetPassword"

	log := s.log.With(slog.String("op", op))

	token, err := s.tokens.ConsumeOneTimeToken(ctx, jwt.HashToken(rawToken), models.PurposePasswordReset)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			log.Info("reset token rejected")
			return ErrInvalidToken
		}

		log.Error("failed to consume token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.User(ctx, token.Email)
	if err != nil {
		log.Error("failed to load user", sl.Err(err))
		return ErrInvalidToken
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sessions.DeleteSessionsByUserID(ctx, user.ID); err != nil {
		log.Error("failed to invalidate sessions", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.Int64("uid", user.ID))

	return nil
}

func (s *Service) checkLimits(ctx context.Context, action, email, ip string, limits Limits) error {
	ipDecision := s.limiter.Allow(ctx, fmt.Sprintf("%s:ip:%s", action, ip), limits.PerIP, limits.Window)
	if !ipDecision.Allowed {
		return &ratelimit.LimitExceededError{RetryAfter: ipDecision.RetryAfter}
	}

	emailDecision := s.limiter.Allow(ctx, fmt.Sprintf("%s:email:%s", action, email), limits.PerEmail, limits.Window)
	if !emailDecision.Allowed {
		return &ratelimit.LimitExceededError{RetryAfter: emailDecision.RetryAfter}
	}

	return nil
}

// publish is fire-and-forget with respect to the caller's response: a
// delivery failure must not fail the request, or the error would reveal
// whether the address is deliverable.
func (s *Service) publish(ctx context.Context, log *slog.Logger, msg models.Message) {
	if err := s.publisher.SendMessage(ctx, msg); err != nil {
		log.Error("failed to queue email", sl.Err(err))
	}
}
