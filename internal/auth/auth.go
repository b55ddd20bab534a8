package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	sl "gather_auth/internal/lib/logger"
	"gather_auth/internal/models"
	"gather_auth/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrUserExists         = errors.New("user already exists")
	ErrSamePassword       = errors.New("new password matches the current one")
)

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	sessions    SessionRevoker
}

type UserSaver interface {
	SaveUser(ctx context.Context, email string, displayName string, passHash []byte) (uid int64, err error)
	UpdatePassword(ctx context.Context, userID int64, passHash []byte) error
}

type UserProvider interface {
	User(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
}

// SessionRevoker drops every session of a user; called on password change.
type SessionRevoker interface {
	DeleteSessionsByUserID(ctx context.Context, userID int64) error
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	sessions SessionRevoker,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		sessions:    sessions,
	}
}

func (a *Auth) Register(
	ctx context.Context,
	email, password, displayName string,
) (models.User, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.usrSaver.SaveUser(ctx, email, displayName, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return models.User{}, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrProvider.UserByID(ctx, id)
	if err != nil {
		log.Error("failed to load registered user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", id))

	return user, nil
}

// SignIn checks the credentials. A missing user and a wrong password are
// indistinguishable to the caller.
func (a *Auth) SignIn(
	ctx context.Context,
	email, password string,
) (models.User, error) {
	const op = "auth.SignIn"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.User(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Info("user not found")
			return models.User{}, ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	if user.PassHash == nil {
		log.Info("account has no password set")
		return models.User{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials")
		return models.User{}, ErrInvalidCredentials
	}

	if user.Status == models.StatusSuspended {
		log.Warn("suspended account sign-in attempt", slog.Int64("uid", user.ID))
		return models.User{}, ErrAccountSuspended
	}

	log.Info("user signed in", slog.Int64("uid", user.ID))

	return user, nil
}

func (a *Auth) UserByID(ctx context.Context, id int64) (models.User, error) {
	return a.usrProvider.UserByID(ctx, id)
}

// ChangePassword updates the password and invalidates every session of the
// user, forcing re-authentication on all devices. The current password is
// only required when the account has one; magic-link accounts set their
// first password here.
func (a *Auth) ChangePassword(
	ctx context.Context,
	userID int64,
	currentPassword, newPassword string,
) error {
	const op = "auth.ChangePassword"

	log := a.log.With(slog.String("op", op), slog.Int64("uid", userID))

	user, err := a.usrProvider.UserByID(ctx, userID)
	if err != nil {
		log.Error("failed to load user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if user.PassHash != nil {
		if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(currentPassword)); err != nil {
			log.Info("wrong current password")
			return ErrInvalidCredentials
		}

		if bcrypt.CompareHashAndPassword(user.PassHash, []byte(newPassword)) == nil {
			return ErrSamePassword
		}
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.usrSaver.UpdatePassword(ctx, userID, newHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.sessions.DeleteSessionsByUserID(ctx, userID); err != nil {
		log.Error("failed to invalidate sessions", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed, sessions invalidated")

	return nil
}
