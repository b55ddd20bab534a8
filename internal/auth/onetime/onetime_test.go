package onetime_test

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"gather_auth/internal/auth/onetime"
	"gather_auth/internal/models"
	"gather_auth/internal/ratelimit"
	"gather_auth/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeTokenStore struct {
	tokens map[string]models.OneTimeToken
	nextID int64
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]models.OneTimeToken), nextID: 1}
}

func (s *fakeTokenStore) SaveOneTimeToken(_ context.Context, tokenHash, email, purpose string, expiresAt time.Time) error {
	s.tokens[tokenHash] = models.OneTimeToken{
		ID:        s.nextID,
		TokenHash: tokenHash,
		Email:     strings.ToLower(email),
		Purpose:   purpose,
		ExpiresAt: expiresAt,
	}
	s.nextID++

	return nil
}

func (s *fakeTokenStore) ConsumeOneTimeToken(_ context.Context, tokenHash, purpose string) (models.OneTimeToken, error) {
	tok, ok := s.tokens[tokenHash]
	if !ok || tok.Purpose != purpose || tok.ConsumedAt != nil || time.Now().After(tok.ExpiresAt) {
		return models.OneTimeToken{}, storage.ErrTokenNotFound
	}

	now := time.Now()
	tok.ConsumedAt = &now
	s.tokens[tokenHash] = tok

	return tok, nil
}

type fakeUserStore struct {
	users   map[string]*models.User
	nextID  int64
	revoked map[int64]bool
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*models.User), nextID: 1, revoked: make(map[int64]bool)}
}

func (s *fakeUserStore) User(_ context.Context, email string) (models.User, error) {
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}

	return *u, nil
}

func (s *fakeUserStore) SaveUser(_ context.Context, email, displayName string, passHash []byte) (int64, error) {
	key := strings.ToLower(email)
	if _, ok := s.users[key]; ok {
		return 0, storage.ErrUserExists
	}

	id := s.nextID
	s.nextID++

	s.users[key] = &models.User{
		ID:          id,
		Email:       key,
		DisplayName: displayName,
		PassHash:    passHash,
		Role:        models.RoleRegular,
		Status:      models.StatusActive,
	}

	return id, nil
}

func (s *fakeUserStore) SetEmailVerified(_ context.Context, userID int64) error {
	for _, u := range s.users {
		if u.ID == userID {
			u.EmailVerified = true
			return nil
		}
	}

	return storage.ErrUserNotFound
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, userID int64, passHash []byte) error {
	for _, u := range s.users {
		if u.ID == userID {
			u.PassHash = passHash
			return nil
		}
	}

	return storage.ErrUserNotFound
}

func (s *fakeUserStore) DeleteSessionsByUserID(_ context.Context, userID int64) error {
	s.revoked[userID] = true
	return nil
}

type fakePublisher struct {
	messages []models.Message
}

func (p *fakePublisher) SendMessage(_ context.Context, msg models.Message) error {
	p.messages = append(p.messages, msg)
	return nil
}

type fakeLimiter struct {
	denied map[string]bool
}

func (l *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) ratelimit.Decision {
	if l.denied[key] {
		return ratelimit.Decision{Allowed: false, RetryAfter: time.Minute}
	}

	return ratelimit.Decision{Allowed: true, Remaining: limit}
}

type fixture struct {
	svc       *onetime.Service
	tokens    *fakeTokenStore
	users     *fakeUserStore
	publisher *fakePublisher
	limiter   *fakeLimiter
}

func setup(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()

	f := &fixture{
		tokens:    newFakeTokenStore(),
		users:     newFakeUserStore(),
		publisher: &fakePublisher{},
		limiter:   &fakeLimiter{denied: make(map[string]bool)},
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	f.svc = onetime.New(
		log,
		f.tokens,
		f.users,
		f.publisher,
		f.limiter,
		f.users,
		ttl,
		"http://localhost:8080",
		onetime.Limits{PerIP: 10, PerEmail: 5, Window: time.Hour},
		onetime.Limits{PerIP: 5, PerEmail: 3, Window: time.Hour},
	)

	return f
}

// lastToken pulls the raw token out of the most recently queued email link.
func lastToken(t *testing.T, p *fakePublisher) string {
	t.Helper()

	require.NotEmpty(t, p.messages)

	link, err := url.Parse(p.messages[len(p.messages)-1].Link)
	require.NoError(t, err)

	token := link.Query().Get("token")
	require.NotEmpty(t, token)

	return token
}

func TestMagicLink_VerifyCreatesAccount(t *testing.T) {
	f := setup(t, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestMagicLink(ctx, "new@example.com", "1.2.3.4"))

	user, err := f.svc.VerifyMagicLink(ctx, lastToken(t, f.publisher))
	require.NoError(t, err)

	assert.Equal(t, "new@example.com", user.Email)
	assert.True(t, user.EmailVerified)
	assert.Nil(t, user.PassHash)
}

func TestMagicLink_VerifyExistingAccount(t *testing.T) {
	f := setup(t, 15*time.Minute)
	ctx := context.Background()

	id, err := f.users.SaveUser(ctx, "ann@example.com", "Ann", []byte("hash"))
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestMagicLink(ctx, "ann@example.com", "1.2.3.4"))

	user, err := f.svc.VerifyMagicLink(ctx, lastToken(t, f.publisher))
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
}

func TestMagicLink_ConsumedOnce(t *testing.T) {
	f := setup(t, 15*time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestMagicLink(ctx, "ann@example.com", "1.2.3.4"))
	token := lastToken(t, f.publisher)

	_, err := f.svc.VerifyMagicLink(ctx, token)
	require.NoError(t, err)

	_, err = f.svc.VerifyMagicLink(ctx, token)
	assert.ErrorIs(t, err, onetime.ErrInvalidToken)
}

func TestMagicLink_Expired(t *testing.T) {
	f := setup(t, -time.Minute)
	ctx := context.Background()

	require.NoError(t, f.svc.RequestMagicLink(ctx, "ann@example.com", "1.2.3.4"))

	_, err := f.svc.VerifyMagicLink(ctx, lastToken(t, f.publisher))
	assert.ErrorIs(t, err, onetime.ErrInvalidToken)
}

func TestMagicLink_UnknownTokenRejected(t *testing.T) {
	f := setup(t, 15*time.Minute)

	_, err := f.svc.VerifyMagicLink(context.Background(), "never-issued")
	assert.ErrorIs(t, err, onetime.ErrInvalidToken)
}

func TestMagicLink_RateLimited(t *testing.T) {
	f := setup(t, 15*time.Minute)
	f.limiter.denied["magic-link:email:ann@example.com"] = true

	err := f.svc.RequestMagicLink(context.Background(), "ann@example.com", "1.2.3.4")

	var limitErr *ratelimit.LimitExceededError
	require.ErrorAs(t, err, &limitErr)
	assert.Greater(t, limitErr.RetryAfter, time.Duration(0))
	assert.Empty(t, f.publisher.messages)
}

func TestPasswordReset_UnknownEmailSilent(t *testing.T) {
	f := setup(t, 15*time.Minute)

	err := f.svc.RequestPasswordReset(context.Background(), "ghost@nowhere.test", "1.2.3.4")

	require.NoError(t, err)
	assert.Empty(t, f.publisher.messages, "no email for unknown account")
}

func TestPasswordReset_RoundTrip(t *testing.T) {
	f := setup(t, 15*time.Minute)
	ctx := context.Background()

	oldHash, err := bcrypt.GenerateFromPassword([]byte("oldpass123"), bcrypt.DefaultCost)
	require.NoError(t, err)

	id, err := f.users.SaveUser(ctx, "ann@example.com", "Ann", oldHash)
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "ann@example.com", "1.2.3.4"))
	token := lastToken(t, f.publisher)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "newpass123"))

	user, err := f.users.User(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword(user.PassHash, []byte("newpass123")))
	assert.True(t, f.users.revoked[id], "all sessions should be invalidated")

	// The consumed token cannot be replayed.
	err = f.svc.ResetPassword(ctx, token, "anotherpass1")
	assert.ErrorIs(t, err, onetime.ErrInvalidToken)
}

func TestPasswordReset_WrongPurposeToken(t *testing.T) {
	f := setup(t, 15*time.Minute)
	ctx := context.Background()

	_, err := f.users.SaveUser(ctx, "ann@example.com", "", []byte("hash"))
	require.NoError(t, err)

	// A magic-link token must not reset a password.
	require.NoError(t, f.svc.RequestMagicLink(ctx, "ann@example.com", "1.2.3.4"))
	token := lastToken(t, f.publisher)

	err = f.svc.ResetPassword(ctx, token, "newpass123")
	assert.ErrorIs(t, err, onetime.ErrInvalidToken)
}
