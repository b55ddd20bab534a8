package ratelimit_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"gather_auth/internal/ratelimit"
	redisrepo "gather_auth/internal/storage/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLimiter(t *testing.T) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	repo, err := redisrepo.New(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	return ratelimit.New(log, repo, "rl"), mr
}

func TestAllow_DeniesAboveLimit(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	key := "forgot-password:user@example.com"

	for i := 0; i < 5; i++ {
		decision := limiter.Allow(ctx, key, 5, time.Hour)
		assert.True(t, decision.Allowed, "request %d should be allowed", i+1)
	}

	decision := limiter.Allow(ctx, key, 5, time.Hour)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestAllow_WindowResets(t *testing.T) {
	limiter, mr := setupLimiter(t)
	ctx := context.Background()

	key := "magic-link:1.2.3.4"

	for i := 0; i < 3; i++ {
		limiter.Allow(ctx, key, 2, time.Minute)
	}

	decision := limiter.Allow(ctx, key, 2, time.Minute)
	require.False(t, decision.Allowed)

	mr.FastForward(2 * time.Minute)

	decision = limiter.Allow(ctx, key, 2, time.Minute)
	assert.True(t, decision.Allowed)
}

func TestAllow_SeparateKeys(t *testing.T) {
	limiter, _ := setupLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		limiter.Allow(ctx, "action:email:a@x.test", 2, time.Hour)
	}

	require.False(t, limiter.Allow(ctx, "action:email:a@x.test", 2, time.Hour).Allowed)
	assert.True(t, limiter.Allow(ctx, "action:email:b@x.test", 2, time.Hour).Allowed)
}

func TestAllow_FailsOpenWhenStoreDown(t *testing.T) {
	limiter, mr := setupLimiter(t)
	ctx := context.Background()

	mr.Close()

	decision := limiter.Allow(ctx, "any:key", 1, time.Hour)
	assert.True(t, decision.Allowed)
}
