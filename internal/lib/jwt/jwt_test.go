package jwt

import (
	"testing"
	"time"

	"gather_auth/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	user := models.User{ID: 42, Role: models.RoleModerator}

	token, err := NewAccessToken(user, secret, time.Minute)
	require.NoError(t, err)

	claims, err := ParseAccessToken(token, secret)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, models.RoleModerator, claims.Role)
}

func TestParseAccessToken_Expired(t *testing.T) {
	user := models.User{ID: 1, Role: models.RoleRegular}

	token, err := NewAccessToken(user, secret, -time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessToken_WrongSecret(t *testing.T) {
	user := models.User{ID: 1, Role: models.RoleRegular}

	token, err := NewAccessToken(user, secret, time.Minute)
	require.NoError(t, err)

	_, err = ParseAccessToken(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccessToken_Malformed(t *testing.T) {
	_, err := ParseAccessToken("not-a-jwt", secret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewRandomToken_Unique(t *testing.T) {
	a, err := NewRandomToken()
	require.NoError(t, err)

	b, err := NewRandomToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
}
