package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
	"golang.org/x/crypto/bcrypt"

	"go-identity-service/internal/model"
)

var epoch = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestBcryptHasher(t *testing.T) {
	t.Parallel()

	hasher := NewBcryptHasher(bcrypt.MinCost)

	t.Run("hash never equals plaintext and verifies", func(t *testing.T) {
		hash, err := hasher.Hash("secret1")
		require.NoError(t, err)
		assert.NotEqual(t, "secret1", hash)
		assert.NotEmpty(t, hash)

		ok, err := hasher.Verify("secret1", hash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = hasher.Verify("wrong1", hash)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("same password hashes differently", func(t *testing.T) {
		first, err := hasher.Hash("secret1")
		require.NoError(t, err)
		second, err := hasher.Hash("secret1")
		require.NoError(t, err)
		assert.NotEqual(t, first, second)
	})

	t.Run("empty password is an error", func(t *testing.T) {
		_, err := hasher.Hash("")
		assert.ErrorIs(t, err, model.ErrEmptyPassword)
	})

	t.Run("corrupt stored hash is an error not a mismatch", func(t *testing.T) {
		ok, err := hasher.Verify("secret1", "not-a-bcrypt-hash")
		assert.False(t, ok)
		assert.Error(t, err)
	})

	t.Run("oversized password propagates the primitive error", func(t *testing.T) {
		_, err := hasher.Hash(strings.Repeat("a", 73))
		assert.ErrorIs(t, err, bcrypt.ErrPasswordTooLong)
	})
}

func TestBcryptHasher_DefaultCost(t *testing.T) {
	hasher := NewBcryptHasher(0)
	hash, err := hasher.Hash("secret1")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, DefaultBcryptCost, cost)
}

func TestTokenIssuer(t *testing.T) {
	t.Parallel()

	t.Run("requires a secret", func(t *testing.T) {
		_, err := NewTokenIssuer("  ", time.Hour, nil)
		assert.Error(t, err)
	})

	t.Run("requires a positive ttl", func(t *testing.T) {
		_, err := NewTokenIssuer("secret", 0, nil)
		assert.Error(t, err)
	})

	t.Run("round trip carries id and iat", func(t *testing.T) {
		clock := abtime.NewManualAtTime(epoch)
		issuer, err := NewTokenIssuer("test-secret", time.Hour, clock)
		require.NoError(t, err)

		token, err := issuer.Issue("identity-1")
		require.NoError(t, err)

		verified, err := issuer.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "identity-1", verified.IdentityID)
		assert.Equal(t, epoch.Unix(), verified.IssuedAt.Unix())
		assert.Equal(t, epoch.Add(time.Hour).Unix(), verified.ExpiresAt.Unix())
		assert.NotEmpty(t, verified.TokenID)
	})

	t.Run("issue time keeps millisecond precision", func(t *testing.T) {
		clock := abtime.NewManualAtTime(epoch.Add(300*time.Millisecond + 450*time.Microsecond))
		issuer, err := NewTokenIssuer("test-secret", time.Hour, clock)
		require.NoError(t, err)

		token, err := issuer.Issue("identity-1")
		require.NoError(t, err)

		verified, err := issuer.Verify(token)
		require.NoError(t, err)
		assert.True(t, epoch.Add(300*time.Millisecond).Equal(verified.IssuedAt), verified.IssuedAt)
	})

	t.Run("token without millisecond issue time is rejected", func(t *testing.T) {
		issuer, err := NewTokenIssuer("test-secret", time.Hour, abtime.NewManualAtTime(epoch))
		require.NoError(t, err)

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"id":  "identity-1",
			"iat": epoch.Unix(),
			"exp": epoch.Add(time.Hour).Unix(),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("millisecond issue time must agree with iat", func(t *testing.T) {
		issuer, err := NewTokenIssuer("test-secret", time.Hour, abtime.NewManualAtTime(epoch))
		require.NoError(t, err)

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"id":     "identity-1",
			"iat":    epoch.Unix(),
			"iat_ms": epoch.Add(-time.Hour).UnixMilli(),
			"exp":    epoch.Add(time.Hour).Unix(),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("expired token is distinguished internally", func(t *testing.T) {
		clock := abtime.NewManualAtTime(epoch)
		issuer, err := NewTokenIssuer("test-secret", time.Hour, clock)
		require.NoError(t, err)

		token, err := issuer.Issue("identity-1")
		require.NoError(t, err)

		clock.Advance(time.Hour + time.Second)
		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, model.ErrTokenExpired)
		assert.NotErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("token signed with another secret is invalid", func(t *testing.T) {
		clock := abtime.NewManualAtTime(epoch)
		issuer, err := NewTokenIssuer("test-secret", time.Hour, clock)
		require.NoError(t, err)
		other, err := NewTokenIssuer("other-secret", time.Hour, clock)
		require.NoError(t, err)

		token, err := other.Issue("identity-1")
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("forged and expired token is invalid, not expired", func(t *testing.T) {
		clock := abtime.NewManualAtTime(epoch)
		issuer, err := NewTokenIssuer("test-secret", time.Hour, clock)
		require.NoError(t, err)
		other, err := NewTokenIssuer("other-secret", time.Hour, clock)
		require.NoError(t, err)

		token, err := other.Issue("identity-1")
		require.NoError(t, err)
		clock.Advance(2 * time.Hour)

		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("unsigned token is rejected", func(t *testing.T) {
		issuer, err := NewTokenIssuer("test-secret", time.Hour, abtime.NewManualAtTime(epoch))
		require.NoError(t, err)

		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"id":  "identity-1",
			"iat": epoch.Unix(),
			"exp": epoch.Add(time.Hour).Unix(),
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.Verify(unsigned)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("token without exp is rejected", func(t *testing.T) {
		issuer, err := NewTokenIssuer("test-secret", time.Hour, abtime.NewManualAtTime(epoch))
		require.NoError(t, err)

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"id":  "identity-1",
			"iat": epoch.Unix(),
		}).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = issuer.Verify(token)
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})

	t.Run("garbage is invalid", func(t *testing.T) {
		issuer, err := NewTokenIssuer("test-secret", time.Hour, nil)
		require.NoError(t, err)

		_, err = issuer.Verify("not.a.token")
		assert.ErrorIs(t, err, model.ErrTokenInvalid)
	})
}

func TestResetToken(t *testing.T) {
	t.Parallel()

	token, hash, err := GenerateResetToken()
	require.NoError(t, err)

	assert.Len(t, token, ResetTokenBytes*2)
	assert.Len(t, hash, 64)
	assert.NotEqual(t, token, hash)
	assert.Equal(t, hash, HashResetToken(token))

	other, _, err := GenerateResetToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
