package security

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTokens(t *testing.T) (*TokenService, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	ts, err := NewTokenService(TokenConfig{
		Secret:     "test-secret",
		Issuer:     "contactbook-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ConfirmTTL: 24 * time.Hour,
	}, WithClock(clock.Now))
	require.NoError(t, err)
	return ts, clock
}

func TestAccessTokenLifetime(t *testing.T) {
	ts, clock := newTestTokens(t)

	token, err := ts.IssueAccessToken("user-1")
	require.NoError(t, err)

	claims, err := ts.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, 15*time.Minute, claims.Remaining(clock.Now()))

	clock.Advance(14 * time.Minute)
	_, err = ts.ValidateAccessToken(token)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = ts.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	ts, _ := newTestTokens(t)

	access, err := ts.IssueAccessToken("user-1")
	require.NoError(t, err)
	refresh, err := ts.IssueRefreshToken("user-1")
	require.NoError(t, err)
	confirm, err := ts.IssueEmailConfirmationToken("a@x.com")
	require.NoError(t, err)

	_, err = ts.ValidateAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = ts.ValidateAccessToken(confirm)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = ts.ValidateRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = ts.ValidateEmailConfirmationToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := ts.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	email, err := ts.ValidateEmailConfirmationToken(confirm)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", email)
}

func TestRejectsForeignSignatures(t *testing.T) {
	ts, clock := newTestTokens(t)
	other, err := NewTokenService(TokenConfig{
		Secret:    "another-secret",
		Issuer:    "contactbook-test",
		AccessTTL: time.Minute,
	}, WithClock(clock.Now))
	require.NoError(t, err)

	token, err := other.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = ts.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ts.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectsOtherAlgorithms(t *testing.T) {
	ts, clock := newTestTokens(t)

	claims := Claims{
		Type: TokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "contactbook-test",
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	hs256, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = ts.ValidateAccessToken(hs256)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ts.ValidateAccessToken(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokensAreUnique(t *testing.T) {
	ts, _ := newTestTokens(t)

	a, err := ts.IssueRefreshToken("user-1")
	require.NoError(t, err)
	b, err := ts.IssueRefreshToken("user-1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRefreshTokenMatches(t *testing.T) {
	stored := HashRefreshToken("token-a")

	assert.True(t, RefreshTokenMatches("token-a", stored))
	assert.False(t, RefreshTokenMatches("token-b", stored))
	assert.False(t, RefreshTokenMatches("token-a", nil))
}

func TestIssueRequiresSubject(t *testing.T) {
	ts, _ := newTestTokens(t)
	_, err := ts.IssueAccessToken("")
	assert.Error(t, err)
}
