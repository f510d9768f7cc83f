package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type TokenType string

const (
	TokenTypeAccess            TokenType = "access"
	TokenTypeRefresh           TokenType = "refresh"
	TokenTypeEmailConfirmation TokenType = "email_confirmation"
)

type Claims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// Remaining is the lifetime left at now; zero once expired.
func (c Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	left := c.ExpiresAt.Time.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ConfirmTTL time.Duration
}

// TokenService signs and validates the three token kinds. It never touches
// storage: refresh revocation is decided by the caller against the stored hash.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	confirmTTL time.Duration
	now        func() time.Time
}

type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) {
		ts.now = now
	}
}

func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is empty")
	}
	ts := &TokenService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		confirmTTL: cfg.ConfirmTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

func (ts *TokenService) Now() time.Time {
	return ts.now()
}

func (ts *TokenService) IssueAccessToken(subject string) (string, error) {
	return ts.issue(subject, TokenTypeAccess, ts.accessTTL)
}

func (ts *TokenService) IssueRefreshToken(subject string) (string, error) {
	return ts.issue(subject, TokenTypeRefresh, ts.refreshTTL)
}

func (ts *TokenService) IssueEmailConfirmationToken(email string) (string, error) {
	return ts.issue(email, TokenTypeEmailConfirmation, ts.confirmTTL)
}

func (ts *TokenService) ValidateAccessToken(token string) (Claims, error) {
	return ts.validate(token, TokenTypeAccess)
}

func (ts *TokenService) ValidateRefreshToken(token string) (Claims, error) {
	return ts.validate(token, TokenTypeRefresh)
}

// ValidateEmailConfirmationToken returns the e-mail address the token was issued for.
func (ts *TokenService) ValidateEmailConfirmationToken(token string) (string, error) {
	claims, err := ts.validate(token, TokenTypeEmailConfirmation)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (ts *TokenService) issue(subject string, typ TokenType, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is empty")
	}

	now := ts.now()
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func (ts *TokenService) validate(tokenStr string, want TokenType) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != want {
		return Claims{}, fmt.Errorf("%w: type %q, want %q", ErrInvalidToken, claims.Type, want)
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims, nil
}

func HashRefreshToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// RefreshTokenMatches compares a presented refresh token with the stored hash.
// An empty stored hash (logged out) never matches.
func RefreshTokenMatches(token string, stored []byte) bool {
	if len(stored) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(HashRefreshToken(token), stored) == 1
}
