package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"contactbook/internal/config"
	"contactbook/internal/mail"
	"contactbook/internal/security"
)

type outbox struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) Messages() []mail.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]mail.Message(nil), o.sent...)
}

type stubAvatars struct {
	url string
	err error
}

func (s stubAvatars) Resolve(context.Context, string) (string, error) {
	return s.url, s.err
}

type memoryObjects struct {
	objects map[string][]byte
	types   map[string]string
}

func (m *memoryObjects) PutAvatar(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
		m.types = map[string]string{}
	}
	m.objects[key] = data
	m.types[key] = contentType
	return "http://objects.test/avatars-bucket/" + key, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Low-cost argon2 parameters keep the suite fast.
var testArgon2 = security.Argon2Params{Time: 1, Memory: 1024, Threads: 1}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{BaseURL: "http://api.test"},
		Security: config.SecurityConfig{
			JWTSecret:        "test-secret",
			JWTIssuer:        "contactbook-test",
			JWTAccessTTL:     15 * time.Minute,
			JWTRefreshTTL:    7 * 24 * time.Hour,
			JWTConfirmTTL:    72 * time.Hour,
			SessionCacheTTL:  10 * time.Minute,
			RequireConfirmed: true,
		},
		Avatar: config.AvatarConfig{MaxBytes: 1024},
	}
}

func newTokens(t *testing.T, cfg *config.AppConfig, clock *fakeClock) *security.TokenService {
	t.Helper()
	tokens, err := security.NewTokenService(security.TokenConfig{
		Secret:     cfg.Security.JWTSecret,
		Issuer:     cfg.Security.JWTIssuer,
		AccessTTL:  cfg.Security.JWTAccessTTL,
		RefreshTTL: cfg.Security.JWTRefreshTTL,
		ConfirmTTL: cfg.Security.JWTConfirmTTL,
	}, security.WithClock(clock.Now))
	require.NoError(t, err)
	return tokens
}

func newPasswords(t *testing.T) *security.PasswordHasher {
	t.Helper()
	h, err := security.NewPasswordHasher(testArgon2)
	require.NoError(t, err)
	return h
}
