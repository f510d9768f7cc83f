package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, overrides map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestDecodeDefaults(t *testing.T) {
	cfg, err := decode(newViper(t, map[string]any{"security.jwtsecret": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 15*time.Minute, cfg.Security.JWTAccessTTL)
	assert.Equal(t, 168*time.Hour, cfg.Security.JWTRefreshTTL)
	assert.Equal(t, "redis", cfg.Security.SessionCache)
	assert.True(t, cfg.Security.RequireConfirmed)
	assert.Equal(t, int64(2), cfg.RateLimit.Requests)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.Period)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowCORSOrigins)
	assert.Equal(t, uint32(64*1024), cfg.Security.Argon2.Memory)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Redis.DialTimeout)
}

func TestDecodeCommaSeparatedOrigins(t *testing.T) {
	cfg, err := decode(newViper(t, map[string]any{
		"security.jwtsecret": "s3cret",
		"allowcorsorigins":   "http://a.test,http://b.test",
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowCORSOrigins)
}

func TestDecodeRequiresSecret(t *testing.T) {
	_, err := decode(newViper(t, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwtsecret")
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	_, err := decode(newViper(t, map[string]any{
		"security.jwtsecret":    "s3cret",
		"security.sessioncache": "memcached",
	}))
	require.Error(t, err)

	_, err = decode(newViper(t, map[string]any{
		"security.jwtsecret": "s3cret",
		"mail.delivery":      "pigeon",
	}))
	require.Error(t, err)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("CONTACTS_SECURITY_JWTSECRET", "from-env")
	t.Setenv("CONTACTS_SECURITY_JWTACCESSTTL", "30m")
	t.Setenv("CONTACTS_SECURITY_REQUIRECONFIRMED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Security.JWTSecret)
	assert.Equal(t, 30*time.Minute, cfg.Security.JWTAccessTTL)
	assert.False(t, cfg.Security.RequireConfirmed)
}
