package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/account-portal/internal/tokens"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "GIN_MODE", "SESSION_SECRET", "TOKEN_SECRET", "SESSION_STORE", "REDIS_URL",
		"SESSION_MAX_LIFETIME_MINUTES", "SESSION_IDLE_TIMEOUT_MINUTES", "DATABASE_DRIVER",
		"DATABASE_DSN", "REQUIRE_EMAIL_VERIFICATION", "VERIFICATION_TOKEN_TTL_HOURS",
		"FRONTEND_URL", "MAIL_BACKEND", "MAIL_DELIVERY", "QUEUE_REDIS_URL", "SMTP_HOST", "MAIL_FROM",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "debug", cfg.GinMode)
	assert.Equal(t, DatabaseDriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, SessionStoreRedis, cfg.SessionStore)
	assert.Equal(t, 12*time.Hour, cfg.SessionMaxLifetime)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, 72*time.Hour, cfg.VerificationTokenTTL)
	assert.False(t, cfg.RequireEmailVerification)
	assert.Equal(t, "s3cret", cfg.TokenSecret, "TOKEN_SECRET falls back to SESSION_SECRET")
	assert.Equal(t, cfg.RedisURL, cfg.QueueRedisURL)
	assert.Equal(t, "noreply@app.com", cfg.MailFrom)

	_, err = tokens.NewGenerator(cfg.TokenSecret, cfg.VerificationTokenTTL)
	assert.NoError(t, err)
}

func TestLoadWithoutSecretInDebugMode(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Len(t, cfg.SessionSecret, 64)
	assert.Equal(t, cfg.SessionSecret, cfg.TokenSecret)
	_, err = tokens.NewGenerator(cfg.TokenSecret, cfg.VerificationTokenTTL)
	assert.NoError(t, err)

	again, err := Load()
	require.NoError(t, err)
	assert.NotEqual(t, cfg.SessionSecret, again.SessionSecret, "a fresh secret per process")
}

func TestLoadWithoutSecretInReleaseMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("GIN_MODE", "release")
	t.Setenv("DATABASE_DRIVER", DatabaseDriverPostgres)
	t.Setenv("DATABASE_DSN", "postgres://localhost/accounts")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GIN_MODE", "test")
	t.Setenv("REQUIRE_EMAIL_VERIFICATION", "true")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("SESSION_IDLE_TIMEOUT_MINUTES", "5")
	t.Setenv("DATABASE_DRIVER", DatabaseDriverMemory)

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.RequireEmailVerification)
	assert.Equal(t, "https://app.example.com", cfg.FrontendURL)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
	assert.Equal(t, DatabaseDriverMemory, cfg.DatabaseDriver)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			GinMode:        "release",
			SessionSecret:  "secret",
			TokenSecret:    "secret",
			DatabaseDriver: DatabaseDriverPostgres,
			DatabaseDSN:    "postgres://localhost/accounts",
			SessionStore:   SessionStoreRedis,
			MailBackend:    MailBackendLog,
			MailDelivery:   MailDeliverySync,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid release config", mutate: func(*Config) {}},
		{name: "missing session secret", mutate: func(c *Config) { c.SessionSecret = "" }, wantErr: true},
		{name: "memory database in release", mutate: func(c *Config) { c.DatabaseDriver = DatabaseDriverMemory }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.DatabaseDriver = "mysql" }, wantErr: true},
		{name: "smtp without host", mutate: func(c *Config) { c.MailBackend = MailBackendSMTP }, wantErr: true},
		{name: "queue without redis", mutate: func(c *Config) { c.MailDelivery = MailDeliveryQueue }, wantErr: true},
		{name: "missing token secret", mutate: func(c *Config) { c.TokenSecret = "" }, wantErr: true},
		{name: "debug mode still needs a secret", mutate: func(c *Config) {
			c.GinMode = "debug"
			c.SessionSecret = ""
		}, wantErr: true},
		{name: "debug mode with memory database", mutate: func(c *Config) {
			c.GinMode = "debug"
			c.DatabaseDriver = DatabaseDriverMemory
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
