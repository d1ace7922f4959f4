package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "STORE_BACKEND", "ORDER_BACKEND", "KAFKA_BROKERS", "CACHE_TTL", "MAX_UPLOAD_BYTES", "ADMIN_EMAIL", "ADMIN_NAME"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, BackendMemory, cfg.OrderBackend)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes)
	assert.False(t, cfg.KafkaEnabled())
	assert.Empty(t, cfg.AdminEmail)
	assert.Equal(t, "Administrator", cfg.AdminName)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("ORDER_BACKEND", "mongo")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")

	cfg := Load()

	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, BackendMongo, cfg.OrderBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("MAX_UPLOAD_BYTES", "lots")

	cfg := Load()

	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, int64(5<<20), cfg.MaxUploadBytes)
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		JWTSecret:    strings.Repeat("s", 32),
		StoreBackend: BackendMemory,
		OrderBackend: BackendMongo,
		BlobBackend:  BackendFS,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		err    error
	}{
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, ErrJWTSecretMissing},
		{"short secret", func(c *Config) { c.JWTSecret = "short" }, ErrJWTSecretTooShort},
		{"bad store", func(c *Config) { c.StoreBackend = "mongo" }, ErrUnknownBackend},
		{"bad order store", func(c *Config) { c.OrderBackend = "redis" }, ErrUnknownBackend},
		{"bad blob store", func(c *Config) { c.BlobBackend = "s3" }, ErrUnknownBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.err)
		})
	}
}
