package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "APP_ENV", "STORE_BACKEND", "ARCHIVE_S3_ENDPOINT", "ARCHIVE_ENABLED", "KAFKA_BROKERS", "STALE_AFTER", "SEED_WATCH"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv("8080")
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.False(t, cfg.Archive.CanUseS3())
	assert.Empty(t, cfg.Analytics.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.Push.StaleAfter)
	assert.False(t, cfg.Seed.Watch)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("STORE_BACKEND", "Bolt")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("STALE_AFTER", "2m")
	t.Setenv("SEED_WATCH", "true")
	t.Setenv("ARCHIVE_S3_ENDPOINT", "s3.example:443")
	t.Setenv("ARCHIVE_S3_ACCESS_KEY", "ak")
	t.Setenv("ARCHIVE_S3_SECRET_KEY", "sk")

	cfg := FromEnv(":8080")
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "bolt", cfg.Store.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Analytics.KafkaBrokers)
	assert.Equal(t, 2*time.Minute, cfg.Push.StaleAfter)
	assert.True(t, cfg.Seed.Watch)
	assert.True(t, cfg.Archive.CanUseS3())
	assert.True(t, cfg.Archive.UseSSL)
}

func TestLocalDefaultsFillPostgres(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")
	cfg := FromEnv(":8080")
	assert.Contains(t, cfg.Store.DatabaseURL, "postgres://")
}

func TestLoadArgsFlagsOverrideEnv(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("APP_ENV", "local")
	t.Setenv("STORE_BACKEND", "bolt")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SEED_PATH", "/etc/sdui/seed.yaml")
	t.Setenv("SEED_WATCH", "")
	t.Setenv("SHUTDOWN_TIMEOUT", "")

	cfg, err := LoadArgs([]string{"-port", "7070", "-store", "Postgres", "-seed", " seeds/dev.yaml ", "-watch", "-shutdown-timeout", "12s"})
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Port)
	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Contains(t, cfg.Store.DatabaseURL, "postgres://")
	assert.Equal(t, "seeds/dev.yaml", cfg.Seed.Path)
	assert.True(t, cfg.Seed.Watch)
	assert.Equal(t, 12*time.Second, cfg.ShutdownTimeout)
}

func TestLoadArgsKeepsEnvWithoutFlags(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE_BACKEND", "bolt")
	t.Setenv("SEED_PATH", "/etc/sdui/seed.yaml")
	t.Setenv("SHUTDOWN_TIMEOUT", "")

	cfg, err := LoadArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, "bolt", cfg.Store.Backend)
	assert.Equal(t, "/etc/sdui/seed.yaml", cfg.Seed.Path)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}

func TestLoadArgsRejectsUnknownStore(t *testing.T) {
	_, err := LoadArgs([]string{"-store", "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"mongo"`)
}
