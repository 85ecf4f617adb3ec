package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"API_ADDR", "DRAFT_TTL_SECONDS", "EDITOR_HISTORY_LIMIT", "MINIO_USE_SSL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, ":8787", cfg.Addr)
	assert.Equal(t, 7*24*time.Hour, cfg.DraftTTL)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.False(t, cfg.MinioUseSSL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("DRAFT_TTL_SECONDS", "60")
	t.Setenv("EDITOR_HISTORY_LIMIT", "not-a-number")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Load()
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, time.Minute, cfg.DraftTTL)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.True(t, cfg.MinioUseSSL)
}
