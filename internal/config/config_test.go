package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 12*time.Minute, cfg.FlowTimeout)
	assert.Equal(t, "memory", cfg.LockBackend)
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("FLOW_TIMEOUT", "30m")
	t.Setenv("SEND_RATE", "2.5")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOCK_BACKEND", "redis")

	cfg := LoadConfig()

	assert.Equal(t, 30*time.Minute, cfg.FlowTimeout)
	assert.Equal(t, 2.5, cfg.SendRate)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, "redis", cfg.LockBackend)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("FLOW_TIMEOUT", "soon")
	t.Setenv("SEND_BURST", "many")

	cfg := LoadConfig()

	assert.Equal(t, 12*time.Minute, cfg.FlowTimeout)
	assert.Equal(t, 5, cfg.SendBurst)
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "UTC"}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "Not/AZone"
	assert.Equal(t, time.Local, cfg.Location())
}
