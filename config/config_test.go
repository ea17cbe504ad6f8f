package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8086, cfg.Server.HTTPPort)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 3*time.Second, cfg.Engine.LockWaitTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Engine.NoShowTimeout)
	assert.Equal(t, 4, cfg.Engine.ResetHour)
	assert.Equal(t, 10*time.Minute, cfg.Token.TTL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_HTTP_PORT", "9090")
	t.Setenv("ENGINE_NO_SHOW_TIMEOUT", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 90*time.Second, cfg.Engine.NoShowTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoad_MalformedValueFallsBack(t *testing.T) {
	t.Setenv("SERVER_HTTP_PORT", "not-a-number")
	t.Setenv("ENGINE_LOCK_WAIT_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8086, cfg.Server.HTTPPort)
	assert.Equal(t, 3*time.Second, cfg.Engine.LockWaitTimeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load()
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Server.HTTPPort = 0
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Redis.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Engine.LockLeaseTimeout = cfg.Engine.LockWaitTimeout
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Engine.ResetHour = 24
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Engine.ResetParallelism = 0
	assert.Error(t, cfg.Validate(), "zero parallelism would stall the reset sweep")

	cfg = base()
	cfg.Env = "production"
	assert.Error(t, cfg.Validate(), "the default token secret must not reach production")

	cfg = base()
	cfg.Env = "production"
	cfg.Token.Secret = "rotated"
	assert.NoError(t, cfg.Validate())
}
