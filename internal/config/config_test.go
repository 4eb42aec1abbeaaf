package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_RequiresSecretKey(t *testing.T) {
	t.Setenv("FLEET_SECRET_KEY", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLEET_SECRET_KEY")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("FLEET_SECRET_KEY", "deadbeef")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 10, cfg.DBMaxConns)
	assert.False(t, cfg.SharedBrokerEnabled())
}

func TestLoad_SharedBrokerEnabled(t *testing.T) {
	t.Setenv("FLEET_SECRET_KEY", "deadbeef")
	t.Setenv("FLEET_REDIS_ADDR", "localhost:6379")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SharedBrokerEnabled())
}

func TestParseOrigins(t *testing.T) {
	t.Setenv("FLEET_SECRET_KEY", "deadbeef")
	t.Setenv("FLEET_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
