package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "localhost:3351", cfg.Addr())
	require.False(t, cfg.Secure)
	require.Equal(t, time.Hour, cfg.AccessTokenLifetime)
	require.Equal(t, 24*time.Hour, cfg.RefreshTokenLifetime)
	require.Equal(t, ".data", cfg.DataDir)
	require.Equal(t, ".internal", cfg.InternalDir)
	require.Equal(t, "dev", cfg.Env)

	// Dev fallbacks kick in and are flagged.
	require.True(t, cfg.InsecureSecrets)
	require.NotEmpty(t, cfg.AccessTokenSecret)
	require.NotEmpty(t, cfg.RefreshTokenSecret)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GATE_HOST", "0.0.0.0")
	t.Setenv("GATE_PORT", "4000")
	t.Setenv("ACCESS_TOKEN_SECRET", "a-secret")
	t.Setenv("REFRESH_TOKEN_SECRET", "r-secret")
	t.Setenv("ACCESS_TOKEN_LIFETIME", "90")
	t.Setenv("REFRESH_TOKEN_LIFETIME", "48h")
	t.Setenv("GATE_SHARDED_COLLECTIONS", `[{"name":"events","shardKey":"region","shardCount":4}]`)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:4000", cfg.Addr())
	require.False(t, cfg.InsecureSecrets)
	require.Equal(t, "a-secret", cfg.AccessTokenSecret)
	require.Equal(t, 90*time.Second, cfg.AccessTokenLifetime)
	require.Equal(t, 48*time.Hour, cfg.RefreshTokenLifetime)
	require.Len(t, cfg.ShardedCollections, 1)
	require.Equal(t, "region", cfg.ShardedCollections[0].ShardKey)
	require.Equal(t, 4, cfg.ShardedCollections[0].ShardCount)
}

func TestLoadConfigZeroLifetimeDisablesExpiry(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_LIFETIME", "0")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, time.Duration(0), cfg.AccessTokenLifetime)
}

func TestLoadConfigProdRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "prod")

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("ACCESS_TOKEN_SECRET", "a-secret")
	_, err = LoadConfig()
	require.Error(t, err)

	t.Setenv("REFRESH_TOKEN_SECRET", "r-secret")
	_, err = LoadConfig()
	require.NoError(t, err)
}

func TestLoadConfigSecureRequiresKeyPair(t *testing.T) {
	t.Setenv("GATE_SECURE", "true")

	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("GATE_TLS_CERT", "cert.pem")
	t.Setenv("GATE_TLS_KEY", "key.pem")
	_, err = LoadConfig()
	require.NoError(t, err)
}

func TestLoadConfigBadShardedJSON(t *testing.T) {
	t.Setenv("GATE_SHARDED_COLLECTIONS", "not json")

	_, err := LoadConfig()
	require.Error(t, err)
}
