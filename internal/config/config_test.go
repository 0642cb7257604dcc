package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("FUNDIMART_AUTH_SECRET", "s3cret")
	t.Setenv("FUNDIMART_TOKEN_TTL", "15m")
	t.Setenv("FUNDIMART_REDIS_DB", "3")

	cfg, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, "s3cret", cfg.AuthSecret)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadRequiresSecret(t *testing.T) {
	_, err := Load(New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth_secret")
}

func TestLoadFileAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api.yaml")
	body := "auth_secret: from-file\nhttp_addr: \":7000\"\nrate_burst: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	v := New()
	cmd := &cobra.Command{Use: "api"}
	require.NoError(t, BindFlags(cmd, v))
	require.NoError(t, cmd.PersistentFlags().Parse([]string{"--config", path, "--log-level", "debug"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.AuthSecret)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, 5, cfg.RateBurst)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cfg := Config{AuthSecret: "x", TokenTTL: time.Minute, HTTPAddr: ":1", MaxBodyBytes: 1}
	require.NoError(t, cfg.Validate())

	cfg.TokenTTL = 0
	cfg.MaxBodyBytes = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_ttl")
	assert.Contains(t, err.Error(), "max_body_bytes")
}

func TestProxyPrefixes(t *testing.T) {
	cfg := Config{TrustedProxies: []string{"10.0.0.0/8", " 192.0.2.10 ", ""}}
	prefixes, err := cfg.ProxyPrefixes()
	require.NoError(t, err)
	require.Len(t, prefixes, 2)
	assert.Equal(t, "10.0.0.0/8", prefixes[0].String())
	assert.Equal(t, "192.0.2.10/32", prefixes[1].String())

	cfg = Config{AuthSecret: "x", TokenTTL: time.Minute, HTTPAddr: ":1", MaxBodyBytes: 1, TrustedProxies: []string{"not-an-ip"}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trusted_proxies")
}
