package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmatc13/p2pservice/pkg/errors"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithOptions(LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, "p2pnode", cfg.Node.Name)
	assert.Equal(t, 5*time.Second, cfg.Node.GracePeriod)
	assert.Equal(t, "127.0.0.1:8545", cfg.Admin.Address)
	assert.Equal(t, []string{"*"}, cfg.Admin.CORSAllowedOrigins)
	assert.Equal(t, time.Minute, cfg.Admin.RateWindow)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Status.Interval)
	assert.Equal(t, "p2pnode", cfg.Metrics.Namespace)
}

func TestLoadSources(t *testing.T) {
	path := writeFile(t, "node.yaml", `
node:
  name: bootnode
  grace_period: 2s
admin:
  address: 0.0.0.0:9000
  cors_allowed_origins:
    - https://ops.example.org
status:
  interval: 1s
`)

	t.Run("config file", func(t *testing.T) {
		cfg, err := LoadWithOptions(LoadOptions{ConfigFile: path})
		require.NoError(t, err)

		assert.Equal(t, "bootnode", cfg.Node.Name)
		assert.Equal(t, 2*time.Second, cfg.Node.GracePeriod)
		assert.Equal(t, []string{"https://ops.example.org"}, cfg.Admin.CORSAllowedOrigins)
		assert.Equal(t, time.Second, cfg.Status.Interval)
		assert.Equal(t, 30*time.Second, cfg.Status.TTL)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("P2PNODE_NODE_NAME", "envnode")
		t.Setenv("P2PNODE_NODE_GRACE_PERIOD", "750ms")

		cfg, err := LoadWithOptions(LoadOptions{ConfigFile: path})
		require.NoError(t, err)

		assert.Equal(t, "envnode", cfg.Node.Name)
		assert.Equal(t, 750*time.Millisecond, cfg.Node.GracePeriod)
		assert.Equal(t, "0.0.0.0:9000", cfg.Admin.Address)
	})

	t.Run("flags override environment", func(t *testing.T) {
		t.Setenv("P2PNODE_ADMIN_ADDRESS", "10.0.0.1:9000")
		fs := pflag.NewFlagSet("p2pnode", pflag.ContinueOnError)
		BindFlags(fs)
		require.NoError(t, fs.Parse([]string{"--admin-address=127.0.0.1:7000", "--status=false"}))

		cfg, err := LoadWithOptions(LoadOptions{ConfigFile: path, Flags: fs})
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:7000", cfg.Admin.Address)
		assert.False(t, cfg.Status.Enabled)
		assert.Equal(t, "bootnode", cfg.Node.Name, "unchanged flags keep lower sources")
	})

	t.Run("env file", func(t *testing.T) {
		envFile := writeFile(t, ".env", "P2PNODE_STATUS_KEY=node:42:status\n")
		t.Cleanup(func() { os.Unsetenv("P2PNODE_STATUS_KEY") })

		cfg, err := LoadWithOptions(LoadOptions{EnvFile: envFile})
		require.NoError(t, err)
		assert.Equal(t, "node:42:status", cfg.Status.Key)
	})

	t.Run("missing env file is ignored", func(t *testing.T) {
		_, err := LoadWithOptions(LoadOptions{EnvFile: filepath.Join(t.TempDir(), ".env")})
		assert.NoError(t, err)
	})

	t.Run("missing config file fails", func(t *testing.T) {
		_, err := LoadWithOptions(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadWithOptions(LoadOptions{})
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"grace period", func(c *Config) { c.Node.GracePeriod = 0 }, "node.grace_period"},
		{"admin address", func(c *Config) { c.Admin.Address = "" }, "admin.address"},
		{"rate limit", func(c *Config) { c.Admin.RateLimit = 0 }, "admin.rate_limit"},
		{"redis address", func(c *Config) { c.Redis.Address = "" }, "redis.address"},
		{"status interval", func(c *Config) { c.Status.Interval = -time.Second }, "status.interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	t.Run("status settings ignored when disabled", func(t *testing.T) {
		cfg := valid()
		cfg.Status.Enabled = false
		cfg.Redis.Address = ""
		assert.NoError(t, cfg.Validate())
	})
}
