package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, "dev", c.App.Env)
	require.Equal(t, ":8080", c.Server.Addr)
	require.Equal(t, "memory", c.Storage.Driver)
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, "1h", c.Access.TTL)
	require.Equal(t, "720h", c.Refund.Window)
	require.Equal(t, "24h", c.Sweep.PendingTimeout)
	require.Equal(t, 200, c.Sweep.BatchLimit)
	require.Equal(t, 4, c.Sweep.Parallelism)
	require.Equal(t, 3, c.Notice.Attempts)
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
app:
  env: prod
log:
  level: warn
server:
  addr: ":9090"
storage:
  driver: postgres
  dsn: postgres://localhost/paygate
refund:
  window: 336h
sweep:
  enabled: true
  pending_timeout: 12h
payment:
  base_url: https://processor.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "prod", c.App.Env)
	require.Equal(t, "warn", c.Log.Level)
	require.Equal(t, ":9090", c.Server.Addr)
	require.Equal(t, "postgres", c.Storage.Driver)
	require.Equal(t, "336h", c.Refund.Window)
	require.True(t, c.Sweep.Enabled)
	require.Equal(t, "12h", c.Sweep.PendingTimeout)
	// Untouched fields still get defaults.
	require.Equal(t, "10m", c.Sweep.Interval)
	require.Equal(t, "15s", c.Payment.Timeout)
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  env: dev\n"), 0o600))

	t.Setenv("PAYGATE_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("PAYGATE_DSN", "postgres://env/paygate")

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "whsec_env", c.Payment.WebhookSecret)
	require.Equal(t, "postgres://env/paygate", c.Storage.DSN)
	// A DSN from the environment flips the driver off the memory default.
	require.Equal(t, "postgres", c.Storage.Driver)
}

func TestDuration(t *testing.T) {
	require.Equal(t, 5*time.Second, Duration("5s", time.Minute))
	require.Equal(t, time.Minute, Duration("", time.Minute))
	require.Equal(t, time.Minute, Duration("garbage", time.Minute))
}
