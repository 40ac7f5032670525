package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "paperdrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTP.Addr)
	assert.Equal(t, "/api/device/connect", cfg.HTTP.DevicePath)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 54*time.Second, cfg.WS.PingPeriod())
	assert.Equal(t, PubSubGoChannel, cfg.PubSub.Driver)
	assert.False(t, cfg.Auth.HashNewSecrets)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":8080"
scheduler:
  interval: 30s
log:
  level: debug
`)
	t.Setenv("PAPERDROP_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path, []string{"--http.addr=:9090"})
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTP.Addr, "flag beats file")
	assert.Equal(t, "warn", cfg.Log.Level, "env beats file")
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "zero interval", args: []string{"--scheduler.interval=0s"}},
		{name: "unknown driver", args: []string{"--pubsub.driver=kafka"}},
		{name: "no concurrency", args: []string{"--scheduler.concurrency=0"}},
		{name: "unknown flag", args: []string{"--nope=1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig("", tt.args)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
