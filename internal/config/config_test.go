package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, int64(1<<30), cfg.Storage.MaxUploadBytes)
	assert.Equal(t, "tcpreplay", cfg.Replay.TcpreplayPath)
	assert.Equal(t, 1000000, cfg.Analysis.MaxPackets)
	assert.Equal(t, 100000, cfg.Analysis.PerformanceLimit)
	assert.Equal(t, "file", cfg.History.Type)
	assert.False(t, cfg.NATS.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen_addr: ":9090"
replay:
  tcpreplay_path: "/opt/tcpreplay/bin/tcpreplay"
  assumed_duration_sec: 30
history:
  type: "clickhouse"
  clickhouse:
    host: "ch.local"
    port: 9000
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "/opt/tcpreplay/bin/tcpreplay", cfg.Replay.TcpreplayPath)
	assert.Equal(t, float64(30), cfg.Replay.AssumedDurationSec)
	assert.Equal(t, "clickhouse", cfg.History.Type)
	assert.Equal(t, "ch.local", cfg.History.ClickHouse.Host)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000000, cfg.Analysis.MaxPackets)
	assert.Equal(t, "/tmp/replaya_uploads", cfg.Storage.UploadDir)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a mapping"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
