package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddress)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 6, cfg.Rules.SecondsPerTurn)
	assert.Equal(t, 2, cfg.Rules.MaxChainDepth)
	assert.Equal(t, 50, cfg.Rules.RepeatEscalationPercent)
	assert.Equal(t, "memory", cfg.Audit.Driver)
	assert.False(t, cfg.Replay.Enabled)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
  format: json
rules:
  max_chain_depth: 3
board:
  radius: 5
audit:
  driver: sqlite
  dsn: file::memory:
`), 0o644))
	t.Setenv("HEXLINE_BOARD_RADIUS", "12")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 3, cfg.Rules.MaxChainDepth)
	assert.Equal(t, 6, cfg.Rules.SecondsPerTurn)
	assert.Equal(t, 12, cfg.Board.Radius)
	assert.Equal(t, "sqlite", cfg.Audit.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"seconds per turn", func(c *Config) { c.Rules.SecondsPerTurn = 0 }},
		{"chain depth", func(c *Config) { c.Rules.MaxChainDepth = -1 }},
		{"radius", func(c *Config) { c.Board.Radius = 0 }},
		{"postgres without dsn", func(c *Config) { c.Audit.Driver = "postgres" }},
		{"unknown driver", func(c *Config) { c.Audit.Driver = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
