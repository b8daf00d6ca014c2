package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/hexline/hexline-server-go/internal/config"
)

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		name   string
		cfg    config.LoggingConfig
		level  zapcore.Level
		hidden zapcore.Level
	}{
		{"debug console", config.LoggingConfig{Level: "debug"}, zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn json", config.LoggingConfig{Level: "warn", Format: "json"}, zapcore.WarnLevel, zapcore.InfoLevel},
		{"unknown falls back to info", config.LoggingConfig{Level: "loud"}, zapcore.InfoLevel, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := initLogger(tt.cfg)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.level))
			assert.False(t, logger.Core().Enabled(tt.hidden))
		})
	}
}
