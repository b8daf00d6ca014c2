// Package config loads server configuration from YAML with HEXLINE_*
// environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Rules   RulesConfig   `mapstructure:"rules"`
	Board   BoardConfig   `mapstructure:"board"`
	Audit   AuditConfig   `mapstructure:"audit"`
	Replay  ReplayConfig  `mapstructure:"replay"`
	Catalog CatalogConfig `mapstructure:"catalog"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	GRPCAddress     string        `mapstructure:"grpc_address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins limits websocket upgrades; empty allows any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RulesConfig holds the combat tuning constants.
type RulesConfig struct {
	SecondsPerTurn          int `mapstructure:"seconds_per_turn"`
	DefaultTurnSeconds      int `mapstructure:"default_turn_seconds"`
	MaxChainDepth           int `mapstructure:"max_chain_depth"`
	RepeatEscalationPercent int `mapstructure:"repeat_escalation_percent"`
}

// BoardConfig describes the hex board.
type BoardConfig struct {
	Radius  int     `mapstructure:"radius"`
	HexSize float64 `mapstructure:"hex_size"`
}

// AuditConfig selects the transaction audit sink.
type AuditConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ReplayConfig controls replay recording.
type ReplayConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// CatalogConfig points at the ability and unit catalog.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.grpc_address", ":9090")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("rules.seconds_per_turn", 6)
	v.SetDefault("rules.default_turn_seconds", 6)
	v.SetDefault("rules.max_chain_depth", 2)
	v.SetDefault("rules.repeat_escalation_percent", 50)

	v.SetDefault("board.radius", 8)
	v.SetDefault("board.hex_size", 1.0)

	v.SetDefault("audit.driver", "memory")
	v.SetDefault("audit.dsn", "")

	v.SetDefault("replay.enabled", false)
	v.SetDefault("replay.dir", "replays")

	v.SetDefault("catalog.path", "config/catalog.yaml")
}

// Load reads path (if non-empty), applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("HEXLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Rules.SecondsPerTurn <= 0 {
		return fmt.Errorf("rules.seconds_per_turn must be positive, got %d", c.Rules.SecondsPerTurn)
	}
	if c.Rules.DefaultTurnSeconds < 0 {
		return fmt.Errorf("rules.default_turn_seconds must not be negative, got %d", c.Rules.DefaultTurnSeconds)
	}
	if c.Rules.MaxChainDepth < 0 {
		return fmt.Errorf("rules.max_chain_depth must not be negative, got %d", c.Rules.MaxChainDepth)
	}
	if c.Board.Radius <= 0 {
		return fmt.Errorf("board.radius must be positive, got %d", c.Board.Radius)
	}
	switch c.Audit.Driver {
	case "memory", "none":
	case "sqlite", "postgres":
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required for driver %q", c.Audit.Driver)
		}
	default:
		return fmt.Errorf("unknown audit.driver %q", c.Audit.Driver)
	}
	return nil
}
