// Package config loads application settings through viper from defaults, an
// optional config file and CSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/soar/ControllerSync/internal/synccontrol"
)

// EnvPrefix is the prefix of environment variable overrides, e.g. CSYNC_SERVER_ADDR.
const EnvPrefix = "CSYNC"

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=console json"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAge     int    `mapstructure:"max_age" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

type ServerConfig struct {
	Addr             string        `mapstructure:"addr" validate:"required"`
	Minify           bool          `mapstructure:"minify"`
	Tray             bool          `mapstructure:"tray"`
	FullSyncInterval time.Duration `mapstructure:"full_sync_interval" validate:"gt=0"`
}

// GameSocketConfig configures the socket the game-side mod connects to.
type GameSocketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"startswith=/"`
}

type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker" validate:"required_if=Enabled true"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" validate:"required_if=Enabled true"`
	QoS         byte   `mapstructure:"qos" validate:"lte=2"`
	Retained    bool   `mapstructure:"retained"`
}

// CalibrationConfig configures where exported calibration profiles are kept.
// An empty ProfileDir disables persistence.
type CalibrationConfig struct {
	ProfileDir string `mapstructure:"profile_dir"`
}

type EngineConfig struct {
	TickInterval    time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	DefaultDeadzone float64       `mapstructure:"default_deadzone" validate:"gte=0,lt=1"`
	// DefaultProfile applies to sync controls that get a target before any
	// mapping configures them.
	DefaultProfile synccontrol.Profile `mapstructure:"default_profile"`
}

// Mapping binds a physical control to a sync control of the game.
type Mapping struct {
	// Device restricts the mapping to one device id; empty matches any device.
	Device string `mapstructure:"device"`
	// Control is the control name as reported by calibration, e.g. "lt" or "Axis4".
	Control    string              `mapstructure:"control" validate:"required"`
	Identifier string              `mapstructure:"identifier" validate:"required"`
	Property   string              `mapstructure:"property"`
	// Mode is ModeSync (the default) or ModeDirect.
	Mode    string              `mapstructure:"mode" validate:"omitempty,oneof=sync direct"`
	Profile synccontrol.Profile `mapstructure:"profile"`
}

// Mapping modes. A sync mapping moves its control through the motion engine;
// a direct mapping sends the output value to the game as soon as it changes.
const (
	ModeSync   = "sync"
	ModeDirect = "direct"
)

// IsDirect reports whether the mapping bypasses the motion engine.
func (m Mapping) IsDirect() bool {
	return m.Mode == ModeDirect
}

// Matches reports whether the mapping applies to a control of a device.
func (m Mapping) Matches(deviceID, control string) bool {
	return m.Control == control && (m.Device == "" || m.Device == deviceID)
}

type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Server      ServerConfig      `mapstructure:"server"`
	GameSocket  GameSocketConfig  `mapstructure:"game_socket"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Calibration CalibrationConfig `mapstructure:"calibration"`
	Mappings    []Mapping         `mapstructure:"mappings" validate:"dive"`
}

var validate = validator.New()

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.minify", true)
	v.SetDefault("server.tray", true)
	v.SetDefault("server.full_sync_interval", "5s")

	v.SetDefault("game_socket.enabled", true)
	v.SetDefault("game_socket.path", "/game")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "controllersync")
	v.SetDefault("mqtt.topic_prefix", "controllersync")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retained", false)

	v.SetDefault("engine.tick_interval", "10ms")
	v.SetDefault("engine.default_deadzone", 0.0)
	v.SetDefault("engine.default_profile.min", 0.0)
	v.SetDefault("engine.default_profile.max", 1.0)
	v.SetDefault("engine.default_profile.max_rate", synccontrol.DefaultMaxRate)
	v.SetDefault("engine.default_profile.epsilon", synccontrol.DefaultEpsilon)

	v.SetDefault("calibration.profile_dir", "")
}

// NewDefaultConfig returns the configuration built from defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads the config file (when given, or ./controllersync.yaml when
// present) and environment overrides into v, then decodes and validates it.
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("controllersync")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return NewConfigFromViper(v)
}

// NewConfigFromViper decodes and validates the settings held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := c.Engine.DefaultProfile.Validate(); err != nil {
		return fmt.Errorf("engine.default_profile: %w", err)
	}
	seen := make(map[string]bool, len(c.Mappings))
	for i, m := range c.Mappings {
		if err := m.Profile.Validate(); err != nil {
			return fmt.Errorf("mappings[%d] (%s): %w", i, m.Identifier, err)
		}
		key := m.Device + "/" + m.Control
		if seen[key] {
			return fmt.Errorf("mappings[%d]: control %q mapped twice", i, m.Control)
		}
		seen[key] = true
	}
	return nil
}
