// Package config loads the client configuration from embedded defaults, an
// optional YAML file and ASSISTANT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	appdefaults "github.com/longregen/alicia-sub010/config"
	"github.com/longregen/alicia-sub010/internal/logger"
	"github.com/longregen/alicia-sub010/pkg/assistant"
)

// EnvPrefix is prepended to every environment override, e.g.
// ASSISTANT_BACKEND_URL.
const EnvPrefix = "assistant"

// BackendConfig locates the assistant backend.
type BackendConfig struct {
	URL              string        `mapstructure:"url"`
	Token            string        `mapstructure:"token"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	MaxFrameBytes    int64         `mapstructure:"max_frame_bytes"`
}

// ReconnectConfig controls the backoff policy. MaxAttempts 0 means unlimited.
type ReconnectConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// ToolsConfig selects the exposed tools.
type ToolsConfig struct {
	Manifest string        `mapstructure:"manifest"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ControlConfig configures the local HTTP control API.
type ControlConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Config is the full client configuration.
type Config struct {
	Backend   BackendConfig   `mapstructure:"backend"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Control   ControlConfig   `mapstructure:"control"`
	Log       logger.Config   `mapstructure:"log"`
}

// Load reads the embedded defaults, merges configPath when set and applies
// environment overrides. A relative tools.manifest is resolved against the
// directory of configPath.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return Config{}, fmt.Errorf("load embedded config: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := strings.TrimSpace(configPath)
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, err
		}
		path = absPath
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Tools.Manifest = strings.TrimSpace(cfg.Tools.Manifest)
	if cfg.Tools.Manifest != "" && path != "" && !filepath.IsAbs(cfg.Tools.Manifest) {
		cfg.Tools.Manifest = filepath.Join(filepath.Dir(path), cfg.Tools.Manifest)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	switch u, err := url.Parse(c.Backend.URL); {
	case strings.TrimSpace(c.Backend.URL) == "":
		errs = append(errs, errors.New("backend.url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("backend.url: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("backend.url: scheme %q, want ws or wss", u.Scheme))
	}

	durations := []struct {
		key   string
		value time.Duration
	}{
		{"backend.handshake_timeout", c.Backend.HandshakeTimeout},
		{"reconnect.initial_delay", c.Reconnect.InitialDelay},
		{"reconnect.max_delay", c.Reconnect.MaxDelay},
		{"heartbeat.interval", c.Heartbeat.Interval},
		{"tools.timeout", c.Tools.Timeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.key, d.value))
		}
	}
	if c.Backend.MaxFrameBytes <= 0 {
		errs = append(errs, fmt.Errorf("backend.max_frame_bytes must be positive, got %d", c.Backend.MaxFrameBytes))
	}
	if c.Reconnect.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts must not be negative, got %d", c.Reconnect.MaxAttempts))
	}
	if c.Control.Enabled && strings.TrimSpace(c.Control.Addr) == "" {
		errs = append(errs, errors.New("control.addr is required when control.enabled"))
	}
	return errors.Join(errs...)
}

// ClientConfig maps the loaded values onto the assistant client options.
func (c Config) ClientConfig() assistant.Config {
	return assistant.Config{
		URL:               c.Backend.URL,
		Token:             c.Backend.Token,
		HandshakeTimeout:  c.Backend.HandshakeTimeout,
		MaxFrameBytes:     c.Backend.MaxFrameBytes,
		InitialDelay:      c.Reconnect.InitialDelay,
		MaxDelay:          c.Reconnect.MaxDelay,
		MaxAttempts:       c.Reconnect.MaxAttempts,
		HeartbeatInterval: c.Heartbeat.Interval,
		ToolTimeout:       c.Tools.Timeout,
	}
}
