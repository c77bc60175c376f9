package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Providers a session can connect through.
const (
	ProviderRelay  = "relay"
	ProviderTwitch = "twitch"
	ProviderMock   = "mock"
)

type Config struct {
	Provider     string        `yaml:"provider"`
	SettingsPath string        `yaml:"settings_path"`
	Relay        RelayConfig   `yaml:"relay"`
	Twitch       TwitchConfig  `yaml:"twitch"`
	Mock         MockConfig    `yaml:"mock"`
	Session      SessionConfig `yaml:"session"`
	Sink         SinkConfig    `yaml:"sink"`
	Log          LogConfig     `yaml:"log"`
}

type RelayConfig struct {
	URL          string        `yaml:"url"`
	DialAttempts int           `yaml:"dial_attempts"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

type TwitchConfig struct {
	Username   string `yaml:"username"`
	OAuthToken string `yaml:"oauth_token"`
}

type MockConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Seed           int64         `yaml:"seed"`
	DropAfter      int           `yaml:"drop_after"`
	MalformedEvery int           `yaml:"malformed_every"`
}

type SessionConfig struct {
	StopTimeout    time.Duration `yaml:"stop_timeout"`
	FlagNewViewers *bool         `yaml:"flag_new_viewers"`
}

type SinkConfig struct {
	MaxPending int `yaml:"max_pending"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Provider: ProviderRelay,
		Relay: RelayConfig{
			URL:          "ws://127.0.0.1:21213/",
			DialAttempts: 3,
			PingInterval: 30 * time.Second,
		},
		Mock: MockConfig{
			Interval:       400 * time.Millisecond,
			MalformedEvery: 25,
		},
		Session: SessionConfig{
			StopTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config over the defaults. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderRelay, ProviderTwitch, ProviderMock:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Provider == ProviderRelay && c.Relay.URL == "" {
		return errors.New("relay.url is required for the relay provider")
	}
	if c.Relay.DialAttempts < 1 {
		return errors.New("relay.dial_attempts must be at least 1")
	}
	if c.Relay.PingInterval <= 0 {
		return errors.New("relay.ping_interval must be positive")
	}
	if c.Mock.Interval <= 0 {
		return errors.New("mock.interval must be positive")
	}
	if c.Session.StopTimeout <= 0 {
		return errors.New("session.stop_timeout must be positive")
	}
	if c.Sink.MaxPending < 0 {
		return errors.New("sink.max_pending must not be negative")
	}
	return nil
}

// FlagNewViewers reports whether first-time commenters are announced,
// falling back to def when the file leaves it unset.
func (c *Config) FlagNewViewers(def bool) bool {
	if c.Session.FlagNewViewers == nil {
		return def
	}
	return *c.Session.FlagNewViewers
}
