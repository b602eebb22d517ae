// Package config provides configuration management for the dispatch service.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metabase MetabaseConfig `mapstructure:"metabase"`
	Meta     MetaConfig     `mapstructure:"meta"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Debug    DebugConfig    `mapstructure:"debug"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RedisConfig holds the dedup ledger store configuration.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

// MetabaseConfig holds the analytics source configuration. SessionToken is
// preferred; APIToken is the fallback credential.
type MetabaseConfig struct {
	SiteURL      string `mapstructure:"site_url"`
	SessionToken string `mapstructure:"session_token"`
	APIToken     string `mapstructure:"api_token"`
	QuestionID   string `mapstructure:"question_id"`
	DateStart    string `mapstructure:"date_start"`
	DateEnd      string `mapstructure:"date_end"`
	BotID        string `mapstructure:"bot_id"`
	DateStartTag string `mapstructure:"date_start_tag"`
	DateEndTag   string `mapstructure:"date_end_tag"`
	BotIDTag     string `mapstructure:"bot_id_tag"`
}

// EffectiveToken resolves the credential sources in order: session token
// first, API token second. Empty when neither is configured.
func (m MetabaseConfig) EffectiveToken() string {
	if m.SessionToken != "" {
		return m.SessionToken
	}
	return m.APIToken
}

// MetaConfig holds the Conversions API delivery configuration.
type MetaConfig struct {
	GraphURL      string `mapstructure:"graph_url"`
	PixelID       string `mapstructure:"pixel_id"`
	AccessToken   string `mapstructure:"access_token"`
	TestEventCode string `mapstructure:"test_event_code"`
	ActionSource  string `mapstructure:"action_source"`
}

// DispatchConfig holds pipeline tuning.
type DispatchConfig struct {
	// TestNumbers is a comma-separated list of E.164 numbers excluded from
	// dispatch (internal and test phones).
	TestNumbers string `mapstructure:"test_numbers"`
	// LedgerTTL is how long dedup markers persist.
	LedgerTTL time.Duration `mapstructure:"ledger_ttl"`
}

// DebugConfig gates the diagnostic endpoints. Never enable in the scheduled
// deployment.
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load reads configuration from an optional file plus CAPI_-prefixed
// environment variables, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("CAPI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate enforces the required values. Credential resolution happens once
// here; a missing credential is a startup failure, not a runtime one.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Metabase.SiteURL == "" {
		return errors.New("metabase.site_url is required")
	}
	if c.Metabase.QuestionID == "" {
		return errors.New("metabase.question_id is required")
	}
	if c.Metabase.EffectiveToken() == "" {
		return errors.New("metabase credentials missing: set metabase.session_token or metabase.api_token")
	}
	if c.Meta.PixelID == "" {
		return errors.New("meta.pixel_id is required")
	}
	if c.Meta.AccessToken == "" {
		return errors.New("meta.access_token is required")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("redis.url", "redis://localhost:6379/0")

	v.SetDefault("metabase.date_start_tag", "date_start")
	v.SetDefault("metabase.date_end_tag", "date_end")
	v.SetDefault("metabase.bot_id_tag", "bot_id")

	v.SetDefault("meta.graph_url", "https://graph.facebook.com/v18.0")
	v.SetDefault("meta.action_source", "website")

	v.SetDefault("dispatch.ledger_ttl", "4320h")

	v.SetDefault("debug.enabled", false)
}
