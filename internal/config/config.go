// Package config loads the broker's runtime configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every tunable named in the specification's configuration
// key table, grouped the way the table groups them.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Timing   TimingConfig   `mapstructure:"timing"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Provider ProviderConfig `mapstructure:"provider"`
	Security SecurityConfig `mapstructure:"security"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Database DatabaseConfig `mapstructure:"database"`
	Events   EventsConfig   `mapstructure:"events"`

	LogLevel string `mapstructure:"log_level"`
	Env      string `mapstructure:"env"`
}

type ServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxMessageSize int    `mapstructure:"max_message_size"`
	TLSEnabled     bool   `mapstructure:"tls_enabled"`
}

type TimingConfig struct {
	RegistrationTimeout time.Duration `mapstructure:"registration_timeout"`
	HeartbeatInterval   time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout    time.Duration `mapstructure:"heartbeat_timeout"`
	ProviderTimeout     time.Duration `mapstructure:"provider_timeout"`
	RepositoryTimeout   time.Duration `mapstructure:"repository_timeout"`
	ShutdownGrace       time.Duration `mapstructure:"shutdown_grace"`
}

type AuthConfig struct {
	TokenSecret string   `mapstructure:"token_secret"`
	APIKeys     []string `mapstructure:"api_keys"` // "client_id:token" pairs
}

type ProviderConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
	StunURL   string `mapstructure:"stun_url"`
}

// AdminConfig governs internal/adminapi, the Fiber-based provisioning
// and introspection plane kept separate from the binary socket
// protocol's own port.
type AdminConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	DefaultTokenTTL time.Duration `mapstructure:"default_token_ttl"`
	MaxTokenTTL     time.Duration `mapstructure:"max_token_ttl"`
}

// DatabaseConfig selects and configures the repository backing.
type DatabaseConfig struct {
	Store string `mapstructure:"store"` // "postgres" or "memory"
	DSN   string `mapstructure:"dsn"`
}

// EventsConfig selects the lifecycle-event publisher's backing (§4.8).
type EventsConfig struct {
	Backing   string `mapstructure:"backing"` // "amqp" or "in_process"
	AMQPURI   string `mapstructure:"amqp_uri"`
	QueueSize int    `mapstructure:"queue_size"`
}

type SecurityConfig struct {
	RateLimitEnabled     bool     `mapstructure:"rate_limit_enabled"`
	MaxMessagesPerMinute int      `mapstructure:"max_messages_per_minute"`
	MaxConnectionsPerIP  int      `mapstructure:"max_connections_per_ip"`
	AllowedOrigins       []string `mapstructure:"allowed_origins"`
}

// Default returns the spec's §6 defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           7350,
			MaxConnections: 1000,
			MaxMessageSize: 1 << 20, // 1 MiB
			TLSEnabled:     false,
		},
		Timing: TimingConfig{
			RegistrationTimeout: 10 * time.Second,
			HeartbeatInterval:   30 * time.Second,
			HeartbeatTimeout:    90 * time.Second,
			ProviderTimeout:     10 * time.Second,
			RepositoryTimeout:   5 * time.Second,
			ShutdownGrace:       10 * time.Second,
		},
		Security: SecurityConfig{
			RateLimitEnabled:     false,
			MaxMessagesPerMinute: 120,
			MaxConnectionsPerIP:  20,
		},
		Admin: AdminConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			DefaultTokenTTL: time.Hour,
			MaxTokenTTL:     24 * time.Hour,
		},
		Database: DatabaseConfig{
			Store: "memory",
		},
		Events: EventsConfig{
			Backing:   "in_process",
			QueueSize: 256,
		},
		LogLevel: "info",
		Env:      "development",
	}
}

// Load resolves configuration: defaults, then an optional config file
// (cfgFile, or ./broker.yaml if unset), then BROKER_-prefixed environment
// variables, in increasing priority.
func Load(cfgFile string) (*Config, error) {
	_ = godotenv.Load() // developer convenience; absence is not an error

	cfg := Default()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("broker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/broker")
	}

	v.SetEnvPrefix("BROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the broker cannot safely start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Provider.AppID == "" {
		return fmt.Errorf("provider.app_id is required")
	}
	if c.Timing.HeartbeatTimeout <= c.Timing.HeartbeatInterval {
		return fmt.Errorf("timing.heartbeat_timeout must exceed timing.heartbeat_interval")
	}
	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}
	if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
		return fmt.Errorf("admin.port out of range: %d", c.Admin.Port)
	}
	return nil
}

// APIKeyPairs parses the "client_id:token" static key list into a map.
func (c *Config) APIKeyPairs() map[string]string {
	pairs := make(map[string]string, len(c.Auth.APIKeys))
	for _, raw := range c.Auth.APIKeys {
		parts := strings.SplitN(raw, ":", 2)
		if len(parts) != 2 {
			continue
		}
		pairs[parts[0]] = parts[1]
	}
	return pairs
}
