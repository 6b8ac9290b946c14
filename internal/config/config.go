package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete configuration for the fraud line service
type Config struct {
	Environment string         `mapstructure:"environment"`
	Debug       bool           `mapstructure:"debug"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Twilio      TwilioConfig   `mapstructure:"twilio"`
	Ledger      LedgerConfig   `mapstructure:"ledger"`
	Calls       CallsConfig    `mapstructure:"calls"`
	AI          AIConfig       `mapstructure:"ai"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	HTTPPort     int           `mapstructure:"http_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig contains database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// TwilioConfig contains telephony provider configuration.
// PublicBaseURL is the externally reachable base URL Twilio calls back into;
// it is resolved once at startup and immutable afterwards.
type TwilioConfig struct {
	AccountSID    string        `mapstructure:"account_sid"`
	AuthToken     string        `mapstructure:"auth_token"`
	PhoneNumber   string        `mapstructure:"phone_number"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// LedgerConfig contains the ration-ledger contract lookup configuration
type LedgerConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// CallsConfig contains outbound call configuration
type CallsConfig struct {
	RateLimitPerMin    int `mapstructure:"rate_limit_per_min"`
	RateLimitBurst     int `mapstructure:"rate_limit_burst"`
	MaxRecordingLength int `mapstructure:"max_recording_length"`
}

// AIConfig carries the AI provider key. The key is recognized and surfaced in
// diagnostics, but no analysis path invokes the provider; classification is
// keyword based.
type AIConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/fraudline")

	// Set default values
	setDefaults()

	// Enable environment variable binding
	viper.AutomaticEnv()
	viper.SetEnvPrefix("FRAUDLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.Twilio.PublicBaseURL = strings.TrimRight(config.Twilio.PublicBaseURL, "/")

	return &config, nil
}

// Validate checks the settings that dependent operations cannot work without.
// Missing credentials fail the owning component at startup rather than the
// first request that hits it.
func (c *Config) Validate() error {
	if c.Twilio.PublicBaseURL == "" {
		return fmt.Errorf("twilio.public_base_url is required")
	}
	if c.Database.Host == "" || c.Database.Name == "" {
		return fmt.Errorf("database host and name are required")
	}
	return nil
}

// TwilioConfigured reports whether outbound telephony credentials are present
func (c *Config) TwilioConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != ""
}

// LedgerConfigured reports whether the contract lookup can be performed
func (c *Config) LedgerConfigured() bool {
	return c.Ledger.RPCURL != "" && c.Ledger.ContractAddress != ""
}

// setDefaults sets default configuration values
func setDefaults() {
	// General
	viper.SetDefault("environment", "development")
	viper.SetDefault("debug", false)

	// Server
	viper.SetDefault("server.http_port", 5000)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "fraudline")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "file://migrations")

	// Twilio
	viper.SetDefault("twilio.public_base_url", "")
	viper.SetDefault("twilio.timeout", "30s")

	// Ledger
	viper.SetDefault("ledger.timeout", "15s")
	viper.SetDefault("ledger.cache_ttl", "5m")

	// Calls
	viper.SetDefault("calls.rate_limit_per_min", 10)
	viper.SetDefault("calls.rate_limit_burst", 3)
	viper.SetDefault("calls.max_recording_length", 60)

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
