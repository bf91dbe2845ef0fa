package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    SearchConfig    `mapstructure:"search"`
	Email     EmailConfig     `mapstructure:"email"`
	Sanctions SanctionsConfig `mapstructure:"sanctions"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SearchConfig holds Elasticsearch configuration
type SearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// EmailConfig holds SMTP notification configuration
type EmailConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
}

// SanctionsConfig holds approval-window and sweep configuration
type SanctionsConfig struct {
	TokenSecret        string        `mapstructure:"token_secret"`
	TokenTTL           time.Duration `mapstructure:"token_ttl"`
	ApprovalWindowSpec string        `mapstructure:"approval_window_spec"`
	EmbargoSpec        string        `mapstructure:"embargo_spec"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/moderation.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Search defaults
	viper.SetDefault("search.addresses", []string{"http://localhost:9200"})
	viper.SetDefault("search.index", "moderation-reindex")

	// Email defaults
	viper.SetDefault("email.port", 587)

	// Sanction defaults
	viper.SetDefault("sanctions.token_ttl", 72*time.Hour)
	viper.SetDefault("sanctions.approval_window_spec", "@every 10m")
	viper.SetDefault("sanctions.embargo_spec", "@hourly")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	// Sensitive credentials from environment
	viper.BindEnv("search.username", "SEARCH_USERNAME")
	viper.BindEnv("search.password", "SEARCH_PASSWORD")
	viper.BindEnv("email.username", "SMTP_USERNAME")
	viper.BindEnv("email.password", "SMTP_PASSWORD")
	viper.BindEnv("sanctions.token_secret", "SANCTION_TOKEN_SECRET")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Sanctions.TokenSecret == "" {
		return fmt.Errorf("sanctions.token_secret is required")
	}
	if c.Email.FromAddress == "" {
		return fmt.Errorf("email.from_address is required")
	}
	if len(c.Search.Addresses) == 0 {
		return fmt.Errorf("search.addresses is required")
	}
	return nil
}
