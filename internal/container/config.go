// Package container provides dependency injection and lifecycle management
// for the moderation service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Search (Elasticsearch) configuration
	Search SearchConfig

	// Email delivery configuration
	Email EmailConfig

	// Sanction approval-window configuration
	Sanction SanctionConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// SearchConfig holds Elasticsearch settings for the reindex pipeline.
type SearchConfig struct {
	// Addresses are the cluster endpoints
	Addresses []string

	// Username authenticates against the cluster
	Username string

	// Password authenticates against the cluster
	Password string

	// Index receives reindex request documents
	Index string
}

// EmailConfig holds SMTP delivery settings.
type EmailConfig struct {
	// Host is the SMTP server host
	Host string

	// Port is the SMTP server port
	Port int

	// Username authenticates against the server
	Username string

	// Password authenticates against the server
	Password string

	// FromAddress is the sender on every notification
	FromAddress string
}

// SanctionConfig holds token and sweep settings for sanction approvals.
type SanctionConfig struct {
	// TokenSecret signs the emailed decision tokens
	TokenSecret string

	// TokenTTL bounds a decision token's lifetime
	TokenTTL time.Duration

	// ApprovalWindowSpec is the cron schedule of the approval-window sweep
	ApprovalWindowSpec string

	// EmbargoSpec is the cron schedule of the elapsed-embargo sweep
	EmbargoSpec string

	// SweepTimeout bounds one sweep run
	SweepTimeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for incoming requests
	ReadTimeout time.Duration

	// WriteTimeout for outgoing responses
	WriteTimeout time.Duration
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if len(c.Search.Addresses) == 0 {
		return fmt.Errorf("search addresses are required")
	}
	if c.Email.FromAddress == "" {
		return fmt.Errorf("email from address is required")
	}
	if c.Sanction.TokenSecret == "" {
		return fmt.Errorf("sanction token secret is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	return nil
}
