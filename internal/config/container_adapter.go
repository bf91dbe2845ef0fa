package config

import (
	"github.com/openscience/moderation/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Search: container.SearchConfig{
			Addresses: c.Search.Addresses,
			Username:  c.Search.Username,
			Password:  c.Search.Password,
			Index:     c.Search.Index,
		},
		Email: container.EmailConfig{
			Host:        c.Email.Host,
			Port:        c.Email.Port,
			Username:    c.Email.Username,
			Password:    c.Email.Password,
			FromAddress: c.Email.FromAddress,
		},
		Sanction: container.SanctionConfig{
			TokenSecret:        c.Sanctions.TokenSecret,
			TokenTTL:           c.Sanctions.TokenTTL,
			ApprovalWindowSpec: c.Sanctions.ApprovalWindowSpec,
			EmbargoSpec:        c.Sanctions.EmbargoSpec,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
	}
}
