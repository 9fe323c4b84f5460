package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:                8080,
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 15,
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:   "localhost",
				Port:   5432,
				User:   "intake",
				DBName: "intake",
			},
		},
		Broker: BrokerConfig{Type: "none"},
		Sources: SourcesConfig{
			APEmail: SourceConfig{
				Enabled: true,
				BaseURL: "http://mailbox-gateway:8080",
			},
		},
	}
}

func TestValidateStatic_Valid(t *testing.T) {
	assert.NoError(t, ValidateStatic(validConfig()))
}

func TestValidateStatic_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "port out of range",
			mutate: func(c *Config) { c.Server.Port = 0 },
			field:  "server.port",
		},
		{
			name:   "zero read timeout",
			mutate: func(c *Config) { c.Server.ReadTimeoutSeconds = 0 },
			field:  "server.read_timeout_seconds",
		},
		{
			name:   "missing database host",
			mutate: func(c *Config) { c.Database.Postgres.Host = "" },
			field:  "database.postgres.host",
		},
		{
			name:   "missing database name",
			mutate: func(c *Config) { c.Database.Postgres.DBName = "" },
			field:  "database.postgres.dbname",
		},
		{
			name:   "unsupported broker type",
			mutate: func(c *Config) { c.Broker.Type = "rabbitmq" },
			field:  "broker.type",
		},
		{
			name: "kafka without brokers",
			mutate: func(c *Config) {
				c.Broker.Type = "kafka"
				c.Broker.Kafka.Brokers = nil
			},
			field: "broker.kafka.brokers",
		},
		{
			name: "enabled source without base url",
			mutate: func(c *Config) {
				c.Sources.Accounting = SourceConfig{Enabled: true}
			},
			field: "sources.accounting.base_url",
		},
		{
			name: "enabled source with malformed base url",
			mutate: func(c *Config) {
				c.Sources.APEmail.BaseURL = "not a url"
			},
			field: "sources.ap_email.base_url",
		},
		{
			name: "negative source timeout",
			mutate: func(c *Config) {
				c.Sources.APEmail.TimeoutSeconds = -1
			},
			field: "sources.ap_email.timeout_seconds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateStatic_DisabledSourceSkipsChecks(t *testing.T) {
	cfg := validConfig()
	cfg.Sources.Accounting = SourceConfig{Enabled: false, BaseURL: ""}

	assert.NoError(t, ValidateStatic(cfg))
}

func TestValidateStatic_EmptyBrokerTypeIsNone(t *testing.T) {
	cfg := validConfig()
	cfg.Broker.Type = ""

	assert.NoError(t, ValidateStatic(cfg))
}
