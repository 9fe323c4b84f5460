package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	if err := validateServer(cfg.Server); err != nil {
		errs = append(errs, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errs = append(errs, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errs = append(errs, err)
	}

	if err := validateSources(cfg.Sources); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "host is required",
		}
	}

	if cfg.Postgres.Port < 1 || cfg.Postgres.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Postgres.Port),
		}
	}

	if cfg.Postgres.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "database name is required",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return &ValidationError{
				Field:   "broker.kafka.brokers",
				Message: "at least one broker address is required when broker type is kafka",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unsupported broker type %q, expected 'kafka' or 'none'", cfg.Type),
		}
	}
}

func validateSources(cfg SourcesConfig) error {
	if err := validateSource("sources.ap_email", cfg.APEmail); err != nil {
		return err
	}
	return validateSource("sources.accounting", cfg.Accounting)
}

func validateSource(field string, cfg SourceConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.BaseURL == "" {
		return &ValidationError{
			Field:   field + ".base_url",
			Message: "base_url is required for an enabled source",
		}
	}

	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return &ValidationError{
			Field:   field + ".base_url",
			Message: fmt.Sprintf("base_url is not a valid URL: %v", err),
		}
	}

	if cfg.TimeoutSeconds < 0 {
		return &ValidationError{
			Field:   field + ".timeout_seconds",
			Message: "timeout must not be negative",
		}
	}

	return nil
}
