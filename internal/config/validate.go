package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// JWT secrets
	if len(c.JWT.AccessSecret) < 32 {
		errs = append(errs, "JWT_ACCESS_SECRET must be at least 32 characters")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		errs = append(errs, "JWT_REFRESH_SECRET must be at least 32 characters")
	}
	if c.JWT.AccessSecret != "" && c.JWT.RefreshSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, "JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}
	if c.Ollama.Port < 1 || c.Ollama.Port > 65535 {
		errs = append(errs, fmt.Sprintf("OLLAMA_PORT must be 1-65535, got %d", c.Ollama.Port))
	}

	// Sampling parameters
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("OLLAMA_TEMPERATURE must be 0-2, got %g", c.Ollama.Temperature))
	}
	if c.Ollama.TopP < 0 || c.Ollama.TopP > 1 {
		errs = append(errs, fmt.Sprintf("OLLAMA_TOP_P must be 0-1, got %g", c.Ollama.TopP))
	}

	if c.Memory.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("MEMORY_RETENTION_DAYS must be positive, got %d", c.Memory.RetentionDays))
	}

	// Vendor endpoints: warn only, integrations are optional
	if c.Vendors.Bitrix24.BaseURL == "" {
		slog.Warn("BITRIX24_WEBHOOK_URL is empty, Bitrix24 integration disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
