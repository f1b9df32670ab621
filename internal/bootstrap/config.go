package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/civicwatch/portal/config"
)

// InitLogger initializes the structured logger.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// DevLogger swaps in a text logger with debug output for local development.
func DevLogger() *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig rejects configurations the portal cannot start with.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if cfg.Backend.BaseURL == "" {
		return errors.New("BACKEND_BASE_URL is required")
	}

	switch cfg.Auth.Mode {
	case config.AuthModeOAuth:
		oauth := cfg.Auth.OAuth
		var missing []error
		if oauth.DiscoveryURL == "" {
			missing = append(missing, errors.New("OAUTH_DISCOVERY_URL is required"))
		}
		if oauth.ClientID == "" {
			missing = append(missing, errors.New("OAUTH_CLIENT_ID is required"))
		}
		if oauth.ClientSecret == "" {
			missing = append(missing, errors.New("OAUTH_CLIENT_SECRET is required"))
		}
		if len(missing) > 0 {
			return fmt.Errorf("oauth auth mode: %w", errors.Join(missing...))
		}
	case config.AuthModeMock:
		if !cfg.IsDev {
			return errors.New("mock auth mode is only allowed with DEV=true")
		}
		if len(cfg.Auth.DevAuth.ParseUsers()) == 0 {
			return errors.New("mock auth mode needs at least one DEV_AUTH_USERS entry")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
	return nil
}
