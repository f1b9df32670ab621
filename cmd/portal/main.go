package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/civicwatch/portal/config"
	"github.com/civicwatch/portal/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.IsDev {
		logger = bootstrap.DevLogger()
	}
	slog.SetDefault(logger)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateConfig(&cfg); err != nil {
		return err
	}

	redisClient, err := bootstrap.ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", cerr)
		}
	}()

	runtime, err := bootstrap.BuildPortal(bootstrap.PortalDeps{
		Config: &cfg,
		Redis:  redisClient,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	srv, err := bootstrap.NewHTTPServer(bootstrap.HTTPServerConfig{
		Config:  &cfg,
		Runtime: runtime,
		Redis:   redisClient,
		Logger:  logger,
	})
	if err != nil {
		_ = runtime.Close()
		return err
	}

	return bootstrap.Run(ctx, bootstrap.RunConfig{
		Server:  srv,
		Runtime: runtime,
		Logger:  logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting issue portal",
		"auth_mode", cfg.Auth.Mode,
		"backend", cfg.Backend.BaseURL,
		"http_addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev)
}
