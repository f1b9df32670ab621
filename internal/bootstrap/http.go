package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicwatch/portal/config"
	httpx "github.com/civicwatch/portal/internal/http"
)

const shutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config  *config.AppConfig
	Runtime *PortalRuntime
	Redis   redis.UniversalClient
	Logger  *slog.Logger
}

// NewHTTPServer builds the portal's HTTP server without starting it.
func NewHTTPServer(cfg HTTPServerConfig) (*http.Server, error) {
	if cfg.Config == nil || cfg.Runtime == nil {
		return nil, errors.New("http server requires config and portal runtime")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config

	health := map[string]httpx.HealthCheck{}
	if cfg.Redis != nil {
		health["redis"] = redisHealth(cfg.Redis)
	}

	handler, err := httpx.NewRouter(httpx.RouterServices{
		Registry: cfg.Runtime.Registry,
		Redirect: cfg.Runtime.Redirect,
		Limiter: httpx.NewLoginLimiter(httpx.LoginLimiterConfig{
			Rate:  appCfg.HTTP.LoginRate,
			Burst: appCfg.HTTP.LoginBurst,
		}),
		CookieDomain:   appCfg.HTTP.CookieDomain,
		LoadingRefresh: appCfg.Guard.LoadingRefresh,
		Health:         health,
		IsDev:          appCfg.IsDev,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}

	addr := appCfg.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}, nil
}

// serveHTTP runs srv until it is shut down.
func serveHTTP(srv *http.Server, logger *slog.Logger) error {
	logger.Info("starting HTTP server", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// shutdownHTTP drains in-flight requests within the shutdown timeout.
func shutdownHTTP(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
