package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicwatch/portal/config"
	"github.com/civicwatch/portal/internal/adapters/authstate"
	"github.com/civicwatch/portal/internal/adapters/backend"
	redisadapter "github.com/civicwatch/portal/internal/adapters/redis"
	"github.com/civicwatch/portal/internal/gateway"
	"github.com/civicwatch/portal/internal/observability/statsd"
	"github.com/civicwatch/portal/internal/ports"
	"github.com/civicwatch/portal/internal/roles"
	"github.com/civicwatch/portal/internal/service"
)

// PortalDeps groups the shared infrastructure browser sessions are built on.
type PortalDeps struct {
	Config *config.AppConfig
	Redis  redis.UniversalClient
	Logger *slog.Logger
}

// PortalRuntime holds the long-lived pieces of a running portal.
type PortalRuntime struct {
	Registry  *service.Registry
	Redirect  ports.RedirectAuthenticator
	RoleCache *roles.Cache
	Metrics   *statsd.Client
}

// Close releases the registry and the metrics connection.
func (rt *PortalRuntime) Close() error {
	rt.Registry.Close()
	return rt.Metrics.Close()
}

// BuildPortal wires the shared stores, the identity provider and the registry
// that creates one portal per browser session.
func BuildPortal(deps PortalDeps) (*PortalRuntime, error) {
	if deps.Config == nil || deps.Redis == nil {
		return nil, errors.New("portal requires config and redis")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := buildMetrics(cfg.Observability.Metrics, logger)

	providers, err := BuildAuthProviders(AuthConfig{
		Auth:   cfg.Auth,
		Store:  redisadapter.NewIdentityStore(deps.Redis),
		Hub:    authstate.NewHub(),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	roleCache := roles.NewCache(redisadapter.NewRoleCache(deps.Redis), roles.CacheConfig{
		TTL:           cfg.RoleCache.TTL,
		LocalCapacity: cfg.RoleCache.LocalCapacity,
		LocalTTL:      cfg.RoleCache.LocalTTL,
		Logger:        logger,
	})

	factory, err := newSessionFactory(sessionFactoryConfig{
		Providers: providers.Sessions,
		Tokens:    redisadapter.NewTokenStore(deps.Redis),
		Backend:   cfg.Backend,
		Gateway:   cfg.Gateway,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	registry, err := service.NewRegistry(service.RegistryOptions{
		Factory:   factory,
		RoleCache: roleCache,
		Config: service.RegistryConfig{
			Portal:      service.PortalConfig{SettleTimeout: cfg.Guard.SettleTimeout},
			IdleTimeout: cfg.Guard.IdleTimeout,
		},
		Logger:  logger,
		Metrics: statsd.WithTags(metrics, map[string]string{"auth_mode": string(cfg.Auth.Mode)}),
	})
	if err != nil {
		return nil, fmt.Errorf("create portal registry: %w", err)
	}

	return &PortalRuntime{
		Registry:  registry,
		Redirect:  providers.Redirect,
		RoleCache: roleCache,
		Metrics:   metrics,
	}, nil
}

// buildMetrics returns a statsd client; a disabled or unreachable sink yields a no-op client.
func buildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	if cfg.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.StatsdAddress,
			Prefix:  cfg.Prefix,
			Tags:    cfg.Tags,
			Logger:  logger,
		})
		if err == nil {
			return client
		}
		logger.Error("failed to initialise statsd client", "error", err)
	}
	client, _ := statsd.NewClient(statsd.Config{Logger: logger})
	return client
}

type sessionFactoryConfig struct {
	Providers ports.IdentityProviders
	Tokens    ports.TokenStore
	Backend   config.BackendConfig
	Gateway   config.GatewayConfig
	Logger    *slog.Logger
}

// newSessionFactory returns the factory that gives each browser session its own
// provider view, minted backend credential and authenticated gateway.
func newSessionFactory(cfg sessionFactoryConfig) (service.SessionFactory, error) {
	transport := backendTransport(cfg.Backend.Timeout)
	gwOpts := gateway.Options{
		BlockedSignal:      cfg.Gateway.BlockedSignal,
		SignOutOnForbidden: cfg.Gateway.SignOutOnForbidden,
		Logger:             cfg.Logger,
	}

	// Token minting runs before a session has a backend credential.
	anonymous, err := gateway.New(transport, nil, gwOpts)
	if err != nil {
		return nil, fmt.Errorf("create mint gateway: %w", err)
	}
	minter, err := backend.NewClient(cfg.Backend.BaseURL, anonymous)
	if err != nil {
		return nil, fmt.Errorf("create mint client: %w", err)
	}

	return func(sessionID string) (service.SessionDeps, error) {
		creds, err := backend.NewMintedCredentials(backend.CredentialsConfig{
			SessionID:   sessionID,
			Minter:      minter,
			Store:       cfg.Tokens,
			RefreshSkew: cfg.Gateway.TokenRefreshSkew,
			FallbackTTL: cfg.Gateway.TokenFallbackTTL,
		})
		if err != nil {
			return service.SessionDeps{}, err
		}
		gw, err := gateway.New(transport, creds, gwOpts)
		if err != nil {
			return service.SessionDeps{}, err
		}
		client, err := backend.NewClient(cfg.Backend.BaseURL, gw)
		if err != nil {
			return service.SessionDeps{}, err
		}
		return service.SessionDeps{
			Provider:    cfg.Providers.ForSession(sessionID),
			Credentials: creds,
			Gateway:     gw,
			Backend:     client,
		}, nil
	}, nil
}

// backendTransport is shared by every session's gateway so connections are pooled.
func backendTransport(timeout time.Duration) *http.Transport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}
