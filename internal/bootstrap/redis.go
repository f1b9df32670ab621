package bootstrap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/civicwatch/portal/config"
)

const redisPingTimeout = 5 * time.Second

// ConnectRedis connects to Redis in direct, sentinel or cluster mode and pings it.
//
//nolint:ireturn // the concrete client depends on the configured topology.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	var (
		client redis.UniversalClient
		desc   string
		err    error
	)
	switch {
	case cfg.UseCluster:
		client, desc, err = clusterClient(cfg)
	case cfg.UseSentinel:
		client, desc, err = sentinelClient(cfg)
	default:
		client, desc, err = directClient(cfg)
	}
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected", "addr", redactAddr(desc))
	}
	return client, nil
}

// redisHealth is the readiness check for the shared Redis.
func redisHealth(client redis.UniversalClient) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

//nolint:ireturn // see ConnectRedis.
func clusterClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	opts := &redis.ClusterOptions{Addrs: trimAll(cfg.ClusterNodes), Password: cfg.Password}
	if len(opts.Addrs) == 0 {
		addr, user, pass, tlsCfg, err := fromRedisURI(cfg.URI, cfg.Password)
		if err != nil {
			return nil, "", err
		}
		if addr != "" {
			opts.Addrs = []string{addr}
			opts.Username = user
			opts.Password = pass
			opts.TLSConfig = tlsCfg
		}
	}
	if len(opts.Addrs) == 0 {
		return nil, "", errors.New("redis cluster needs at least one address")
	}
	return redis.NewClusterClient(opts), "cluster:" + strings.Join(opts.Addrs, ","), nil
}

//nolint:ireturn // see ConnectRedis.
func sentinelClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	nodes := trimAll(cfg.SentinelNodes)
	if len(nodes) == 0 {
		return nil, "", errors.New("redis sentinel needs at least one sentinel node")
	}
	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:       cfg.SentinelMasterName,
		SentinelAddrs:    nodes,
		Password:         cfg.Password,
		SentinelPassword: cfg.SentinelPassword,
	})
	return client, "sentinel:" + cfg.SentinelMasterName, nil
}

//nolint:ireturn // see ConnectRedis.
func directClient(cfg config.RedisConfig) (redis.UniversalClient, string, error) {
	uri := strings.TrimSpace(cfg.URI)
	if uri == "" {
		return nil, "", errors.New("redis URI is required")
	}
	if !isRedisURL(uri) {
		return redis.NewClient(&redis.Options{Addr: uri, Password: cfg.Password}), uri, nil
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), uri, nil
}

// fromRedisURI lets a single redis:// URI seed a cluster client.
func fromRedisURI(uri, password string) (addr, user, pass string, tlsCfg *tls.Config, err error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", "", password, nil, nil
	}
	if !isRedisURL(uri) {
		return uri, "", password, nil, nil
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return "", "", password, nil, fmt.Errorf("parse redis cluster url: %w", err)
	}
	if opt.Password != "" {
		password = opt.Password
	}
	return opt.Addr, opt.Username, password, opt.TLSConfig, nil
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isRedisURL(v string) bool {
	return strings.HasPrefix(v, "redis://") || strings.HasPrefix(v, "rediss://")
}

// redactAddr strips credentials from a connection description before logging.
func redactAddr(desc string) string {
	if u, err := url.Parse(desc); err == nil && u.User != nil {
		return u.Redacted()
	}
	if i := strings.LastIndex(desc, "@"); i > -1 {
		return desc[i+1:]
	}
	return desc
}
