// Package testutil holds helpers shared by the portal's package tests.
package testutil

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Skipf(format string, args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

const (
	pingTimeout = 2 * time.Second
	// Redis DB 0 holds the allocation counter; tests rotate through 1..15.
	dbCounterKey = "civic-portal:testutil:next-db"
	testDBs      = 15
)

// FixedTimeFunc returns a clock that always reports t.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// SetupTestRedis returns a client on a freshly flushed DB, or skips the test when
// no Redis answers. Set TEST_REQUIRE_REDIS=true to fail instead of skipping.
// PORTAL_TEST_REDIS may hold a host:port or a redis:// URL.
func SetupTestRedis(t TB) *redis.Client {
	t.Helper()

	opts, ok := reachableRedis(t)
	if !ok {
		if mustHaveRedis() {
			t.Fatalf("redis not available for testing")
		}
		t.Skipf("redis not available for testing")
	}

	opts.DB = allocateDB(t, opts)
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.FlushDB(ctx).Err(); err != nil {
		_ = client.Close()
		t.Fatalf("flush redis db %d: %v", opts.DB, err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("close redis test client: %v", err)
		}
	})
	return client
}

func mustHaveRedis() bool {
	v, err := strconv.ParseBool(os.Getenv("TEST_REQUIRE_REDIS"))
	return err == nil && v
}

func candidates() []string {
	if v := strings.TrimSpace(os.Getenv("PORTAL_TEST_REDIS")); v != "" {
		return []string{v}
	}
	return []string{"localhost:6379", "redis:6379", "localhost:56379"}
}

func reachableRedis(t TB) (*redis.Options, bool) {
	t.Helper()
	for _, c := range candidates() {
		opts, err := parseRedisTarget(c)
		if err != nil {
			t.Logf("skip redis candidate %q: %v", c, err)
			continue
		}
		if ping(opts) == nil {
			return opts, true
		}
	}
	return nil, false
}

func parseRedisTarget(target string) (*redis.Options, error) {
	if strings.HasPrefix(target, "redis://") || strings.HasPrefix(target, "rediss://") {
		return redis.ParseURL(target)
	}
	return &redis.Options{Addr: target}, nil
}

func ping(opts *redis.Options) error {
	c := redis.NewClient(opts)
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.Ping(ctx).Err()
}

// allocateDB spreads concurrently running test packages over DBs 1..15.
// TEST_REDIS_DB pins the choice.
func allocateDB(t TB, base *redis.Options) int {
	if v := os.Getenv("TEST_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil && db >= 0 {
			return db
		}
		t.Logf("ignoring invalid TEST_REDIS_DB=%q", v)
	}

	meta := *base
	meta.DB = 0
	c := redis.NewClient(&meta)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	n, err := c.Incr(ctx, dbCounterKey).Result()
	if err != nil {
		t.Logf("redis db counter unavailable, using DB 1: %v", err)
		return 1
	}
	return int(n%testDBs) + 1
}
