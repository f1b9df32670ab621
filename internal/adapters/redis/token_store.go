package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore keeps auxiliary backend credentials under access-token:<sid>.
type TokenStore struct {
	client redis.UniversalClient
	prefix string
}

// NewTokenStore creates a Redis-backed token store.
func NewTokenStore(client redis.UniversalClient) *TokenStore {
	return &TokenStore{client: client, prefix: "access-token:"}
}

func (s *TokenStore) Save(ctx context.Context, sessionID, token string, ttl time.Duration) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("token is expired")
	}
	return s.client.Set(ctx, s.prefix+sessionID, token, ttl).Err()
}

func (s *TokenStore) Get(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrNotFound
	}
	tok, err := s.client.Get(ctx, s.prefix+sessionID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return tok, nil
}

func (s *TokenStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+sessionID).Err()
}
