package redis

// Package redis provides Redis-based adapters for the civic portal.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/ports"
)

// IdentityStore is a Redis-based store for signed-in identities, keyed by browser session.
// TTL follows the record's ExpiresAt.
type IdentityStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewIdentityStore creates a new Redis-based identity store.
func NewIdentityStore(client redis.UniversalClient) *IdentityStore {
	return NewIdentityStoreWithPrefix(client, "identity:")
}

// NewIdentityStoreWithPrefix creates a Redis identity store with a custom key prefix.
func NewIdentityStoreWithPrefix(client redis.UniversalClient, prefix string) *IdentityStore {
	return &IdentityStore{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *IdentityStore) Save(ctx context.Context, sessionID string, rec domainauth.IdentityRecord) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if rec.Key == "" {
		return errors.New("identity key cannot be empty")
	}

	ttl := rec.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("identity is expired")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	return s.client.Set(ctx, s.prefix+sessionID, data, ttl).Err()
}

func (s *IdentityStore) Get(ctx context.Context, sessionID string) (domainauth.IdentityRecord, error) {
	if sessionID == "" {
		return domainauth.IdentityRecord{}, ErrNotFound
	}

	data, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.IdentityRecord{}, ErrNotFound
		}
		return domainauth.IdentityRecord{}, fmt.Errorf("redis get: %w", err)
	}

	var rec domainauth.IdentityRecord
	if unmarshalErr := json.Unmarshal(data, &rec); unmarshalErr != nil {
		return domainauth.IdentityRecord{}, fmt.Errorf("unmarshal identity: %w", unmarshalErr)
	}

	if rec.Expired(s.now()) {
		if deleteErr := s.Delete(ctx, sessionID); deleteErr != nil {
			return domainauth.IdentityRecord{}, fmt.Errorf("cleanup expired identity: %w", deleteErr)
		}
		return domainauth.IdentityRecord{}, ErrNotFound
	}

	return rec, nil
}

func (s *IdentityStore) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return s.client.Del(ctx, s.prefix+sessionID).Err()
}

// ErrNotFound is returned when a record is not found.
var ErrNotFound = ports.ErrNotFound
