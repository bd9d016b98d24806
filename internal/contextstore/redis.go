// Package contextstore holds the sliding conversation context for active
// sessions in a fast expiring cache. Entries live for one hour of
// inactivity; every read or write refreshes the TTL. An expired entry is
// not a failure: the orchestrator rebuilds it from durable history.
package contextstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"telemed-engine/internal/consultation"
)

const (
	keyPrefix  = "chat_context_"
	defaultTTL = time.Hour
)

// RedisStore implements consultation.ContextStore over redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, ttl: defaultTTL}
}

func (s *RedisStore) Context(ctx context.Context, consultationID string) ([]consultation.Turn, error) {
	key := keyPrefix + consultationID
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read context")
	}

	var turns []consultation.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, errors.Wrap(err, "decode context")
	}
	// a read counts as activity
	s.client.Expire(ctx, key, s.ttl)
	return turns, nil
}

func (s *RedisStore) StoreContext(ctx context.Context, consultationID string, turns []consultation.Turn) error {
	data, err := json.Marshal(turns)
	if err != nil {
		return errors.Wrap(err, "encode context")
	}
	if err := s.client.Set(ctx, keyPrefix+consultationID, data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "store context")
	}
	return nil
}
