// Package cache keeps fetched audio features in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/justestif/go-spotify-track-ranker/internal/feature"
)

const (
	keyPrefix   = "features:"
	pingTimeout = 5 * time.Second
)

// RedisStore stores one JSON-encoded record per track under features:<id>.
// Keys expire after the store's TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis server at addr and verifies it answers.
func NewRedisStore(ctx context.Context, addr string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// GetFeatures returns the stored records for ids. Missing or expired keys
// are absent from the map.
func (s *RedisStore) GetFeatures(ctx context.Context, ids []string) (map[string]*feature.Record, error) {
	if len(ids) == 0 {
		return map[string]*feature.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = key(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading audio features: %w", err)
	}
	return decodeValues(ids, values)
}

// PutFeatures writes records in one pipeline. Nil records are skipped.
func (s *RedisStore) PutFeatures(ctx context.Context, records map[string]*feature.Record) error {
	pipe := s.client.Pipeline()
	queued := 0
	for id, rec := range records {
		if rec == nil {
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding audio features for %s: %w", id, err)
		}
		pipe.Set(ctx, key(id), data, s.ttl)
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing audio features: %w", err)
	}
	return nil
}

func key(id string) string {
	return keyPrefix + id
}

// decodeValues pairs an MGET reply with the requested ids.
func decodeValues(ids []string, values []interface{}) (map[string]*feature.Record, error) {
	if len(values) != len(ids) {
		return nil, fmt.Errorf("redis returned %d values for %d keys", len(values), len(ids))
	}

	result := make(map[string]*feature.Record, len(ids))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T for %s", v, key(ids[i]))
		}
		var rec feature.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("decoding audio features for %s: %w", ids[i], err)
		}
		result[ids[i]] = &rec
	}
	return result, nil
}
