// Package redisstore is an optional session.Store backend for multi-
// instance gateway deployments, where the in-process InMemoryStore can't
// be shared across replicas. Each session's mappings are stored as one
// Redis hash (HSET sessionID placeholder payload) with a TTL refreshed
// on every write, so an abandoned session (client disconnected before
// CleanupSession ran) still expires instead of leaking forever.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/howard-nolan/codegate/internal/session"
)

// Store adapts a go-redis client to the session.Store interface.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

// New wraps rdb. ttl bounds how long an abandoned session's mappings
// survive if CleanupSession is never called (client disconnect, process
// crash); keyPrefix namespaces keys so a shared Redis instance can also
// serve other tenants.
func New(rdb *redis.Client, ttl time.Duration, keyPrefix string) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: keyPrefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *Store) AddMapping(ctx context.Context, sessionID string, kind session.Kind, payload string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("redisstore: empty session id")
	}
	placeholder, err := session.NewPlaceholder(kind)
	if err != nil {
		return "", err
	}
	key := s.key(sessionID)
	if err := s.rdb.HSet(ctx, key, placeholder, payload).Err(); err != nil {
		return "", fmt.Errorf("redisstore: HSET: %w", err)
	}
	if s.ttl > 0 {
		if err := s.rdb.Expire(ctx, key, s.ttl).Err(); err != nil {
			return "", fmt.Errorf("redisstore: EXPIRE: %w", err)
		}
	}
	return placeholder, nil
}

func (s *Store) GetMapping(ctx context.Context, sessionID, placeholder string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, s.key(sessionID), placeholder).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore: HGET: %w", err)
	}
	return v, true, nil
}

func (s *Store) GetBySession(ctx context.Context, sessionID string) (map[string]string, bool, error) {
	m, err := s.rdb.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redisstore: HGETALL: %w", err)
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	return m, true, nil
}

func (s *Store) CleanupSession(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redisstore: DEL: %w", err)
	}
	return nil
}

func (s *Store) Cleanup(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redisstore: DEL during cleanup: %w", err)
		}
	}
	return iter.Err()
}
