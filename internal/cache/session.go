package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStorage adapts a Redis client to fiber.Storage so request sessions survive restarts
// and are shared between replicas.
type SessionStorage struct {
	rdb    *redis.Client
	prefix string
}

// NewSessionStorage returns a storage keeping entries under the session: prefix.
func NewSessionStorage(rdb *redis.Client) *SessionStorage {
	return &SessionStorage{rdb: rdb, prefix: SessionKeyPrefix}
}

// Get returns nil, nil for missing keys, as fiber.Storage requires.
func (s *SessionStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	val, err := s.rdb.Get(context.Background(), s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *SessionStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	return s.rdb.Set(context.Background(), s.prefix+key, val, exp).Err()
}

func (s *SessionStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	return s.rdb.Del(context.Background(), s.prefix+key).Err()
}

// Reset removes every session entry, leaving other keys alone.
func (s *SessionStorage) Reset() error {
	ctx := context.Background()
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := s.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return s.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

// Close is a no-op: the client is shared and closed by the server on shutdown.
func (s *SessionStorage) Close() error {
	return nil
}
