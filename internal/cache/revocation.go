package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by operations that need Redis when none is configured.
var ErrUnavailable = errors.New("cache: redis unavailable")

// RevokeToken blacklists an access token ID until it would have expired anyway.
func RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if client == nil {
		return ErrUnavailable
	}
	if ttl <= 0 {
		return nil
	}
	return client.Set(ctx, BlacklistKey(jti), "1", ttl).Err()
}

// IsTokenRevoked reports whether jti has been blacklisted. Lookup failures report false.
func IsTokenRevoked(ctx context.Context, jti string) bool {
	if client == nil || jti == "" {
		return false
	}
	n, err := client.Exists(ctx, BlacklistKey(jti)).Result()
	return err == nil && n > 0
}
