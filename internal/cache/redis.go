// Package cache wraps the shared Redis client: cache-aside reads, token revocation and the
// storage behind HTTP sessions.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"welcomemat/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const connectTimeout = 5 * time.Second

var client *redis.Client

// errorCounter counts failed commands by name. redis.Nil is a miss, not a failure.
type errorCounter struct{}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		countError(err, cmd.Name())
		return err
	}
}

func (errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		countError(err, "pipeline")
		return err
	}
}

func countError(err error, command string) {
	if err != nil && !errors.Is(err, redis.Nil) {
		middleware.RedisErrors.WithLabelValues(command).Inc()
	}
}

// options accepts either a redis:// URL or a bare host:port.
func options(addr string) (*redis.Options, error) {
	if !strings.Contains(addr, "://") {
		return &redis.Options{Addr: addr}, nil
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL %q: %w", addr, err)
	}
	return opts, nil
}

// Connect dials addr and pings it. The returned client reports command errors to Prometheus.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := options(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	c.AddHook(errorCounter{})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// InitRedis points the package at addr. Redis is optional: on failure the client stays nil
// and every helper degrades to a no-op.
func InitRedis(addr string) {
	c, err := Connect(context.Background(), addr)
	if err != nil {
		log.Printf("Redis connection warning: %v (continuing without cache)", err)
		client = nil
		return
	}
	log.Println("Redis connected successfully")
	client = c
}

// GetClient returns the current Redis client instance.
func GetClient() *redis.Client {
	return client
}

// SetClient replaces the shared client. Tests use it to point the package at miniredis.
func SetClient(c *redis.Client) {
	client = c
}
