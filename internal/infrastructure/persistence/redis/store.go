// Package redis implements the key-value store on Redis string keys. Writes
// are retried with backoff since the server may be briefly unreachable.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/pkg/circuitbreaker"
	"github.com/streakhub/streak-hub/pkg/logger"
	"github.com/streakhub/streak-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address in "host:port" format.
	Addr string

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// PoolSize is the maximum number of socket connections.
	PoolSize int

	// DialTimeout is the timeout for establishing new connections.
	DialTimeout time.Duration

	// ReadTimeout is the timeout for socket reads.
	ReadTimeout time.Duration

	// WriteTimeout is the timeout for socket writes.
	WriteTimeout time.Duration

	// Retry controls how failed commands are retried.
	Retry retry.Config
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Retry:        retry.StorageConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("redis: address is required")
	}
	if c.DB < 0 || c.DB > 15 {
		return fmt.Errorf("redis: db must be between 0 and 15, got %d", c.DB)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrConnection is returned when Redis cannot be reached at startup.
	ErrConnection = errors.New("redis: connection failed")

	// ErrKeyEmpty is returned when an empty key is provided.
	ErrKeyEmpty = errors.New("redis: key cannot be empty")
)

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is a KeyValueStore over plain Redis string keys without TTL.
type Store struct {
	client  *redis.Client
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ shared.KeyValueStore = (*Store)(nil)

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg Config, log *slog.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return NewStoreFromClient(client, cfg.Retry, log), nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(client *redis.Client, rc retry.Config, log *slog.Logger) *Store {
	s := &Store{
		client: client,
		retry:  rc,
		logger: logger.OrDefault(log).With(logger.Component("redis_store")),
	}
	s.retry.OnRetry = func(err error, delay time.Duration) {
		s.logger.Warn("redis command failed, retrying", logger.Err(err), slog.Duration("delay", delay))
	}
	s.breaker = circuitbreaker.New(circuitbreaker.Config{
		Name: "redis",
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return s
}

// Get returns the string stored under key. redis.Nil maps to a miss.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrKeyEmpty
	}

	var (
		value string
		found bool
	)
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, s.retry, func(ctx context.Context) error {
			val, err := s.client.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				value, found = "", false
				return nil
			}
			if err != nil {
				return classify(err)
			}
			value, found = val, true
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, found, nil
}

// Set stores value under key with no expiry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrKeyEmpty
	}

	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, s.retry, func(ctx context.Context) error {
			return classify(s.client.Set(ctx, key, value, 0).Err())
		})
	})
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Breaker exposes the circuit breaker guarding this store.
func (s *Store) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// classify marks errors that will not heal by retrying.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.ErrClosed) || errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	return err
}
