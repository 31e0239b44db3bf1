package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/pkg/circuitbreaker"
	"github.com/streakhub/streak-hub/pkg/logger"
	"github.com/streakhub/streak-hub/pkg/retry"
)

// Store is a KeyValueStore over the kv_records table.
type Store struct {
	conn    *Connection
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

var _ shared.KeyValueStore = (*Store)(nil)

// Open connects to databaseURL and applies pending migrations.
func Open(ctx context.Context, databaseURL string, rc retry.Config, log *slog.Logger) (*Store, error) {
	conn, err := NewConnectionFromURL(ctx, databaseURL, DefaultPoolSettings())
	if err != nil {
		return nil, err
	}

	if err := NewMigrator(conn).Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	s := &Store{
		conn:   conn,
		retry:  rc,
		logger: logger.OrDefault(log).With(logger.Component("postgres_store")),
	}
	s.retry.OnRetry = func(err error, delay time.Duration) {
		s.logger.Warn("postgres query failed, retrying", logger.Err(err), slog.Duration("delay", delay))
	}
	s.breaker = circuitbreaker.New(circuitbreaker.Config{
		Name: "postgres",
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			s.logger.Warn("circuit breaker state changed",
				slog.String("breaker", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return s, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, s.retry, func(ctx context.Context) error {
			err := s.conn.QueryRow(ctx,
				`SELECT record_value FROM kv_records WHERE record_key = $1`, key,
			).Scan(&value)
			if errors.Is(err, pgx.ErrNoRows) {
				value, found = "", false
				return nil
			}
			if err != nil {
				return classify(err)
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return "", false, fmt.Errorf("postgres get %s: %w", key, err)
	}
	return value, found, nil
}

// Set upserts the value stored under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return retry.Do(ctx, s.retry, func(ctx context.Context) error {
			_, err := s.conn.Exec(ctx, `
				INSERT INTO kv_records (record_key, record_value, updated_at)
				VALUES ($1, $2, NOW())
				ON CONFLICT (record_key) DO UPDATE SET
					record_value = EXCLUDED.record_value,
					updated_at = EXCLUDED.updated_at
			`, key, value)
			return classify(err)
		})
	})
	if err != nil {
		return fmt.Errorf("postgres set %s: %w", key, err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConnectionClosed) || errors.Is(err, context.Canceled) {
		return retry.Permanent(err)
	}
	return err
}
