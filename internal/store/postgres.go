// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package store provides PostgreSQL connection management and schema
// migrations for Gatehouse.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default connection retry policy. The database container regularly starts
// after the application in orchestrated environments, so first attempts are
// expected to fail.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 5 * time.Second
)

// ErrUnavailable is returned when the store could not be reached after
// exhausting connection retries. Callers degrade gracefully on it rather
// than treating it as a programming fault.
var ErrUnavailable = errors.New("store unavailable")

// Store wraps a pgx connection pool. All repository operations borrow
// connections from the pool per call; nothing holds a connection across
// requests.
type Store struct {
	pool *pgxpool.Pool
}

// connectFunc opens and verifies a single connection attempt.
// Injectable so retry behavior is testable without a database.
type connectFunc func(ctx context.Context, dsn string) (*pgxpool.Pool, error)

type openOptions struct {
	maxAttempts uint64
	delay       time.Duration
	logger      *slog.Logger
	connect     connectFunc
}

// OpenOption adjusts how Open acquires the connection pool.
type OpenOption func(*openOptions)

// WithMaxAttempts sets the total number of connection attempts.
func WithMaxAttempts(n uint64) OpenOption {
	return func(o *openOptions) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause between connection attempts.
func WithRetryDelay(d time.Duration) OpenOption {
	return func(o *openOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// WithLogger sets the logger used for per-attempt failure reporting.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(o *openOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// withConnectFunc overrides the connection function. Test hook.
func withConnectFunc(fn connectFunc) OpenOption {
	return func(o *openOptions) {
		o.connect = fn
	}
}

// Open acquires a verified connection pool, retrying with a constant delay
// while the database is still coming up. Every failed attempt is logged
// with its attempt number. After the last attempt fails, the returned error
// matches ErrUnavailable so callers can show a retry-later response instead
// of crashing.
func Open(ctx context.Context, dsn string, opts ...OpenOption) (*Store, error) {
	o := openOptions{
		maxAttempts: DefaultMaxAttempts,
		delay:       DefaultRetryDelay,
		logger:      slog.Default(),
		connect:     connectAndPing,
	}
	for _, opt := range opts {
		opt(&o)
	}

	var pool *pgxpool.Pool
	attempt := uint64(0)

	backoff := retry.WithMaxRetries(o.maxAttempts-1, retry.NewConstant(o.delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := o.connect(ctx, dsn)
		if err != nil {
			o.logger.WarnContext(ctx, "store connection attempt failed",
				"attempt", attempt,
				"max_attempts", o.maxAttempts,
				"error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("STORE_UNAVAILABLE").
			With("attempts", attempt).
			Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err))
	}

	o.logger.InfoContext(ctx, "store connected", "attempts", attempt)
	return &Store{pool: pool}, nil
}

// connectAndPing opens a pool and verifies it with a round trip. A pool
// that cannot ping is closed before the error is returned.
func connectAndPing(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_PING_FAILED").With("operation", "ping").Wrap(err)
	}
	return pool, nil
}

// Pool exposes the underlying pool for repositories.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Ping verifies the store is still reachable. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("STORE_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
