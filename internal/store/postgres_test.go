// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRetriesUntilSuccess(t *testing.T) {
	t.Run("succeeds on first attempt without delay", func(t *testing.T) {
		attempts := 0
		connect := func(_ context.Context, _ string) (*pgxpool.Pool, error) {
			attempts++
			return nil, nil
		}

		start := time.Now()
		s, err := Open(context.Background(), "postgres://localhost/gatehouse",
			WithMaxAttempts(5),
			WithRetryDelay(50*time.Millisecond),
			withConnectFunc(connect))
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, 1, attempts)
		assert.Less(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("recovers after transient failures", func(t *testing.T) {
		attempts := 0
		connect := func(_ context.Context, _ string) (*pgxpool.Pool, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("connection refused")
			}
			return nil, nil
		}

		start := time.Now()
		s, err := Open(context.Background(), "postgres://localhost/gatehouse",
			WithMaxAttempts(5),
			WithRetryDelay(20*time.Millisecond),
			withConnectFunc(connect))
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, 3, attempts)
		// Two failed attempts means two delays were observed.
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		attempts := 0
		connect := func(_ context.Context, _ string) (*pgxpool.Pool, error) {
			attempts++
			return nil, errors.New("connection refused")
		}

		s, err := Open(context.Background(), "postgres://localhost/gatehouse",
			WithMaxAttempts(3),
			WithRetryDelay(time.Millisecond),
			withConnectFunc(connect))
		require.Error(t, err)
		assert.Nil(t, s)
		assert.Equal(t, 3, attempts)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("stops when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		connect := func(_ context.Context, _ string) (*pgxpool.Pool, error) {
			attempts++
			cancel()
			return nil, errors.New("connection refused")
		}

		_, err := Open(ctx, "postgres://localhost/gatehouse",
			WithMaxAttempts(10),
			WithRetryDelay(time.Millisecond),
			withConnectFunc(connect))
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("logs each failed attempt", func(t *testing.T) {
		rec := &recordingHandler{}
		logger := slog.New(rec)

		connect := func(_ context.Context, _ string) (*pgxpool.Pool, error) {
			return nil, errors.New("connection refused")
		}

		_, err := Open(context.Background(), "postgres://localhost/gatehouse",
			WithMaxAttempts(2),
			WithRetryDelay(time.Millisecond),
			WithLogger(logger),
			withConnectFunc(connect))
		require.Error(t, err)
		assert.Equal(t, 2, rec.count(slog.LevelWarn))
	})
}

func TestOpenOptionValidation(t *testing.T) {
	o := openOptions{maxAttempts: DefaultMaxAttempts, delay: DefaultRetryDelay}

	WithMaxAttempts(0)(&o)
	assert.Equal(t, uint64(DefaultMaxAttempts), o.maxAttempts)

	WithRetryDelay(0)(&o)
	assert.Equal(t, DefaultRetryDelay, o.delay)

	WithLogger(nil)(&o)
	assert.Nil(t, o.logger)
}

// recordingHandler is a minimal slog.Handler counting records per level.
type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(level slog.Level) int {
	n := 0
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}
