// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
)

var sessionColumns = []string{"id", "user_id", "username", "email", "token_hash", "expires_at", "created_at", "last_seen_at"}

func newTestSession(t *testing.T) *auth.Session {
	t.Helper()
	session, err := auth.NewSession(
		&auth.User{ID: 7, Username: "alice", Email: "alice@x.com"},
		auth.HashSessionToken("tok"),
		time.Now().Add(time.Hour),
	)
	require.NoError(t, err)
	return session
}

func TestSessionRepository_Create(t *testing.T) {
	ctx := context.Background()

	mock := newMockPool(t)
	repo := postgres.NewSessionRepository(mock)
	session := newTestSession(t)

	mock.ExpectExec(`INSERT INTO web_sessions`).
		WithArgs(
			session.ID.String(),
			session.UserID,
			session.Username,
			session.Email,
			session.TokenHash,
			session.ExpiresAt,
			session.CreatedAt,
			session.LastSeenAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(ctx, session))
}

func TestSessionRepository_GetByTokenHash(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored session", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewSessionRepository(mock)
		session := newTestSession(t)

		mock.ExpectQuery(`SELECT id, user_id, username, email, token_hash`).
			WithArgs(session.TokenHash).
			WillReturnRows(pgxmock.NewRows(sessionColumns).AddRow(
				session.ID.String(),
				session.UserID,
				session.Username,
				session.Email,
				session.TokenHash,
				session.ExpiresAt,
				session.CreatedAt,
				session.LastSeenAt,
			))

		got, err := repo.GetByTokenHash(ctx, session.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, int64(7), got.UserID)
		assert.Equal(t, "alice", got.Username)
	})

	t.Run("unknown token maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewSessionRepository(mock)

		mock.ExpectQuery(`SELECT id, user_id, username, email, token_hash`).
			WithArgs("missing").
			WillReturnRows(pgxmock.NewRows(sessionColumns))

		_, err := repo.GetByTokenHash(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("corrupt session id surfaces as scan fault", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewSessionRepository(mock)
		session := newTestSession(t)

		mock.ExpectQuery(`SELECT id, user_id, username, email, token_hash`).
			WithArgs(session.TokenHash).
			WillReturnRows(pgxmock.NewRows(sessionColumns).AddRow(
				"not-a-ulid",
				session.UserID,
				session.Username,
				session.Email,
				session.TokenHash,
				session.ExpiresAt,
				session.CreatedAt,
				session.LastSeenAt,
			))

		_, err := repo.GetByTokenHash(ctx, session.TokenHash)
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_UpdateLastSeen(t *testing.T) {
	ctx := context.Background()

	t.Run("updates existing session", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewSessionRepository(mock)
		session := newTestSession(t)
		seen := time.Now()

		mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).
			WithArgs(session.ID.String(), seen).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, repo.UpdateLastSeen(ctx, session.ID, seen))
	})

	t.Run("missing session maps to ErrNotFound", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewSessionRepository(mock)
		session := newTestSession(t)
		seen := time.Now()

		mock.ExpectExec(`UPDATE web_sessions SET last_seen_at`).
			WithArgs(session.ID.String(), seen).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateLastSeen(ctx, session.ID, seen)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestSessionRepository_DeleteByTokenHash(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes existing session", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewSessionRepository(mock)

		mock.ExpectExec(`DELETE FROM web_sessions WHERE token_hash`).
			WithArgs("hash").
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, repo.DeleteByTokenHash(ctx, "hash"))
	})

	t.Run("deleting an absent session succeeds", func(t *testing.T) {
		mock := newMockPool(t)
		repo := postgres.NewSessionRepository(mock)

		mock.ExpectExec(`DELETE FROM web_sessions WHERE token_hash`).
			WithArgs("gone").
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		require.NoError(t, repo.DeleteByTokenHash(ctx, "gone"))
	})
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()

	mock := newMockPool(t)
	repo := postgres.NewSessionRepository(mock)

	mock.ExpectExec(`DELETE FROM web_sessions WHERE expires_at`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	count, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
