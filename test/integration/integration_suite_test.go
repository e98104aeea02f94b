// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

// Package integration provides end-to-end integration tests for Gatehouse
// against a real PostgreSQL instance.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gatehouse Integration Suite")
}

// testEnv holds all resources needed for integration tests.
type testEnv struct {
	ctx       context.Context
	container testcontainers.Container
	st        *store.Store
	pool      *pgxpool.Pool

	Users    *authpg.UserRepository
	Sessions *authpg.SessionRepository
	Service  *auth.Service
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupTestEnv() (*testEnv, error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("gatehouse_test"),
		postgres.WithUsername("gatehouse"),
		postgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	st, err := store.Open(ctx, connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		st.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		st.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		st.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	users := authpg.NewUserRepository(st.Pool())
	sessions := authpg.NewSessionRepository(st.Pool())

	svc, err := auth.NewService(users, sessions, auth.NewArgon2idHasher())
	if err != nil {
		st.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &testEnv{
		ctx:       ctx,
		container: container,
		st:        st,
		pool:      st.Pool(),
		Users:     users,
		Sessions:  sessions,
		Service:   svc,
	}, nil
}

func (e *testEnv) cleanup() {
	if e.st != nil {
		e.st.Close()
	}
	if e.container != nil {
		_ = e.container.Terminate(e.ctx)
	}
}

// truncateUsers removes all users (and cascaded sessions) between specs.
func truncateUsers(ctx context.Context, pool *pgxpool.Pool) {
	_, _ = pool.Exec(ctx, "TRUNCATE users CASCADE")
}
