// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/logging"
	"github.com/gatehouse/gatehouse/internal/observability"
	"github.com/gatehouse/gatehouse/internal/store"
	"github.com/gatehouse/gatehouse/internal/web"
)

const (
	shutdownTimeout      = 5 * time.Second
	sessionPurgeInterval = time.Hour
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web authentication server",
		Long: `Start the Gatehouse server: the public web surface with registration,
login and dashboard, plus the internal metrics and health listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, cmd.Flags(), nil)
		},
	}

	cmd.Flags().AddFlagSet(config.Flags())

	return cmd
}

// runServeWithDeps starts the server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, flags *pflag.FlagSet, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ConfigLoader == nil {
		deps.ConfigLoader = config.Load
	}
	if deps.StoreOpener == nil {
		deps.StoreOpener = func(ctx context.Context, dsn string, opts ...store.OpenOption) (Store, error) {
			return store.Open(ctx, dsn, opts...)
		}
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (Migrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if deps.WebServerFactory == nil {
		deps.WebServerFactory = func(addr string, handler http.Handler) WebServer {
			return web.NewServer(addr, handler)
		}
	}

	cfg, err := deps.ConfigLoader(configFile, flags)
	if err != nil {
		return err
	}

	logging.SetDefault("gatehouse", version, cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting gatehouse",
		"http_addr", cfg.HTTP.Addr,
		"database_host", cfg.Database.Host,
		"database_name", cfg.Database.Name,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The database regularly comes up after the application; Open retries
	// before giving up.
	st, err := deps.StoreOpener(ctx, cfg.Database.DSN(),
		store.WithMaxAttempts(cfg.Database.RetryAttempts),
		store.WithRetryDelay(cfg.Database.RetryDelay),
	)
	if err != nil {
		return oops.Code("SERVE_STORE_FAILED").Wrap(err)
	}
	defer st.Close()

	if err := runMigrations(deps, cfg.Database.DSN()); err != nil {
		return err
	}

	users := authpg.NewUserRepository(st.Pool())
	sessions := authpg.NewSessionRepository(st.Pool())

	svc, err := auth.NewServiceWithLogger(users, sessions, auth.NewArgon2idHasher(), slog.Default())
	if err != nil {
		return err
	}
	svc.SetSessionTTL(cfg.Session.TTL)

	// Readiness follows the store so a lost database drops the pod out of
	// rotation without killing it.
	obsServer := deps.ObservabilityServerFactory(cfg.Observability.Addr, func() bool {
		pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
		defer pingCancel()
		return st.Ping(pingCtx) == nil
	})
	obsErrCh, err := obsServer.Start()
	if err != nil {
		return oops.Code("SERVE_OBSERVABILITY_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, obsErrCh, "observability")

	handlers, err := web.NewHandlers(svc, []byte(cfg.Session.Secret),
		web.WithLogger(slog.Default()),
		web.WithMetrics(obsServer.Metrics()),
	)
	if err != nil {
		stopServer(obsServer, "observability")
		return err
	}

	webServer := deps.WebServerFactory(cfg.HTTP.Addr, handlers.Routes())
	webErrCh, err := webServer.Start()
	if err != nil {
		stopServer(obsServer, "observability")
		return oops.Code("SERVE_WEB_FAILED").Wrap(err)
	}
	go monitorServerErrors(ctx, cancel, webErrCh, "web")

	go purgeExpiredSessions(ctx, sessions)

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Gatehouse started")
	slog.Info("gatehouse ready",
		"web_addr", webServer.Addr(),
		"observability_addr", obsServer.Addr(),
	)

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	stopServer(webServer, "web")
	stopServer(obsServer, "observability")

	cmd.Println("Gatehouse stopped")
	return nil
}

// runMigrations applies pending migrations before serving. The serve path
// always migrates so a fresh database works out of the box; the migrate
// subcommand exists for running the step separately.
func runMigrations(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return err
	}
	slog.Info("database schema up to date")
	return nil
}

// purgeExpiredSessions periodically sweeps expired session rows. Expired
// sessions are already invisible to lookups; the sweep keeps the table from
// growing without bound.
func purgeExpiredSessions(ctx context.Context, sessions auth.SessionRepository) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := sessions.DeleteExpired(ctx)
			if err != nil {
				observability.RecordSessionPurgeFailure()
				slog.Warn("session purge failed", "error", err)
				continue
			}
			if purged > 0 {
				slog.Info("purged expired sessions", "count", purged)
			}
		}
	}
}

type stoppable interface {
	Stop(ctx context.Context) error
}

func stopServer(s stoppable, name string) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.Stop(shutdownCtx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels the run context when a server reports a fatal
// error after startup.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
		// Context cancelled, exit monitoring
	}
}
