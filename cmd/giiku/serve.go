// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roito2356/giiku-23/internal/access"
	"github.com/roito2356/giiku-23/internal/auth"
	"github.com/roito2356/giiku-23/internal/config"
	"github.com/roito2356/giiku-23/internal/httpapi"
	"github.com/roito2356/giiku-23/internal/logging"
	"github.com/roito2356/giiku-23/pkg/errutil"
)

const (
	shutdownTimeout      = 5 * time.Second
	sessionPurgeInterval = time.Hour
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the account API server",
		Long:  `Start the JSON account API together with the metrics and health endpoints.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
}

// runServeWithDeps runs the server until a signal arrives or ctx ends.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *Deps) error {
	deps = deps.withDefaults()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := logging.SetDefault(logging.Options{
		Service: "giiku",
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.LogLevel(),
		Writer:  cmd.ErrOrStderr(),
	})
	logger.InfoContext(ctx, "starting server",
		"http_addr", cfg.HTTP.Addr,
		"store_backend", cfg.Store.Backend,
		"session_backend", cfg.Session.Backend)

	if cfg.Migrate.Auto && cfg.Store.Backend == config.BackendPostgres {
		if err := runAutoMigration(cfg.Database.URL, deps.MigratorFactory); err != nil {
			return err
		}
		logger.InfoContext(ctx, "schema migrations applied")
	}

	rt, err := deps.OpenBackends(ctx, cfg)
	if err != nil {
		return oops.With("operation", "open backends").Wrap(err)
	}
	defer rt.Close()

	components, err := buildComponents(rt, cfg, logger)
	if err != nil {
		return err
	}

	purgeSessions(ctx, components.Sessions, logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithSecureCookie(cfg.HTTP.SecureCookie),
	}

	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, rt.Ready)
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.Metrics.Addr).Wrap(startErr)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		if metrics := obsServer.Metrics(); metrics != nil {
			opts = append(opts, httpapi.WithObserver(metrics))
		}
	}

	handler, err := httpapi.NewHandler(components.Service, opts...)
	if err != nil {
		return err
	}

	listener, err := deps.ListenerFactory("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVE_FAILED").Wrap(serveErr)
		}
		return nil
	})
	group.Go(func() error {
		runPurgeLoop(groupCtx, components.Sessions, sessionPurgeInterval, logger)
		return nil
	})

	cmd.Println("Server started")
	logger.InfoContext(ctx, "server ready", "http_addr", listener.Addr().String())

	select {
	case sig := <-sigChan:
		logger.InfoContext(ctx, "received shutdown signal", "signal", sig.String())
	case <-groupCtx.Done():
		logger.InfoContext(ctx, "context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WarnContext(ctx, "error stopping API server", "error", err)
	}
	cancel()
	serveErr := group.Wait()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.WarnContext(ctx, "error stopping observability server", "error", err)
		}
	}

	if serveErr != nil {
		return serveErr
	}
	logger.InfoContext(ctx, "shutdown complete")
	return nil
}

// buildComponents wires the account service over opened backends.
func buildComponents(rt *Runtime, cfg *config.Config, logger *slog.Logger) (*auth.Components, error) {
	codec, err := auth.NewHashPool(auth.NewArgon2idHasher(), cfg.Hash.Workers)
	if err != nil {
		return nil, oops.With("component", "hash pool").Wrap(err)
	}
	return auth.Assemble(rt.Backends, codec, access.NewStaticAccessControl(),
		auth.WithLogger(logger),
		auth.WithSessionTTL(cfg.Session.TTL))
}

// runAutoMigration applies pending migrations before serving.
func runAutoMigration(databaseURL string, factory func(string) (Migrator, error)) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("failed to close migrator", "error", closeErr)
		}
	}()
	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").With("operation", "apply migrations").Wrap(err)
	}
	return nil
}

func purgeSessions(ctx context.Context, sessions *auth.SessionManager, logger *slog.Logger) {
	n, err := sessions.PurgeExpired(ctx)
	if err != nil {
		errutil.LogWarn(ctx, logger, "failed to purge expired sessions", err)
		return
	}
	if n > 0 {
		logger.InfoContext(ctx, "purged expired sessions", "count", n)
	}
}

// runPurgeLoop purges expired sessions every interval until ctx ends.
func runPurgeLoop(ctx context.Context, sessions *auth.SessionManager, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purgeSessions(ctx, sessions, logger)
		}
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It exits
// when the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
