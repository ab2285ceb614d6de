// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	stdtls "crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/warden/internal/auth"
	"github.com/holomush/warden/internal/auth/memory"
	"github.com/holomush/warden/internal/auth/postgres"
	"github.com/holomush/warden/internal/auth/sqlite"
	"github.com/holomush/warden/internal/config"
	"github.com/holomush/warden/internal/logging"
	"github.com/holomush/warden/internal/observability"
	tlscerts "github.com/holomush/warden/internal/tls"
	"github.com/holomush/warden/internal/web"
	"github.com/holomush/warden/internal/xdg"
)

const shutdownTimeout = 10 * time.Second

// serveOptions holds flags local to the serve command.
type serveOptions struct {
	autoMigrate bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the auth API server",
		Long: `Start the HTTP auth API and, unless --metrics-addr is empty, the
observability server with /metrics and health probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cmd, cfg, opts, nil)
		},
	}

	cmd.Flags().BoolVar(&opts.autoMigrate, "auto-migrate", true, "apply pending migrations at start-up (postgres store)")

	return cmd
}

// openedStore is an identity store plus its lifecycle hooks.
type openedStore struct {
	store auth.IdentityStore
	ping  func(ctx context.Context) error
	close func()
}

func openStore(ctx context.Context, cfg *config.Config, opts *serveOptions, deps *ServeDeps) (*openedStore, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return &openedStore{store: memory.NewStore(), close: func() {}}, nil

	case config.StoreSQLite:
		if err := xdg.EnsureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
			return nil, err
		}
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &openedStore{
			store: s,
			ping:  s.Ping,
			close: func() {
				if err := s.Close(); err != nil {
					slog.Warn("error closing sqlite store", "error", err)
				}
			},
		}, nil

	case config.StorePostgres:
		if opts.autoMigrate {
			if err := autoMigrate(cfg.DatabaseURL, deps); err != nil {
				return nil, err
			}
		}
		pool, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &openedStore{
			store: postgres.NewUserStore(pool),
			ping:  pool.Ping,
			close: pool.Close,
		}, nil
	}
	return nil, oops.Code("CONFIG_INVALID").With("key", "store").Errorf("unknown store %q", cfg.Store)
}

func autoMigrate(databaseURL string, deps *ServeDeps) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	slog.Info("database schema up to date")
	return nil
}

// serverTLS returns the TLS config for the auth API, or nil to serve plain HTTP.
// With tls_auto the certificate lives in the XDG certs directory and is
// issued for the listen host as well as localhost.
func serverTLS(cfg *config.Config) (*stdtls.Config, error) {
	certFile, keyFile := cfg.TLSCertFile, cfg.TLSKeyFile
	if cfg.TLSAuto {
		dir, err := xdg.CertsDir()
		if err != nil {
			return nil, err
		}
		host, _, splitErr := net.SplitHostPort(cfg.HTTPAddr)
		if splitErr != nil {
			host = ""
		}
		certFile, keyFile, err = tlscerts.EnsureServerCert(dir, []string{host})
		if err != nil {
			return nil, oops.With("operation", "ensure server certificate").Wrap(err)
		}
	}
	if certFile == "" {
		return nil, nil
	}
	return tlscerts.LoadServerConfig(certFile, keyFile)
}

// readiness reports whether the store answers a ping within a second.
func readiness(ping func(ctx context.Context) error) observability.ReadinessChecker {
	if ping == nil {
		return func() bool { return true }
	}
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return ping(ctx) == nil
	}
}

func runServe(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts *serveOptions, deps *ServeDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	deps = deps.withDefaults()

	logger, err := logging.SetDefault("warden", version, logging.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting warden",
		"http_addr", cfg.HTTPAddr,
		"store", cfg.Store,
		"tls", cfg.TLSEnabled(),
	)

	tlsConfig, err := serverTLS(cfg)
	if err != nil {
		return err
	}

	opened, err := openStore(ctx, cfg, opts, deps)
	if err != nil {
		return oops.With("operation", "open identity store").Wrap(err)
	}
	defer opened.close()

	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Argon2Params())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serviceOpts := []auth.Option{auth.WithLogger(logger)}
	routerOpts := web.Options{Logger: logger, CookieSecure: cfg.CookieSecure || tlsConfig != nil}

	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, readiness(opened.ping))
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")

		metrics := obsServer.Metrics()
		serviceOpts = append(serviceOpts, auth.WithRecorder(metrics))
		routerOpts.Requests = metrics
	}

	svc, err := auth.NewService(opened.store, hasher, serviceOpts...)
	if err != nil {
		stopObservability(obsServer)
		return err
	}

	listener, err := deps.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		stopObservability(obsServer)
		return oops.Code("LISTEN_FAILED").With("addr", cfg.HTTPAddr).Wrap(err)
	}
	if tlsConfig != nil {
		listener = stdtls.NewListener(listener, tlsConfig)
	}

	httpSrv := &http.Server{
		Handler:           web.NewRouter(svc, routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	addr := listener.Addr().String()
	cmd.Println("warden listening on " + addr)
	logger.InfoContext(ctx, "auth API ready", "addr", addr)
	deps.OnReady(addr)

	var serveErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errChan:
		serveErr = oops.Code("SERVE_FAILED").With("addr", addr).Wrap(err)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping auth API", "error", err)
	}
	stopObservability(obsServer)

	logger.Info("shutdown complete")
	return serveErr
}

func stopObservability(obsServer *observability.Server) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		slog.Warn("error stopping observability server", "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error.
// It exits when an error arrives, the channel closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
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
	}
}
