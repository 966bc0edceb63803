// Package app wires configuration, storage, services and the transport
// into the runnable gate process.
package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coralstack/coraldb/internal/gate/catalog"
	"github.com/coralstack/coraldb/internal/gate/command"
	"github.com/coralstack/coraldb/internal/gate/event"
	"github.com/coralstack/coraldb/internal/gate/service"
	"github.com/coralstack/coraldb/pkg/duplex"
	"github.com/coralstack/coraldb/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application encapsulates the gate with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	creds   *service.CredentialStore
	tokens  *service.TokenService
	catalog *catalog.Catalog
	bus     *event.Bus

	server *duplex.CommandServer
	router *command.Router
}

// New creates an Application with all dependencies initialized: the
// credential store opened and bootstrapped, the collection catalog built
// from the sharded declarations, and the five commands registered.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "coraldb-gate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.InsecureSecrets {
		app.logger.Warn("token secrets unset; using insecure development fallbacks")
	}

	creds, err := service.OpenCredentialStore(cfg.InternalDir, app.logger)
	if err != nil {
		return nil, err
	}
	app.creds = creds

	if err := creds.EnsureRootUser(context.Background()); err != nil {
		_ = creds.Close()
		return nil, fmt.Errorf("bootstrap root user: %w", err)
	}

	cat, err := catalog.New(cfg.DataDir, cfg.ShardedCollections, app.logger)
	if err != nil {
		_ = creds.Close()
		return nil, err
	}
	app.catalog = cat

	app.tokens = service.NewTokenService(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		cfg.AccessTokenLifetime,
		cfg.RefreshTokenLifetime,
	)
	app.bus = event.NewBus()

	app.router = &command.Router{
		Auth:      &service.AuthService{Creds: creds, Tokens: app.tokens},
		Queries:   &service.QueryService{Catalog: cat},
		Tokens:    app.tokens,
		Bus:       app.bus,
		AuthLimit: cfg.AuthRateLimit,
	}

	tlsConfig, err := app.tlsConfig()
	if err != nil {
		_ = app.close()
		return nil, err
	}
	app.server = duplex.NewCommandServer(cfg.Addr(), tlsConfig, app.logger)
	app.router.Register(app.server)

	return app, nil
}

// Events exposes the lifecycle event bus for external observers.
func (app *Application) Events() *event.Bus {
	return app.bus
}

// Run serves the gate and blocks until a shutdown signal arrives or the
// server fails.
func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.logger.Info("gate starting", "addr", app.cfg.Addr(), "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.Run(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		_ = app.close()
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Close the listener and give in-flight connections a deadline for
	// draining before resources are torn down.
	cancel()
	select {
	case <-serverErrors:
	case <-time.After(app.cfg.ShutdownGracePeriod):
		app.logger.Error("graceful shutdown deadline exceeded")
	}

	if err := app.close(); err != nil {
		return err
	}

	app.logger.Info("gate stopped")
	return nil
}

func (app *Application) close() error {
	app.tokens.Close()

	var firstErr error
	if err := app.catalog.Close(); err != nil {
		app.logger.Error("error closing catalog", "error", err)
		firstErr = err
	}
	if err := app.creds.Close(); err != nil {
		app.logger.Error("error closing credential store", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (app *Application) tlsConfig() (*tls.Config, error) {
	if !app.cfg.Secure {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(app.cfg.TLSCert, app.cfg.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
