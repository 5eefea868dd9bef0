// Package app wires the components together and owns their lifecycles.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"proctor/internal/api"
	"proctor/internal/auth"
	"proctor/internal/config"
	"proctor/internal/database"
	"proctor/internal/endpoint"
	"proctor/internal/eligibility"
	"proctor/internal/registry"
	"proctor/internal/sweeper"
	"proctor/internal/websocket"
	pkgdatabase "proctor/pkg/database"
	"proctor/pkg/interfaces"
)

// Application coordinates all system components. Initialization follows
// dependency order: database, registry, auth, eligibility, endpoints,
// API, sweeper, HTTP.
type Application struct {
	config     *config.Config
	logger     *zap.Logger
	dbManager  *database.Manager
	registry   *registry.Registry
	sweeper    *sweeper.Sweeper
	apiServer  *api.Server
	httpServer *http.Server

	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewApplication(cfg *config.Config, logger *zap.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	dbManager, err := database.NewManager(dbConfig, logger.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	migrationManager := pkgdatabase.NewMigrationManager(dbManager.GetDB())
	if err := migrationManager.ApplyMigrations(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := pkgdatabase.NewSchemaValidator(dbManager.GetDB()).ValidateTablesExist(); err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	sessionRegistry := registry.New(cfg.Session.TimeoutWindow, logger.Named("registry"))
	authService := auth.NewService(dbManager, logger.Named("auth"))
	providers := eligibility.DefaultProviders(dbManager)

	newEndpoint := func() interfaces.EventHandler {
		return endpoint.New(
			sessionRegistry,
			authService,
			dbManager,
			providers,
			dbManager,
			cfg.Session.TimeoutWindow,
			logger.Named("endpoint"),
		)
	}
	wsHandler := websocket.NewHandler(newEndpoint, cfg.WebSocket, logger.Named("websocket"))

	apiServer := api.NewServer(sessionRegistry, authService, dbManager, cfg.Session.LoginTTL, logger.Named("api"))
	sessionSweeper := sweeper.New(sessionRegistry, cfg.Session.SweepInterval, logger.Named("sweeper"))

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		dbManager:  dbManager,
		registry:   sessionRegistry,
		sweeper:    sessionSweeper,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start launches the sweeper and the HTTP listener. It returns once the
// listener is accepting connections; serving errors surface from Stop.
func (app *Application) Start(ctx context.Context) error {
	app.logger.Info("starting proctor", zap.String("addr", app.httpServer.Addr))

	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel
	app.group, runCtx = errgroup.WithContext(runCtx)

	app.sweeper.Start(runCtx)

	app.group.Go(func() error {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Give the listener a moment to fail fast on bind errors.
	select {
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("proctor started")
		return nil
	case <-runCtx.Done():
		app.sweeper.Stop()
		err := app.group.Wait()
		if err == nil {
			err = runCtx.Err()
		}
		return err
	}
}

// Stop shuts components down in reverse order: HTTP, sweeper, database.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down proctor")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	app.sweeper.Stop()

	if app.cancel != nil {
		app.cancel()
	}
	if app.group != nil {
		if err := app.group.Wait(); err != nil {
			app.logger.Warn("server error during shutdown", zap.Error(err))
		}
	}

	if err := app.dbManager.Close(); err != nil {
		app.logger.Warn("database shutdown error", zap.Error(err))
	}

	app.logger.Info("proctor shutdown complete")
	return nil
}

// Addr returns the configured listen address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
