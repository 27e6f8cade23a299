package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"appserver/api"
	"appserver/config"
	"appserver/storage"

	"go.uber.org/zap"
)

const defaultShutdownTimeout = 10 * time.Second

// App represents the application server with all its components.
type App struct {
	// Configuration
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger
	Level  zap.AtomicLevel

	// Storage
	Database *storage.MongoDB

	// Services
	APIServer *api.App

	controllers []api.Controller
	port        int

	// Lifecycle
	serviceWg    *sync.WaitGroup
	serverErr    chan error
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// Option customizes NewApp
type Option func(*App)

// WithControllers mounts additional controllers under /api
func WithControllers(controllers ...api.Controller) Option {
	return func(a *App) {
		a.controllers = append(a.controllers, controllers...)
	}
}

// WithPort overrides the configured port
func WithPort(port int) Option {
	return func(a *App) {
		a.port = port
	}
}

// WithLogger uses sugar instead of the console logger
func WithLogger(sugar *zap.SugaredLogger) Option {
	return func(a *App) {
		a.Sugar = sugar
		a.Logger = sugar.Desugar()
	}
}

// NewApp creates a new application instance and initializes all components.
// The database connection is started but not awaited.
func NewApp(ctx context.Context, opts ...Option) (*App, error) {
	app := &App{
		Level:     zap.NewAtomicLevelAt(zap.DebugLevel),
		serviceWg: &sync.WaitGroup{},
		serverErr: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(app)
	}

	// Initialize logger
	if app.Sugar == nil {
		logger, sugar, level, err := InitLogger()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		app.Logger = logger
		app.Sugar = sugar
		app.Level = level
	}
	sugar := app.Sugar

	sugar.Info("Application server starting...")

	// Load configuration
	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	if app.port > 0 {
		cfg.Server.Port = app.port
	}
	app.Config = cfg
	applyLogLevel(app.Level, cfg, sugar)

	// Initialize storage
	app.Database = storage.Connect(cfg.Database, sugar)
	go app.watchDatabase(ctx)

	// Initialize HTTP layer
	controllers := append([]api.Controller{api.NewHealthController(app.Database, sugar)}, app.controllers...)
	app.APIServer = api.NewApp(cfg, controllers, sugar, api.WithConnector(app.Database))

	return app, nil
}

// watchDatabase explains a failed connection attempt once it is known
func (a *App) watchDatabase(ctx context.Context) {
	err := a.Database.Wait(ctx)
	if ctx.Err() != nil {
		return
	}
	if err == nil || errors.Is(err, storage.ErrDatabaseClosed) {
		return
	}
	a.Sugar.Warn(ClassifyConnectionError(err, a.Config.Database.Redacted()))
}

// Start starts all application services.
func (a *App) Start(ctx context.Context) error {
	if a.APIServer == nil {
		return errors.New("application not initialized")
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.startAPIServer(ctx)
	return nil
}

// startAPIServer runs the HTTP server until ctx is cancelled
func (a *App) startAPIServer(ctx context.Context) {
	a.serviceWg.Add(1)
	go func() {
		defer a.serviceWg.Done()
		if err := a.APIServer.Listen(ctx); err != nil {
			a.Sugar.Error(ClassifyListenError(err, a.Config.Server.Port))
			a.serverErr <- err
		}
	}()
}

// WaitForShutdown blocks until a shutdown signal is received, ctx is done
// or the server fails. It returns the server error, if any.
func (a *App) WaitForShutdown(ctx context.Context) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		a.Sugar.Infow("Received shutdown signal", "signal", sig.String())
		return nil
	case <-ctx.Done():
		return nil
	case err := <-a.serverErr:
		return err
	}
}

// Shutdown gracefully shuts down all components. Safe to call more than once.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.Sugar.Info("Shutting down...")

	timeout := defaultShutdownTimeout
	if a.Config != nil && a.Config.Server.ShutdownTimeout > 0 {
		timeout = a.Config.Server.ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Phase 1 - Stop accepting requests
	a.Sugar.Info("Phase 1: Stopping HTTP server...")
	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.serviceWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.Sugar.Warn("HTTP server did not stop in time")
	}

	// Phase 2 - Close the database connection
	a.Sugar.Info("Phase 2: Closing database connection...")
	if a.Database != nil {
		if err := a.Database.Close(ctx); err != nil {
			a.Sugar.Errorw("Failed to close database", "error", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}
