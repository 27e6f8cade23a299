// Package api is the HTTP shell of the application server: it owns the
// router, installs the shared middleware stack, mounts externally supplied
// controllers under /api and funnels every route error into a single
// terminal error handler.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"appserver/config"
	"appserver/storage"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// PathPrefix is the prefix every controller is mounted under
const PathPrefix = "/api"

const defaultShutdownTimeout = 5 * time.Second

// ErrAlreadyListening is returned when Listen or Serve is called on an App that is already serving
var ErrAlreadyListening = errors.New("app is already listening")

// Controller is a unit of routes mounted under PathPrefix.
type Controller interface {
	// Path is the controller's prefix below /api; empty mounts directly on /api
	Path() string
	// Routes registers the controller's handlers on r
	Routes(r *mux.Router)
}

// Option customizes an App
type Option func(*App)

// WithConnector uses an existing database connection instead of opening one
func WithConnector(db storage.Connector) Option {
	return func(a *App) {
		a.db = db
	}
}

// WithErrorHandler replaces the default JSON error handler
func WithErrorHandler(h ErrorHandler) Option {
	return func(a *App) {
		a.errorHandler = h
	}
}

type namedMiddleware struct {
	name string
	fn   mux.MiddlewareFunc
}

// App holds the router, middleware stack and HTTP server
type App struct {
	router       *mux.Router
	handler      http.Handler
	config       *config.Config
	logger       *zap.SugaredLogger
	db           storage.Connector
	errorHandler ErrorHandler
	middleware   []namedMiddleware
	controllers  []Controller
	port         int

	mu     sync.Mutex
	server *http.Server
}

// NewApp builds the application: router, database connection, middleware,
// controllers and error handling, in that order. It never blocks on the
// database; a failed connection is reported by the connector later.
func NewApp(cfg *config.Config, controllers []Controller, logger *zap.SugaredLogger, opts ...Option) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	a := &App{
		router: mux.NewRouter(),
		config: cfg,
		logger: logger,
		port:   cfg.Server.Port,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.initDatabaseConnection()
	a.initMiddleware()
	a.initControllers(controllers)
	a.initErrorHandling()

	a.handler = a.chain(a.router)
	return a
}

// initDatabaseConnection starts the connection without waiting for it
func (a *App) initDatabaseConnection() {
	if a.db != nil {
		return
	}
	a.db = storage.Connect(a.config.Database, a.logger)
}

func (a *App) initMiddleware() {
	a.use("cors", a.corsMiddleware)
	a.use("compression", a.compressionMiddleware())
	a.use("security", securityHeadersMiddleware)
	a.use("logger", a.requestLoggerMiddleware)
	a.use("json", a.jsonBodyMiddleware)
	a.use("urlencoded", a.urlencodedBodyMiddleware)
}

func (a *App) initControllers(controllers []Controller) {
	a.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	apiRouter := a.router.PathPrefix(PathPrefix).Subrouter()
	for _, c := range controllers {
		if c == nil {
			a.logger.Warn("Skipping nil controller")
			continue
		}
		r := apiRouter
		if p := strings.TrimSuffix(c.Path(), "/"); p != "" {
			if !strings.HasPrefix(p, "/") {
				p = "/" + p
			}
			r = apiRouter.PathPrefix(p).Subrouter()
		}
		c.Routes(r)
		a.controllers = append(a.controllers, c)
		a.logger.Debugw("Controller mounted", "path", PathPrefix+c.Path(), "controller", fmt.Sprintf("%T", c))
	}
}

// initErrorHandling installs the terminal error handler as the last middleware
func (a *App) initErrorHandling() {
	if a.errorHandler == nil {
		a.errorHandler = NewErrorHandler(a.logger)
	}
	a.router.NotFoundHandler = HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		return NewHTTPError(http.StatusNotFound, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
	})
	a.router.MethodNotAllowedHandler = HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
		return NewHTTPError(http.StatusMethodNotAllowed, fmt.Sprintf("Cannot %s %s", r.Method, r.URL.Path))
	})
	a.use("errors", a.errorMiddleware)
}

func (a *App) use(name string, fn mux.MiddlewareFunc) {
	a.middleware = append(a.middleware, namedMiddleware{name: name, fn: fn})
}

// chain wraps h so the first installed middleware runs first
func (a *App) chain(h http.Handler) http.Handler {
	for i := len(a.middleware) - 1; i >= 0; i-- {
		h = a.middleware[i].fn(h)
	}
	return h
}

// Handler returns the complete request pipeline
func (a *App) Handler() http.Handler {
	return a.handler
}

// Router returns the underlying router
func (a *App) Router() *mux.Router {
	return a.router
}

// Middleware returns the names of the installed middleware, in execution order
func (a *App) Middleware() []string {
	names := make([]string, len(a.middleware))
	for i, m := range a.middleware {
		names[i] = m.name
	}
	return names
}

// Controllers returns the mounted controllers
func (a *App) Controllers() []Controller {
	return a.controllers
}

// Database returns the connection the App depends on
func (a *App) Database() storage.Connector {
	return a.db
}

// Port returns the configured port
func (a *App) Port() int {
	return a.port
}

// Listen binds the configured port and serves until ctx is done.
// With database.wait_for_connection set, it first waits for the database
// and returns its error instead of serving.
func (a *App) Listen(ctx context.Context) error {
	if err := a.waitForDatabase(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	listening := a.server != nil
	a.mu.Unlock()
	if listening {
		return ErrAlreadyListening
	}

	ln, err := net.Listen("tcp", a.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.port, err)
	}
	return a.serve(ctx, ln)
}

// Serve is Listen on an already bound listener
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.waitForDatabase(ctx); err != nil {
		ln.Close()
		return err
	}
	return a.serve(ctx, ln)
}

func (a *App) waitForDatabase(ctx context.Context) error {
	if !a.config.Database.WaitForConnection || a.db == nil {
		return nil
	}

	a.logger.Info("Waiting for database connection before accepting traffic")
	select {
	case <-a.db.Ready():
		if err := a.db.Err(); err != nil {
			return fmt.Errorf("database not available: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	a.mu.Lock()
	if a.server != nil {
		a.mu.Unlock()
		ln.Close()
		return ErrAlreadyListening
	}
	server := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
		IdleTimeout:  a.config.Server.IdleTimeout,
	}
	a.server = server
	a.mu.Unlock()

	a.logger.Infow(fmt.Sprintf("App listening on the port %d", listenPort(ln, a.port)), "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		timeout := a.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		<-errCh
		return nil
	}
}

// listenPort returns the port ln is bound to, or fallback for non-TCP listeners
func listenPort(ln net.Listener, fallback int) int {
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return fallback
}

// Stop gracefully stops the server started by Listen or Serve
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	server := a.server
	a.mu.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
