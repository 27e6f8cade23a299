package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"appserver/config"
	"appserver/metrics"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const defaultConnectTimeout = 10 * time.Second

// Connector is the process-wide database connection as seen by the HTTP layer.
type Connector interface {
	// Ready is closed once the connection attempt has finished, successfully or not
	Ready() <-chan struct{}
	// Err returns the outcome of the attempt; ErrNotReady while it is still running
	Err() error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// MongoClient is the subset of *mongo.Client used by MongoDB, for mocking
type MongoClient interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
	Database(name string, opts ...*options.DatabaseOptions) *mongo.Database
	Disconnect(ctx context.Context) error
}

// DialFunc opens a client for the given URI
type DialFunc func(ctx context.Context, uri string, cfg config.DatabaseConfig) (MongoClient, error)

// MongoDB holds the MongoDB client and database
type MongoDB struct {
	cfg    config.DatabaseConfig
	dial   DialFunc
	logger *zap.SugaredLogger

	ready chan struct{}
	once  sync.Once

	mu       sync.RWMutex
	client   MongoClient
	database *mongo.Database
	err      error
	closed   bool
}

// Connect starts connecting to MongoDB in the background and returns at once.
// Callers that need the connection wait on Ready.
func Connect(cfg config.DatabaseConfig, logger *zap.SugaredLogger) *MongoDB {
	return ConnectWith(cfg, dialMongo, logger)
}

// ConnectWith is Connect with a custom dialer
func ConnectWith(cfg config.DatabaseConfig, dial DialFunc, logger *zap.SugaredLogger) *MongoDB {
	m := &MongoDB{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
		ready:  make(chan struct{}),
		err:    ErrNotReady,
	}
	metrics.DatabaseUp.Set(0)
	go m.connect()
	return m
}

func dialMongo(ctx context.Context, uri string, cfg config.DatabaseConfig) (MongoClient, error) {
	clientOptions := options.Client().ApplyURI(uri)
	if cfg.ConnectTimeout > 0 {
		clientOptions.SetConnectTimeout(cfg.ConnectTimeout).SetServerSelectionTimeout(cfg.ConnectTimeout)
	}
	if cfg.MaxPoolSize > 0 {
		clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	}
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// connect performs the attempt and records its outcome exactly once
func (m *MongoDB) connect() {
	err := m.attempt()

	m.mu.Lock()
	if m.closed && err == nil {
		err = ErrDatabaseClosed
	}
	m.err = err
	m.mu.Unlock()

	if err != nil {
		metrics.DatabaseConnectFailures.Inc()
		m.logger.Errorw("Failed to connect to MongoDB",
			"uri", m.cfg.Redacted(),
			"error", err)
	} else {
		metrics.DatabaseUp.Set(1)
		m.logger.Infow("Connected to MongoDB successfully",
			"uri", m.cfg.Redacted(),
			"database", m.cfg.DatabaseName())
	}

	m.once.Do(func() { close(m.ready) })
}

func (m *MongoDB) attempt() error {
	uri, err := m.cfg.URI()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.connectTimeout())
	defer cancel()

	client, err := m.dial(ctx, uri, m.cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = client.Disconnect(context.Background())
		return ErrDatabaseClosed
	}
	m.client = client
	if name := m.cfg.DatabaseName(); name != "" {
		m.database = client.Database(name)
	}
	return nil
}

func (m *MongoDB) connectTimeout() time.Duration {
	if m.cfg.ConnectTimeout <= 0 {
		return defaultConnectTimeout
	}
	return m.cfg.ConnectTimeout
}

// Ready is closed once the connection attempt has finished
func (m *MongoDB) Ready() <-chan struct{} {
	return m.ready
}

// Err returns nil once connected, ErrNotReady while connecting, or the failure
func (m *MongoDB) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.err
}

// Wait blocks until the attempt finishes or ctx is done
func (m *MongoDB) Wait(ctx context.Context) error {
	select {
	case <-m.ready:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Database returns the database named by the configuration, or nil when not connected
func (m *MongoDB) Database() *mongo.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.database
}

// HealthCheck performs a health check on the MongoDB connection
func (m *MongoDB) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	client, err := m.client, m.err
	m.mu.RUnlock()

	if err != nil {
		return err
	}
	return client.Ping(ctx, readpref.Primary())
}

// Close closes the MongoDB connection. Safe to call while still connecting.
func (m *MongoDB) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	metrics.DatabaseUp.Set(0)

	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect(ctx)
	m.client = nil
	m.database = nil
	m.err = ErrDatabaseClosed
	if err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}
