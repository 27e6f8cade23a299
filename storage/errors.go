package storage

import "errors"

// Storage error constants
var (
	// ErrNotReady is returned while the initial connection attempt is still running
	ErrNotReady = errors.New("database connection not ready")

	// ErrDatabaseClosed is returned when attempting to use a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")
)
