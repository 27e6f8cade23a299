package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Supported connection string schemes
const (
	SchemeMongo    = "mongodb"
	SchemeMongoSRV = "mongodb+srv"
)

// Connection parameter errors
var (
	// ErrMissingUser is returned when MONGO_USER is empty
	ErrMissingUser = errors.New("user is required")

	// ErrMissingPassword is returned when MONGO_PASSWORD is empty
	ErrMissingPassword = errors.New("password is required")

	// ErrMissingPath is returned when MONGO_PATH is empty
	ErrMissingPath = errors.New("path is required")

	// ErrInvalidPath is returned when MONGO_PATH does not describe a host
	ErrInvalidPath = errors.New("path must look like @host[:port][/database][?options]")

	// ErrInvalidScheme is returned for schemes other than mongodb and mongodb+srv
	ErrInvalidScheme = errors.New("scheme must be mongodb or mongodb+srv")
)

// ConnectionError describes which connection parameter is invalid
type ConnectionError struct {
	Field string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("invalid database %s: %v", e.Field, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DatabaseConfig holds the MongoDB connection parameters.
// User, Password and Path come from MONGO_USER, MONGO_PASSWORD and MONGO_PATH.
type DatabaseConfig struct {
	Scheme   string `mapstructure:"scheme"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Path is everything after the credentials, starting with "@"
	Path string `mapstructure:"path"`
	// Database overrides the database named in Path
	Database          string        `mapstructure:"database"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	MaxPoolSize       uint64        `mapstructure:"max_pool_size"`
	WaitForConnection bool          `mapstructure:"wait_for_connection"`
}

// Validate checks the connection parameters without building the URI
func (d DatabaseConfig) Validate() error {
	_, err := d.parse()
	return err
}

// URI builds the connection string scheme://user:password<path>.
// User and password are percent-escaped; everything else is used as given.
func (d DatabaseConfig) URI() (string, error) {
	u, err := d.parse()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Redacted returns the connection string with the password masked, suitable for logs.
// Invalid parameters are rendered with the failing field named instead.
func (d DatabaseConfig) Redacted() string {
	u, err := d.parse()
	if err != nil {
		return fmt.Sprintf("%s://<%v>", d.scheme(), err)
	}
	return u.Redacted()
}

// DatabaseName returns the database to use: the explicit override, or the
// path segment of MONGO_PATH.
func (d DatabaseConfig) DatabaseName() string {
	if d.Database != "" {
		return d.Database
	}
	u, err := d.parse()
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

func (d DatabaseConfig) scheme() string {
	if d.Scheme == "" {
		return SchemeMongoSRV
	}
	return d.Scheme
}

func (d DatabaseConfig) parse() (*url.URL, error) {
	scheme := d.scheme()
	if scheme != SchemeMongo && scheme != SchemeMongoSRV {
		return nil, &ConnectionError{Field: "scheme", Err: ErrInvalidScheme}
	}
	if d.User == "" {
		return nil, &ConnectionError{Field: "user", Err: ErrMissingUser}
	}
	if d.Password == "" {
		return nil, &ConnectionError{Field: "password", Err: ErrMissingPassword}
	}
	if d.Path == "" {
		return nil, &ConnectionError{Field: "path", Err: ErrMissingPath}
	}
	if !strings.HasPrefix(d.Path, "@") {
		return nil, &ConnectionError{Field: "path", Err: ErrInvalidPath}
	}

	// Parse only the host part so credentials never reach the URL parser unescaped
	rest, err := url.Parse(scheme + "://" + strings.TrimPrefix(d.Path, "@"))
	if err != nil {
		return nil, &ConnectionError{Field: "path", Err: fmt.Errorf("%w: %v", ErrInvalidPath, err)}
	}
	if rest.Host == "" || rest.User != nil {
		return nil, &ConnectionError{Field: "path", Err: ErrInvalidPath}
	}

	rest.User = url.UserPassword(d.User, d.Password)
	return rest, nil
}
