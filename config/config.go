package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every configuration key read from the environment,
// except the MONGO_* credentials which keep their historical names.
const EnvPrefix = "APP"

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// CORSConfig controls the cross-origin middleware
type CORSConfig struct {
	// AllowedOrigins lists accepted origins; "*" (the default) accepts any origin
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" validate:"gte=0"` // seconds
}

// BodyConfig limits request body parsing
type BodyConfig struct {
	JSONLimit       int64 `mapstructure:"json_limit" validate:"gt=0"`       // bytes
	URLEncodedLimit int64 `mapstructure:"urlencoded_limit" validate:"gt=0"` // bytes
}

// CompressionConfig controls response compression
type CompressionConfig struct {
	Level int `mapstructure:"level" validate:"min=1,max=9"`
}

// LoggingConfig controls the application logger
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

// VaultConfig locates the database secret in HashiCorp Vault
type VaultConfig struct {
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"` // falls back to VAULT_TOKEN
	Path    string `mapstructure:"path"`
}

// AWSSecretsConfig locates the database secret in AWS Secrets Manager
type AWSSecretsConfig struct {
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Endpoint  string `mapstructure:"endpoint"`
}

// SecretsConfig selects where the database credentials come from
type SecretsConfig struct {
	// Provider is env (MONGO_USER/MONGO_PASSWORD, the default), vault or aws
	Provider string           `mapstructure:"provider" validate:"omitempty,oneof=env vault aws"`
	Vault    VaultConfig      `mapstructure:"vault"`
	AWS      AWSSecretsConfig `mapstructure:"aws"`
}

// Config holds all configuration for the application server
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Secrets     SecretsConfig     `mapstructure:"secrets"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Body        BodyConfig        `mapstructure:"body"`
	Compression CompressionConfig `mapstructure:"compression"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 5*time.Second)

	viper.SetDefault("database.scheme", SchemeMongoSRV)
	viper.SetDefault("database.user", "")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.path", "")
	viper.SetDefault("database.database", "") // Empty = take it from the path
	viper.SetDefault("database.connect_timeout", 10*time.Second)
	viper.SetDefault("database.max_pool_size", 100)
	viper.SetDefault("database.wait_for_connection", false) // Listen does not block on the database

	viper.SetDefault("secrets.provider", "env")
	viper.SetDefault("secrets.vault.address", "")
	viper.SetDefault("secrets.vault.token", "")
	viper.SetDefault("secrets.vault.path", "secret/appserver")
	viper.SetDefault("secrets.aws.region", "us-east-1")
	viper.SetDefault("secrets.aws.secret_id", "appserver/database")
	viper.SetDefault("secrets.aws.access_key", "")
	viper.SetDefault("secrets.aws.secret_key", "")
	viper.SetDefault("secrets.aws.endpoint", "")

	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allowed_methods", []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"})
	viper.SetDefault("cors.allowed_headers", []string{})
	viper.SetDefault("cors.exposed_headers", []string{})
	viper.SetDefault("cors.allow_credentials", false)
	viper.SetDefault("cors.max_age", 0)

	viper.SetDefault("body.json_limit", 100*1024)       // 100KB
	viper.SetDefault("body.urlencoded_limit", 100*1024) // 100KB

	viper.SetDefault("compression.level", 5)

	viper.SetDefault("logging.level", "debug")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// The credential variables are shared with other tooling and are not prefixed
	_ = viper.BindEnv("database.user", "MONGO_USER")
	_ = viper.BindEnv("database.password", "MONGO_PASSWORD")
	_ = viper.BindEnv("database.path", "MONGO_PATH")
	_ = viper.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
}

// LoadConfig loads configuration from file and environment variables.
//
// Database credentials are not validated here: a missing MONGO_* variable
// surfaces when the connection is attempted, never while loading.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()
	loadFromEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

var validate = validator.New()

// validateConfig validates the non-database sections of the configuration
func validateConfig(config *Config) error {
	for name, section := range map[string]interface{}{
		"server":      config.Server,
		"secrets":     config.Secrets,
		"cors":        config.CORS,
		"body":        config.Body,
		"compression": config.Compression,
		"logging":     config.Logging,
	} {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", name, err)
		}
	}

	if config.Database.ConnectTimeout <= 0 {
		return fmt.Errorf("database.connect_timeout must be positive, got %v", config.Database.ConnectTimeout)
	}

	return nil
}

// Addr returns the listen address for the configured port
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
