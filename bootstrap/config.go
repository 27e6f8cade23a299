package bootstrap

import (
	"fmt"
	"os"

	"appserver/config"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger initializes the zap logger with colored console output.
// The returned level can be changed once the configuration is known.
func InitLogger() (*zap.Logger, *zap.SugaredLogger, zap.AtomicLevel, error) {
	// Create a colored console encoder config
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Colored levels
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder        // Readable timestamps
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder      // Short file paths

	// Create console encoder with colors
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)

	// Write to stdout
	core := zapcore.NewCore(
		consoleEncoder,
		zapcore.AddSync(os.Stdout),
		level,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), level, nil
}

// InitConfig loads the application configuration.
func InitConfig(sugar *zap.SugaredLogger) (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load config: %v\n", err)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if viper.ConfigFileUsed() == "" {
		sugar.Info("No config file found, using defaults and env vars")
	}

	if err := config.LoadSecrets(cfg); err != nil {
		sugar.Warnw("Failed to load database credentials from secret store",
			"provider", cfg.Secrets.Provider,
			"error", err)
	}

	// Missing credentials are reported here and again by the connection attempt
	if err := cfg.Database.Validate(); err != nil {
		sugar.Warnw("Database configuration incomplete", "error", err)
	}

	sugar.Infow("Config loaded",
		"port", cfg.Server.Port,
		"database_uri", cfg.Database.Redacted(),
		"wait_for_connection", cfg.Database.WaitForConnection,
		"log_level", cfg.Logging.Level)

	return cfg, nil
}

// applyLogLevel switches the logger to the configured level
func applyLogLevel(level zap.AtomicLevel, cfg *config.Config, sugar *zap.SugaredLogger) {
	if cfg.Logging.Level == "" {
		return
	}
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		sugar.Warnw("Invalid log level, keeping debug", "level", cfg.Logging.Level, "error", err)
	}
}
