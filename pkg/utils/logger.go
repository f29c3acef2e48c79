package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/Tsahi-Elkayam/sphinx/pkg/config"
	"github.com/sirupsen/logrus"
)

// NewLogger creates a new configured logger instance
func NewLogger() *logrus.Logger {
	logger := logrus.New()

	// Logs go to stderr so command output on stdout stays machine readable
	logger.SetOutput(os.Stderr)

	// Set log level from environment or default to Info
	level := getLogLevel()
	logger.SetLevel(level)

	// Set formatter based on environment
	if isJSONFormat() {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   !isColorEnabled(),
		})
	}

	return logger
}

// getLogLevel determines log level from environment
func getLogLevel() logrus.Level {
	levelStr := strings.ToLower(os.Getenv("SPHINX_LOG_LEVEL"))

	switch levelStr {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

// isJSONFormat checks if JSON log format is requested
func isJSONFormat() bool {
	format := strings.ToLower(os.Getenv("SPHINX_LOG_FORMAT"))
	return format == "json"
}

// isColorEnabled checks if colored output is enabled
func isColorEnabled() bool {
	// Disable colors if NO_COLOR is set or if not a TTY
	if os.Getenv("NO_COLOR") != "" {
		return false
	}

	// Check if explicitly disabled
	if strings.ToLower(os.Getenv("SPHINX_LOG_COLOR")) == "false" {
		return false
	}

	// Default to enabled for TTY
	return true
}

// ApplyConfig reconfigures an existing logger from the logging section of the configuration
func ApplyConfig(logger *logrus.Logger, cfg config.LoggingConfig) error {
	// Environment overrides win over the configuration file
	if os.Getenv("SPHINX_LOG_LEVEL") == "" {
		if level, err := logrus.ParseLevel(cfg.Level); err == nil {
			logger.SetLevel(level)
		}
	}

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", cfg.File, err)
		}
		logger.SetOutput(file)
	}

	if os.Getenv("SPHINX_LOG_FORMAT") != "" {
		return nil
	}

	// Set formatter
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			DisableColors:   !cfg.Color || os.Getenv("NO_COLOR") != "",
		})
	}

	return nil
}
