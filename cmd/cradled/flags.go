package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Debug           bool
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback. An empty config
	// path runs the daemon on built-in defaults plus CRADLE_* overrides.
	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("CRADLE_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: CRADLE_CONFIG)")

	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("CRADLE_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: CRADLE_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("CRADLE_LOG_LEVEL", ""),
		"Log level override: debug, info, warn, error (env: CRADLE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("CRADLE_LOG_FORMAT", ""),
		"Log format override: json, text (env: CRADLE_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("CRADLE_DEBUG", false),
		"Enable debug logging (env: CRADLE_DEBUG)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("CRADLE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: CRADLE_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	// A config file is optional, but a named one must exist
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	// Empty level/format defer to the config file
	validLevels := []string{"", "debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"", "json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout too short: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Cradle monitoring pipeline daemon

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run on built-in defaults (localhost NATS, memory kvstore, local engine)
  %s

  # Run with a config file
  %s --config=/etc/cradle/config.json

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Run with environment variables
  export CRADLE_CONFIG=/etc/cradle/config.json
  export CRADLE_NATS_URLS=nats://nats-1:4222,nats://nats-2:4222
  %s

  # Validate configuration only
  %s --config=/etc/cradle/config.json --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
