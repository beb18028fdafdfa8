// Package config provides configuration for the recorder and player.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values.
type Config struct {
	// Art-Net transport
	ArtNetPort int
	BindAddr   string

	// Recording policy
	InactivityTimeout time.Duration // stop when no frame arrives for this long
	MinLength         time.Duration // shorter recordings are discarded
	PollInterval      time.Duration // supervisor tick for progress and stop checks
	QueueSize         int           // receive to writer hand-off capacity
	OutputDir         string
	Compress          bool

	// Playback
	DriftSlack time.Duration // frames due sooner than this are sent immediately

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		ArtNetPort: getEnvInt("ARTNET_PORT", 6454),
		BindAddr:   getEnv("ARPS_BIND", ""),

		InactivityTimeout: time.Duration(getEnvInt("ARPS_TIMEOUT_MS", 5000)) * time.Millisecond,
		MinLength:         time.Duration(getEnvInt("ARPS_MIN_LENGTH_MS", 10000)) * time.Millisecond,
		PollInterval:      time.Duration(getEnvInt("ARPS_POLL_MS", 200)) * time.Millisecond,
		QueueSize:         getEnvInt("ARPS_QUEUE_SIZE", 4096),
		OutputDir:         getEnv("ARPS_OUTPUT_DIR", ""),
		Compress:          getEnvBool("ARPS_COMPRESS", true),

		DriftSlack: time.Duration(getEnvInt("ARPS_DRIFT_SLACK_US", 500)) * time.Microsecond,

		LogLevel:  getEnv("ARPS_LOG_LEVEL", "info"),
		LogFormat: getEnv("ARPS_LOG_FORMAT", "console"),
	}
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
