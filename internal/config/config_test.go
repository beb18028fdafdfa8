package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var envVars = []string{
	"ARTNET_PORT", "ARPS_BIND",
	"ARPS_TIMEOUT_MS", "ARPS_MIN_LENGTH_MS", "ARPS_POLL_MS", "ARPS_QUEUE_SIZE",
	"ARPS_OUTPUT_DIR", "ARPS_COMPRESS", "ARPS_DRIFT_SLACK_US",
	"ARPS_LOG_LEVEL", "ARPS_LOG_FORMAT",
}

func unsetAll(t *testing.T) {
	for _, v := range envVars {
		// t.Setenv registers the restore, Unsetenv then removes it for this test
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetAll(t)

	cfg := Load()

	assert.Equal(t, 6454, cfg.ArtNetPort)
	assert.Equal(t, "", cfg.BindAddr)
	assert.Equal(t, 5*time.Second, cfg.InactivityTimeout)
	assert.Equal(t, 10*time.Second, cfg.MinLength)
	assert.Equal(t, 200*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 4096, cfg.QueueSize)
	assert.True(t, cfg.Compress)
	assert.Equal(t, 500*time.Microsecond, cfg.DriftSlack)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_CustomEnvironment(t *testing.T) {
	unsetAll(t)
	t.Setenv("ARTNET_PORT", "6455")
	t.Setenv("ARPS_BIND", "10.0.0.2")
	t.Setenv("ARPS_TIMEOUT_MS", "1500")
	t.Setenv("ARPS_MIN_LENGTH_MS", "3000")
	t.Setenv("ARPS_POLL_MS", "50")
	t.Setenv("ARPS_QUEUE_SIZE", "16")
	t.Setenv("ARPS_OUTPUT_DIR", "/tmp/shows")
	t.Setenv("ARPS_COMPRESS", "false")
	t.Setenv("ARPS_DRIFT_SLACK_US", "250")
	t.Setenv("ARPS_LOG_LEVEL", "debug")
	t.Setenv("ARPS_LOG_FORMAT", "json")

	cfg := Load()

	assert.Equal(t, 6455, cfg.ArtNetPort)
	assert.Equal(t, "10.0.0.2", cfg.BindAddr)
	assert.Equal(t, 1500*time.Millisecond, cfg.InactivityTimeout)
	assert.Equal(t, 3*time.Second, cfg.MinLength)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 16, cfg.QueueSize)
	assert.Equal(t, "/tmp/shows", cfg.OutputDir)
	assert.False(t, cfg.Compress)
	assert.Equal(t, 250*time.Microsecond, cfg.DriftSlack)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	unsetAll(t)
	t.Setenv("ARTNET_PORT", "not-a-port")
	t.Setenv("ARPS_COMPRESS", "maybe")

	cfg := Load()

	assert.Equal(t, 6454, cfg.ArtNetPort)
	assert.True(t, cfg.Compress)
}
