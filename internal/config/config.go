// Package config provides configuration management for clipreel.
// Configuration is loaded from environment variables, optionally seeded from
// a .env file, with sensible defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort           = 8797
	DefaultLogLevel       = "info"
	DefaultDataDir        = ".clipreel"
	DefaultThumbnailSize  = 320
	DefaultPromptTTL      = 30 * time.Minute
	DefaultMaxUploadBytes = 256 << 20

	// Environment variable names
	EnvPort           = "CLIPREEL_PORT"
	EnvLogLevel       = "CLIPREEL_LOG_LEVEL"
	EnvDataDir        = "CLIPREEL_DATA_DIR"
	EnvLogFile        = "CLIPREEL_LOG_FILE"
	EnvThumbnailSize  = "CLIPREEL_THUMBNAIL_SIZE"
	EnvPromptTTL      = "CLIPREEL_PROMPT_TTL"
	EnvMaxUploadBytes = "CLIPREEL_MAX_UPLOAD_BYTES"
	EnvMetrics        = "CLIPREEL_METRICS"

	// Database filename
	DBFilename = "clipreel.db"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	LogFile() string
	DataDir() string
	DBPath() string
	ThumbnailSize() int
	PromptTTL() time.Duration
	MaxUploadBytes() int64
	MetricsEnabled() bool
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port           int
	logLevel       string
	logFile        string
	dataDir        string
	thumbnailSize  int
	promptTTL      time.Duration
	maxUploadBytes int64
	metrics        bool
}

// New loads envFiles (a missing file is not an error) and builds an
// EnvConfig from defaults and environment overrides. Variables already set in
// the environment win over the files.
func New(envFiles ...string) (*EnvConfig, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &EnvConfig{
		port:           DefaultPort,
		logLevel:       DefaultLogLevel,
		dataDir:        defaultDataDir(),
		thumbnailSize:  DefaultThumbnailSize,
		promptTTL:      DefaultPromptTTL,
		maxUploadBytes: DefaultMaxUploadBytes,
		metrics:        true,
	}

	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}
	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}
	cfg.logFile = os.Getenv(EnvLogFile)

	if v := os.Getenv(EnvThumbnailSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvThumbnailSize)
		}
		cfg.thumbnailSize = size
	}

	if v := os.Getenv(EnvPromptTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive duration", EnvPromptTTL)
		}
		cfg.promptTTL = ttl
	}

	if v := os.Getenv(EnvMaxUploadBytes); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid %s: must be a positive integer", EnvMaxUploadBytes)
		}
		cfg.maxUploadBytes = n
	}

	if v := os.Getenv(EnvMetrics); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMetrics, err)
		}
		cfg.metrics = enabled
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// LogFile returns the rotated log file path, or "" for stdout only
func (c *EnvConfig) LogFile() string {
	return c.logFile
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

func (c *EnvConfig) ThumbnailSize() int {
	return c.thumbnailSize
}

// PromptTTL is how long a flag prompt waits before the clip is stored flagged
func (c *EnvConfig) PromptTTL() time.Duration {
	return c.promptTTL
}

func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.maxUploadBytes
}

func (c *EnvConfig) MetricsEnabled() bool {
	return c.metrics
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
