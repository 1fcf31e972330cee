package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

const (
	DefaultEndpoint        = "0.0.0.0:8080"
	DefaultCleanupInterval = time.Hour
	DefaultAbandonAfter    = time.Hour
	DefaultTimeoutSecond   = 30
	dataDirName            = ".mikedb"
)

// ServerConfig holds all configuration parameters of a MikeDB server.
type ServerConfig struct {
	// HTTP api settings. An endpoint ending in ".sock" is a unix socket path.
	Endpoint      string
	TimeoutSecond int64

	// Storage
	DataDir string
	Codec   string

	// Cleanup of abandoned in-memory databases
	CleanupInterval time.Duration
	AbandonAfter    time.Duration

	// Access control
	KeysFile    string
	WatchConfig bool
	RateLimit   int // requests per minute and API key, 0 disables the limiter

	// Logging configuration
	LogLevel string
}

// DefaultDataDir returns $HOME/.mikedb, or .mikedb in the working directory
// when no home directory is known.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return dataDirName
	}
	return filepath.Join(home, dataDirName)
}

// IsUnixSocket reports whether the endpoint is a unix socket path
func (c *ServerConfig) IsUnixSocket() bool {
	return strings.HasSuffix(c.Endpoint, ".sock")
}

// Timeout returns the HTTP read and write timeout
func (c *ServerConfig) Timeout() time.Duration {
	if c.TimeoutSecond <= 0 {
		return DefaultTimeoutSecond * time.Second
	}
	return time.Duration(c.TimeoutSecond) * time.Second
}

// Validate checks values that cannot be fixed by a default
func (c *ServerConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory must not be empty")
	}
	if c.CleanupInterval < 0 || c.AbandonAfter < 0 {
		return fmt.Errorf("cleanup interval and abandon duration must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", int64(c.Timeout()/time.Second)))
	if c.RateLimit > 0 {
		addField("Rate Limit", fmt.Sprintf("%d req/min per key", c.RateLimit))
	} else {
		addField("Rate Limit", "off")
	}

	addSection("Storage")
	addField("Data Directory", c.DataDir)
	addField("Codec", c.Codec)

	addSection("Cleanup")
	addField("Interval", c.CleanupInterval.String())
	addField("Abandon After", c.AbandonAfter.String())

	addSection("Access Control")
	if c.KeysFile != "" {
		addField("Keys File", c.KeysFile)
	} else {
		addField("Keys File", "-")
	}
	addField("Watch Config", strconv.FormatBool(c.WatchConfig))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoint      string
	APIKey        string
	SessionID     string
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	sb.WriteString("\nCLIENT CONFIGURATION\n")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.APIKey != "" {
		addField("API Key", strings.Repeat("*", len(c.APIKey)))
	} else {
		addField("API Key", "-")
	}
	if c.SessionID != "" {
		addField("Session", c.SessionID)
	}

	return sb.String()
}
