// Package container provides dependency injection and lifecycle management
// for the RFQ workflow service.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Lark messaging configuration
	Lark LarkConfig

	// Notification delivery configuration
	Notification NotificationConfig

	// Workflow engine configuration
	Workflow WorkflowConfig

	// Quotation export configuration
	Export ExportConfig

	// Server configuration
	Server ServerConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits on a locked database
	BusyTimeout time.Duration
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on message delivery; otherwise messages are only logged
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string

	// BaseURL overrides the open platform domain
	BaseURL string

	// APITimeout is the timeout for API calls
	APITimeout time.Duration
}

// NotificationConfig holds delivery settings.
type NotificationConfig struct {
	SendTimeout       time.Duration
	Concurrency       int
	MaxAttempts       int
	RetryBatchSize    int
	PendingStaleAfter time.Duration
}

// WorkflowConfig holds transition engine settings.
type WorkflowConfig struct {
	// RecalcTimeout bounds each cost recalculation
	RecalcTimeout time.Duration

	// ConflictRetries re-runs a transition that lost an optimistic check
	ConflictRetries int
}

// ExportConfig holds quotation export settings.
type ExportConfig struct {
	// OutputDir is the base directory for rendered quotations
	OutputDir string

	// CompanyName is printed on the quotation header
	CompanyName string

	// ExportOnClose renders a quotation whenever an RFQ closes
	ExportOnClose bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// RequestTimeout bounds each API request
	RequestTimeout time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// Notification retry worker settings
	RetryPollInterval time.Duration
	RetryRunTimeout   time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/rfq.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
		},
		Lark: LarkConfig{
			APITimeout: 30 * time.Second,
		},
		Notification: NotificationConfig{
			SendTimeout:       10 * time.Second,
			Concurrency:       4,
			MaxAttempts:       5,
			RetryBatchSize:    50,
			PendingStaleAfter: 5 * time.Minute,
		},
		Workflow: WorkflowConfig{
			RecalcTimeout: 30 * time.Second,
		},
		Export: ExportConfig{
			OutputDir:     "quotations",
			ExportOnClose: true,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			RequestTimeout: 20 * time.Second,
		},
		Worker: WorkerConfig{
			RetryPollInterval: time.Minute,
			RetryRunTimeout:   30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Validate Lark configuration
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	// Validate export configuration
	if c.Export.OutputDir == "" {
		return fmt.Errorf("export.output_dir is required")
	}

	return nil
}
