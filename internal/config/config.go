package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Notification NotificationConfig `mapstructure:"notification"`
	Workflow     WorkflowConfig     `mapstructure:"workflow"`
	Export       ExportConfig       `mapstructure:"export"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LarkConfig holds Lark API configuration. Leaving it disabled logs
// notifications instead of sending them.
type LarkConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	BaseURL    string        `mapstructure:"base_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// NotificationConfig holds delivery settings
type NotificationConfig struct {
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	Concurrency       int           `mapstructure:"concurrency"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBatchSize    int           `mapstructure:"retry_batch_size"`
	PendingStaleAfter time.Duration `mapstructure:"pending_stale_after"`
}

// WorkflowConfig holds transition engine settings
type WorkflowConfig struct {
	RecalcTimeout   time.Duration `mapstructure:"recalc_timeout"`
	ConflictRetries int           `mapstructure:"conflict_retries"`
}

// ExportConfig holds quotation export configuration
type ExportConfig struct {
	OutputDir     string `mapstructure:"output_dir"`
	CompanyName   string `mapstructure:"company_name"`
	ExportOnClose bool   `mapstructure:"export_on_close"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	RetryPollInterval time.Duration `mapstructure:"retry_poll_interval"`
	RetryRunTimeout   time.Duration `mapstructure:"retry_run_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A .env file
// next to the working directory is applied first; missing files are fine.
func Load(configPath string) (*Config, error) {
	return LoadWithEnvFile(configPath, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path
func LoadWithEnvFile(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := gotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(configPath); !errors.Is(statErr, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Override with environment variables
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind env vars: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/rfq.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.api_timeout", 30*time.Second)

	// Notification defaults
	v.SetDefault("notification.send_timeout", 10*time.Second)
	v.SetDefault("notification.concurrency", 4)
	v.SetDefault("notification.max_attempts", 5)
	v.SetDefault("notification.retry_batch_size", 50)
	v.SetDefault("notification.pending_stale_after", 5*time.Minute)

	// Workflow defaults
	v.SetDefault("workflow.recalc_timeout", 30*time.Second)
	v.SetDefault("workflow.conflict_retries", 0)

	// Export defaults
	v.SetDefault("export.output_dir", "quotations")
	v.SetDefault("export.company_name", "")
	v.SetDefault("export.export_on_close", true)

	// Worker defaults
	v.SetDefault("worker.retry_poll_interval", time.Minute)
	v.SetDefault("worker.retry_run_timeout", 30*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"lark.enabled":        "LARK_ENABLED",
		"lark.app_id":         "LARK_APP_ID",
		"lark.app_secret":     "LARK_APP_SECRET",
		"lark.base_url":       "LARK_BASE_URL",
		"database.path":       "RFQ_DATABASE_PATH",
		"server.port":         "RFQ_SERVER_PORT",
		"export.output_dir":   "RFQ_EXPORT_DIR",
		"export.company_name": "COMPANY_NAME",
		"logger.level":        "RFQ_LOG_LEVEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	// Lark credentials are only needed when delivery is enabled
	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Notification.MaxAttempts < 1 {
		return fmt.Errorf("notification.max_attempts must be at least 1")
	}
	if c.Workflow.ConflictRetries < 0 {
		return fmt.Errorf("workflow.conflict_retries cannot be negative")
	}
	if c.Export.OutputDir == "" {
		return fmt.Errorf("export.output_dir is required")
	}

	return nil
}
