package config

import (
	"github.com/garyjia/rfq-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
		},
		Lark: container.LarkConfig{
			Enabled:    c.Lark.Enabled,
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			BaseURL:    c.Lark.BaseURL,
			APITimeout: c.Lark.APITimeout,
		},
		Notification: container.NotificationConfig{
			SendTimeout:       c.Notification.SendTimeout,
			Concurrency:       c.Notification.Concurrency,
			MaxAttempts:       c.Notification.MaxAttempts,
			RetryBatchSize:    c.Notification.RetryBatchSize,
			PendingStaleAfter: c.Notification.PendingStaleAfter,
		},
		Workflow: container.WorkflowConfig{
			RecalcTimeout:   c.Workflow.RecalcTimeout,
			ConflictRetries: c.Workflow.ConflictRetries,
		},
		Export: container.ExportConfig{
			OutputDir:     c.Export.OutputDir,
			CompanyName:   c.Export.CompanyName,
			ExportOnClose: c.Export.ExportOnClose,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			RequestTimeout: c.Server.RequestTimeout,
		},
		Worker: container.WorkerConfig{
			RetryPollInterval: c.Worker.RetryPollInterval,
			RetryRunTimeout:   c.Worker.RetryRunTimeout,
		},
	}
}
