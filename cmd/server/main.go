package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/rfq-workflow/internal/config"
	"github.com/garyjia/rfq-workflow/internal/container"
	httpapi "github.com/garyjia/rfq-workflow/internal/interfaces/http"
	"github.com/garyjia/rfq-workflow/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting RFQ Workflow Service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("lark_enabled", cfg.Lark.Enabled))

	if err := run(cfg, logger); err != nil {
		logger.Error("Service exited with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	services := c.Services()
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, httpapi.Services{
		RFQs:          services.RFQ,
		Engine:        c.WorkflowEngine(),
		Notifications: services.Notification,
		Quotations:    services.Quotation,
		Catalog:       c.Catalog(),
	}, container.NewLoggerAdapter(logger))

	// Blocks until SIGINT/SIGTERM, then shuts the listener down
	return server.Start(ctx)
}
