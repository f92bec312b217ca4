package lark

import (
	"time"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"go.uber.org/zap"
)

// Client wraps the Lark SDK client
type Client struct {
	client *lark.Client
	appID  string
	logger *zap.Logger
}

// Config holds Lark client configuration
type Config struct {
	AppID          string
	AppSecret      string
	BaseURL        string // Empty for the public Lark endpoint
	RequestTimeout time.Duration
}

// NewClient creates a new Lark SDK client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, lark.WithReqTimeout(cfg.RequestTimeout))
	}

	return &Client{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		appID:  cfg.AppID,
		logger: logger,
	}
}

// GetClient returns the underlying Lark SDK client
func (c *Client) GetClient() *lark.Client {
	return c.client
}

// GetAppID returns the app ID
func (c *Client) GetAppID() string {
	return c.appID
}
