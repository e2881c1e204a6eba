package tower

import (
	"context"
	"log/slog"
	"net/http"

	"towerrunner/internal/transport"
)

// Doer sends a request and returns whatever response came back.
// *transport.Client is the production implementation.
type Doer interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// ClientConfig holds Tower API settings. Zero values use defaults.
type ClientConfig struct {
	Host     string // e.g. https://tower.example.com
	PageSize int    // job_events page size (default: 10)
	MaxPages int    // pages followed per fetch (default: 0, unbounded)
}

// Client calls the four Tower endpoints a run needs.
type Client struct {
	doer     Doer
	host     string
	pageSize int
	maxPages int
	logger   *slog.Logger
}

// NewClient creates a Tower API client.
func NewClient(doer Doer, cfg ClientConfig) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	maxPages := cfg.MaxPages
	if maxPages < 0 {
		maxPages = 0
	}
	return &Client{
		doer:     doer,
		host:     trimHost(cfg.Host),
		pageSize: pageSize,
		maxPages: maxPages,
		logger:   slog.With("component", "tower"),
	}
}

func (c *Client) get(ctx context.Context, uri string) (*transport.Response, error) {
	return c.doer.Do(ctx, &transport.Request{Method: http.MethodGet, URI: uri})
}
