// Package copernicus serves Copernicus GLO-30 elevation tiles over HTTP.
package copernicus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/adapter/fetch"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
)

// Client implements pipeline.TileSource against the public tile bucket.
type Client struct {
	locator    geo.CopernicusLocator
	httpClient *http.Client
	fetcher    *fetch.Fetcher
	logger     *slog.Logger
}

// NewClient creates a tile client. probeTimeout bounds each HEAD request;
// fetcher performs the downloads.
func NewClient(baseURL string, probeTimeout time.Duration, fetcher *fetch.Fetcher, logger *slog.Logger) *Client {
	return &Client{
		locator:    geo.CopernicusLocator{BaseURL: baseURL},
		httpClient: &http.Client{Timeout: probeTimeout},
		fetcher:    fetcher,
		logger:     logger,
	}
}

// Exists reports whether the tile object is published. The bucket answers
// 403 or 404 for tiles over open ocean; any other non-200 status is an error.
func (c *Client) Exists(ctx context.Context, id geo.TileID) (bool, error) {
	u := c.locator.Locate(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("probe tile %s: %w", id, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusForbidden:
		c.logger.Debug("tile not available", "tile", id.String(), "status", resp.StatusCode)
		return false, nil
	default:
		return false, fmt.Errorf("probe tile %s: %w",
			id, &fetch.StatusError{Method: http.MethodHead, URL: u, Code: resp.StatusCode})
	}
}

// Open downloads the tile and returns a handle over the local copy.
func (c *Client) Open(ctx context.Context, id geo.TileID) (raster.Handle, error) {
	h, err := c.fetcher.Fetch(ctx, id.String(), c.locator.Locate(id))
	if err != nil {
		return nil, fmt.Errorf("open tile %s: %w", id, err)
	}
	return h, nil
}
