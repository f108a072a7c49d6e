// Package fetch downloads remote GeoTIFFs to local temporary files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/raster"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("remote object not found")

// StatusError reports an unexpected HTTP status. An empty Method means GET.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	method := e.Method
	if method == "" {
		method = http.MethodGet
	}
	return fmt.Sprintf("%s %s: status %d", method, e.URL, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// Fetcher downloads URLs into a scratch directory. The returned handles
// delete their file on Close.
type Fetcher struct {
	httpClient *http.Client
	token      string
	dir        string
	logger     *slog.Logger
}

// New creates a Fetcher. token, when set, is sent as a bearer token (NASA
// Earthdata). dir may be empty to use the OS temp directory.
func New(timeout time.Duration, token, dir string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
		dir:        dir,
		logger:     logger,
	}
}

// Fetch downloads url and returns a handle named name over the local copy.
func (f *Fetcher) Fetch(ctx context.Context, name, url string) (*raster.FileHandle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck // drain for connection reuse
		return nil, fmt.Errorf("download %s: %w", name, &StatusError{URL: url, Code: resp.StatusCode})
	}

	tmp, err := os.CreateTemp(f.dir, "fetch-*-"+path.Base(req.URL.Path))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("download %s: %w", name, err)
	}

	f.logger.Debug("downloaded", "name", name, "bytes", n)
	file := tmp.Name()
	return raster.NewFileHandle(name, file, func() error { return os.Remove(file) }), nil
}

// Load fetches a scene raster; the URL doubles as its name.
func (f *Fetcher) Load(ctx context.Context, url string) (raster.Handle, error) {
	h, err := f.Fetch(ctx, path.Base(url), url)
	if err != nil {
		return nil, err
	}
	return h, nil
}
