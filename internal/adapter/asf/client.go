// Package asf searches the Alaska Satellite Facility catalog for OPERA RTC
// Sentinel-1 products.
package asf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

const (
	datasetOPERA = "OPERA-S1"
	levelRTC     = "RTC"
	maxResults   = 500
)

// Client implements pipeline.SceneCatalog using the ASF search API.
type Client struct {
	searchURL  string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a catalog client. token, when set, is sent as an
// Earthdata bearer token.
func NewClient(searchURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		searchURL:  searchURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Search returns the OPERA RTC products intersecting b and acquired in
// [start, end], sorted by acquisition time ascending.
func (c *Client) Search(ctx context.Context, b geo.BoundingBox, start, end time.Time) ([]scene.Candidate, error) {
	aoi := orb.Bound{Min: orb.Point{b.West, b.South}, Max: orb.Point{b.East, b.North}}.ToPolygon()
	params := url.Values{
		"dataset":         {datasetOPERA},
		"processingLevel": {levelRTC},
		"intersectsWith":  {wkt.MarshalString(aoi)},
		"start":           {start.UTC().Format(time.RFC3339)},
		"end":             {end.UTC().Format(time.RFC3339)},
		"output":          {"geojson"},
		"maxResults":      {fmt.Sprint(maxResults)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asf search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("asf search error: status %d: %s", resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	scenes := make([]scene.Candidate, 0, len(fc.Features))
	for _, f := range fc.Features {
		cand, err := f.Properties.candidate()
		if err != nil {
			c.logger.Warn("skipping catalog product", "scene", f.Properties.SceneName, "error", err)
			continue
		}
		scenes = append(scenes, cand)
	}
	scene.SortByAcquisition(scenes)
	c.logger.Debug("catalog search complete", "bounds", b.String(), "products", len(fc.Features), "usable", len(scenes))
	return scenes, nil
}

// ASF search API response types.

type featureCollection struct {
	Features []product `json:"features"`
}

type product struct {
	Properties properties `json:"properties"`
}

type properties struct {
	SceneName      string   `json:"sceneName"`
	FileID         string   `json:"fileID"`
	Platform       string   `json:"platform"`
	StartTime      string   `json:"startTime"`
	URL            string   `json:"url"`
	AdditionalURLs []string `json:"additionalUrls"`
}

func (p properties) candidate() (scene.Candidate, error) {
	id := p.SceneName
	if id == "" {
		id = p.FileID
	}
	if id == "" {
		return scene.Candidate{}, fmt.Errorf("product has no scene name")
	}
	acquired, err := parseTime(p.StartTime)
	if err != nil {
		return scene.Candidate{}, err
	}

	urls := make([]string, 0, 1+len(p.AdditionalURLs))
	if p.URL != "" {
		urls = append(urls, p.URL)
	}
	urls = append(urls, p.AdditionalURLs...)

	cand := scene.Candidate{
		ID:         id,
		AcquiredAt: acquired.UTC(),
		Endpoints:  scene.EndpointsFromURLs(urls),
		Platform:   p.Platform,
	}
	if g, err := scene.ParseOperaName(id); err == nil {
		cand.BurstID = g.BurstID
	}
	return cand, nil
}

// parseTime accepts RFC 3339 and the zone-less form some ASF datasets emit,
// which is UTC.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02T15:04:05.999999999", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("startTime %q: %w", s, err)
	}
	return t, nil
}
