package riskmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/feature"
	"github.com/klauspost/compress/gzip"
)

// Client calls an external model service at POST {baseURL}/predict.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a model client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// PredictRequest is the body sent to the model: one array per column.
type PredictRequest struct {
	Columns map[string][]float64 `json:"columns"`
	Rows    int                  `json:"rows"`
	Shape   [2]int               `json:"shape"`
}

// PredictResponse is the model's answer.
type PredictResponse struct {
	Probabilities []float64 `json:"probabilities"`
	ModelVersion  string    `json:"model_version,omitempty"`
}

// Predict posts the table gzip-compressed and returns one probability per row.
func (c *Client) Predict(ctx context.Context, t *feature.Table) ([]float64, error) {
	reqBody := PredictRequest{
		Columns: make(map[string][]float64, len(feature.Columns)),
		Rows:    t.Len(),
		Shape:   [2]int{t.Rows, t.Cols},
	}
	for _, name := range feature.Columns {
		col, _ := t.Column(name)
		reqBody.Columns[name] = col
	}

	var body bytes.Buffer
	zw := gzip.NewWriter(&body)
	if err := json.NewEncoder(zw).Encode(reqBody); err != nil {
		return nil, fmt.Errorf("marshal model request: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &body)
	if err != nil {
		return nil, fmt.Errorf("create model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("model service returned status %d: %s", resp.StatusCode, msg)
	}

	var out PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	if len(out.Probabilities) != t.Len() {
		return nil, fmt.Errorf("model returned %d probabilities for %d rows", len(out.Probabilities), t.Len())
	}
	c.logger.Debug("model prediction complete", "rows", t.Len(), "model_version", out.ModelVersion)
	return out.Probabilities, nil
}
