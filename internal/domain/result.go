package domain

import (
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/feature"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
)

// How the SAR layers of a result were obtained.
const (
	SARObserved  = "observed"
	SARSynthetic = "synthetic"
)

// Result statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// How the elevation layer of a result was obtained.
const (
	ElevationMosaic  = "mosaic"
	ElevationMissing = "missing"
)

// ElevationInfo describes the elevation layer.
type ElevationInfo struct {
	Source  string          `json:"source"`
	Profile *raster.Profile `json:"profile,omitempty"`
	Min     float64         `json:"min"`
	Max     float64         `json:"max"`
	Mean    float64         `json:"mean"`
}

// SceneRef identifies one selected SAR scene.
type SceneRef struct {
	ID         string    `json:"id"`
	AcquiredAt time.Time `json:"acquired_at"`
	BurstID    string    `json:"burst_id,omitempty"`
}

// RefOf converts a candidate to a SceneRef; nil stays nil.
func RefOf(c *scene.Candidate) *SceneRef {
	if c == nil {
		return nil
	}
	return &SceneRef{ID: c.ID, AcquiredAt: c.AcquiredAt, BurstID: c.BurstID}
}

// AnalysisResult is emitted once per request.
type AnalysisResult struct {
	RequestID   string          `json:"request_id"`
	Status      string          `json:"status"`
	Error       string          `json:"error,omitempty"`
	Bounds      geo.BoundingBox `json:"bounds"`
	Tiles       []geo.TileID    `json:"tiles"`
	TilesUsed   []geo.TileID    `json:"tiles_used"`
	Elevation   ElevationInfo   `json:"elevation"`
	Before      *SceneRef       `json:"before,omitempty"`
	After       *SceneRef       `json:"after,omitempty"`
	SARSource   string          `json:"sar_source"`
	Rows        int             `json:"rows"`
	Shape       [2]int          `json:"shape"`
	Columns     []string        `json:"columns"`
	Risk        *RiskSummary    `json:"risk,omitempty"`
	Artifacts   []string        `json:"artifacts,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`

	Table       *feature.Table `json:"-"`
	ElevationGT *raster.Raster `json:"-"`
}

// Warn records a non-fatal problem on the result.
func (r *AnalysisResult) Warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Stamp sets ProcessedAt from the package clock.
func (r *AnalysisResult) Stamp() {
	r.ProcessedAt = Now()
}

// FailedResult reports a request that could not be analysed.
func FailedResult(requestID string, err error) AnalysisResult {
	return AnalysisResult{
		RequestID:   requestID,
		Status:      StatusFailed,
		Error:       err.Error(),
		ProcessedAt: Now(),
	}
}
