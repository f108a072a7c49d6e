package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/scene"
)

// ErrInvalidRequest wraps every request validation failure.
var ErrInvalidRequest = errors.New("invalid analysis request")

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// rawRequest is the wire shape of a request message.
type rawRequest struct {
	RequestID     string   `json:"request_id"`
	AOI           string   `json:"aoi_wkt"`
	Start         string   `json:"start"`
	End           string   `json:"end"`
	Polarizations []string `json:"polarizations,omitempty"`
}

// AnalysisRequest is a validated request.
type AnalysisRequest struct {
	ID            string               `json:"request_id"`
	AOI           string               `json:"aoi_wkt"`
	Start         time.Time            `json:"start"`
	End           time.Time            `json:"end"`
	Polarizations []scene.Polarization `json:"polarizations"`
}

// NewRequest validates the fields of a request built in code.
func NewRequest(id, aoi string, start, end time.Time, pols []scene.Polarization) (AnalysisRequest, error) {
	if strings.TrimSpace(aoi) == "" {
		return AnalysisRequest{}, fmt.Errorf("%w: aoi_wkt is required", ErrInvalidRequest)
	}
	if !start.Before(end) {
		return AnalysisRequest{}, fmt.Errorf("%w: start %s must be before end %s",
			ErrInvalidRequest, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	if len(pols) == 0 {
		pols = scene.DefaultPolarizations
	}
	return AnalysisRequest{ID: id, AOI: aoi, Start: start.UTC(), End: end.UTC(), Polarizations: pols}, nil
}

// ParseRequest decodes and validates a request message. defaults applies when
// the message names no polarizations.
func ParseRequest(raw RawEvent, defaults []scene.Polarization) (AnalysisRequest, error) {
	var rr rawRequest
	if err := json.Unmarshal(raw.Value, &rr); err != nil {
		return AnalysisRequest{}, fmt.Errorf("%w: unmarshal: %v", ErrInvalidRequest, err)
	}

	start, err := ParseDate(rr.Start)
	if err != nil {
		return AnalysisRequest{}, fmt.Errorf("%w: start: %v", ErrInvalidRequest, err)
	}
	end, err := ParseDate(rr.End)
	if err != nil {
		return AnalysisRequest{}, fmt.Errorf("%w: end: %v", ErrInvalidRequest, err)
	}

	pols := defaults
	if len(rr.Polarizations) > 0 {
		if pols, err = scene.ParsePolarizations(rr.Polarizations); err != nil {
			return AnalysisRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	id := rr.RequestID
	if id == "" {
		id = RequestIDFor(raw)
	}
	return NewRequest(id, rr.AOI, start, end, pols)
}

// RequestIDFor derives an ID for a message that carries none: the message
// key, else a hash of the payload.
func RequestIDFor(raw RawEvent) string {
	var rr rawRequest
	if json.Unmarshal(raw.Value, &rr) == nil && rr.RequestID != "" {
		return rr.RequestID
	}
	if len(raw.Key) > 0 {
		return string(raw.Key)
	}
	sum := sha256.Sum256(raw.Value)
	return hex.EncodeToString(sum[:8])
}

// ParseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates (UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("date is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}
