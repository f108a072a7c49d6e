package domain

import (
	"testing"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAOI = "POLYGON((72.5 23.0, 72.7 23.0, 72.7 23.2, 72.5 23.2, 72.5 23.0))"

func TestParseRequest(t *testing.T) {
	defaults := []scene.Polarization{scene.VV, scene.VH}

	t.Run("full request", func(t *testing.T) {
		data := []byte(`{"request_id":"r1","aoi_wkt":"` + testAOI + `","start":"2024-01-01","end":"2024-03-01T12:00:00+05:30","polarizations":["vv","HH","VV"]}`)
		req, err := ParseRequest(RawEvent{Value: data}, defaults)

		require.NoError(t, err)
		assert.Equal(t, "r1", req.ID)
		assert.Equal(t, testAOI, req.AOI)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), req.Start)
		assert.Equal(t, time.Date(2024, 3, 1, 6, 30, 0, 0, time.UTC), req.End)
		assert.Equal(t, []scene.Polarization{scene.VV, scene.HH}, req.Polarizations)
	})

	t.Run("defaults polarizations", func(t *testing.T) {
		data := []byte(`{"request_id":"r2","aoi_wkt":"` + testAOI + `","start":"2024-01-01","end":"2024-02-01"}`)
		req, err := ParseRequest(RawEvent{Value: data}, defaults)

		require.NoError(t, err)
		assert.Equal(t, defaults, req.Polarizations)
	})

	t.Run("id falls back to key", func(t *testing.T) {
		data := []byte(`{"aoi_wkt":"` + testAOI + `","start":"2024-01-01","end":"2024-02-01"}`)
		req, err := ParseRequest(RawEvent{Key: []byte("from-key"), Value: data}, defaults)

		require.NoError(t, err)
		assert.Equal(t, "from-key", req.ID)
	})

	t.Run("id falls back to content hash", func(t *testing.T) {
		data := []byte(`{"aoi_wkt":"` + testAOI + `","start":"2024-01-01","end":"2024-02-01"}`)
		a, err := ParseRequest(RawEvent{Value: data}, defaults)
		require.NoError(t, err)
		b, err := ParseRequest(RawEvent{Value: data}, defaults)
		require.NoError(t, err)

		assert.Len(t, a.ID, 16)
		assert.Equal(t, a.ID, b.ID)
	})

	rejects := map[string]string{
		"invalid JSON":         `{invalid json`,
		"missing aoi":          `{"start":"2024-01-01","end":"2024-02-01"}`,
		"missing start":        `{"aoi_wkt":"x","end":"2024-02-01"}`,
		"bad end":              `{"aoi_wkt":"x","start":"2024-01-01","end":"01/02/2024"}`,
		"start after end":      `{"aoi_wkt":"x","start":"2024-03-01","end":"2024-02-01"}`,
		"start equals end":     `{"aoi_wkt":"x","start":"2024-03-01","end":"2024-03-01"}`,
		"unknown polarization": `{"aoi_wkt":"x","start":"2024-01-01","end":"2024-02-01","polarizations":["XX"]}`,
	}
	for name, body := range rejects {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRequest(RawEvent{Value: []byte(body)}, defaults)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-05-06 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("")
	assert.Error(t, err)
}
