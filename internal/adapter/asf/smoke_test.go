//go:build network

package asf

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the live ASF search API. Search needs no token.
// Run with: go test -tags=network ./internal/adapter/asf/ -v -count=1

const liveSearchURL = "https://api.daac.asf.alaska.edu/services/search/param"

func TestSmoke_Search(t *testing.T) {
	c := testClient(liveSearchURL, "")
	b := geo.BoundingBox{West: 72.5, South: 23.0, East: 72.7, North: 23.2}

	cands, err := c.Search(context.Background(), b,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, cands, "Ahmedabad has regular Sentinel-1 coverage")

	for _, c := range cands {
		assert.NotEmpty(t, c.BurstID, c.ID)
		assert.False(t, c.AcquiredAt.IsZero(), c.ID)
	}

	assert.NotEmpty(t, scene.ChangePairs(cands, 30*24*time.Hour))
}
