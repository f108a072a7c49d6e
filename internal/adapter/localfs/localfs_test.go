package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTile(t *testing.T, path string, v float64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, raster.WriteGeoTIFF(f, &raster.Raster{
		Grid:      raster.Filled(2, 2, v),
		Transform: raster.GeoTransform{72, 0.5, 0, 24, 0, -0.5},
		EPSG:      4326,
	}))
}

func TestDir_Tiles(t *testing.T) {
	d := New(t.TempDir())
	id := geo.TileID{Lat: 23, Lon: 72}
	writeTile(t, d.TilePath(id), 640)

	ok, err := d.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Exists(context.Background(), geo.TileID{Lat: 0, Lon: 0})
	require.NoError(t, err)
	assert.False(t, ok)

	h, err := d.Open(context.Background(), id)
	require.NoError(t, err)
	r, err := h.Read()
	require.NoError(t, err)
	assert.Equal(t, 640.0, r.Grid.At(0, 0))
	require.NoError(t, h.Close())
}

func TestDir_SearchAndLoad(t *testing.T) {
	d := New(t.TempDir())
	day := func(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }
	scenes := []scene.Candidate{
		{ID: "late", AcquiredAt: day(20), Endpoints: map[scene.Polarization][]string{scene.VV: {"late_VV.tif"}}},
		{ID: "early", AcquiredAt: day(2), Endpoints: map[scene.Polarization][]string{scene.VV: {"early_VV.tif"}}},
		{ID: "outside", AcquiredAt: day(30)},
	}
	require.NoError(t, d.WriteManifest(scenes))
	writeTile(t, filepath.Join(d.root, "sar", "early_VV.tif"), 0.05)

	got, err := d.Search(context.Background(), geo.BoundingBox{}, day(1), day(25))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)
	assert.Equal(t, "late", got[1].ID)

	h, err := d.Load(context.Background(), "early_VV.tif")
	require.NoError(t, err)
	assert.Equal(t, "early_VV.tif", h.Name())

	_, err = d.Load(context.Background(), "late_VV.tif")
	assert.Error(t, err)
}

func TestDir_SearchWithoutManifest(t *testing.T) {
	_, err := New(t.TempDir()).Search(context.Background(), geo.BoundingBox{}, time.Time{}, time.Now())
	assert.ErrorContains(t, err, "scene manifest")
}

func TestDir_Generate(t *testing.T) {
	d := New(t.TempDir())
	b, err := geo.NewBoundingBox(72.9, 23.2, 73.1, 23.4)
	require.NoError(t, err)

	scenes, err := d.Generate(FixtureOptions{Bounds: b, TilePixels: 20, SARPixels: 16, Seed: 3})
	require.NoError(t, err)
	require.Len(t, scenes, 2)

	for _, id := range geo.TilesFor(b) {
		ok, err := d.Exists(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, ok, "tile %s", id)
	}

	g, err := scene.ParseOperaName(scenes[0].ID)
	require.NoError(t, err)
	assert.Equal(t, scenes[0].BurstID, g.BurstID)
	assert.True(t, g.Start.Equal(scenes[0].AcquiredAt))

	found, err := d.Search(context.Background(), b, scenes[0].AcquiredAt, scenes[1].AcquiredAt)
	require.NoError(t, err)
	sel := scene.Select(found, scene.DefaultPolarizations)
	require.True(t, sel.Pair())

	ep, ok := sel.Newest.Endpoint(scene.VH)
	require.True(t, ok)
	h, err := d.Load(context.Background(), ep)
	require.NoError(t, err)
	r, err := h.Read()
	require.NoError(t, err)
	assert.Equal(t, 16, r.Grid.Rows)
	assert.InDelta(t, 72.9, r.Transform[0], 1e-9)
}
