package localfs

import (
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
)

// FixtureOptions describes a generated fixture set.
type FixtureOptions struct {
	Bounds geo.BoundingBox
	// TilePixels is the side of each 1x1 degree DEM tile. Default 120.
	TilePixels int
	// SARPixels is the side of each SAR raster covering Bounds. Default 64.
	SARPixels int
	// Acquisitions are the scene dates. Default two dates 24 days apart
	// starting 2024-01-05.
	Acquisitions  []time.Time
	Polarizations []scene.Polarization
	// BurstID is shared by every scene. Default T072-153027-IW2.
	BurstID string
	Seed    uint64
}

func (o *FixtureOptions) defaults() {
	if o.TilePixels <= 0 {
		o.TilePixels = 120
	}
	if o.SARPixels <= 0 {
		o.SARPixels = 64
	}
	if len(o.Acquisitions) == 0 {
		first := time.Date(2024, 1, 5, 0, 56, 19, 0, time.UTC)
		o.Acquisitions = []time.Time{first, first.AddDate(0, 0, 24)}
	}
	if len(o.Polarizations) == 0 {
		o.Polarizations = scene.DefaultPolarizations
	}
	if o.BurstID == "" {
		o.BurstID = "T072-153027-IW2"
	}
}

// Generate writes DEM tiles covering opts.Bounds, one SAR raster per scene
// and polarization, and the scene manifest. Terrain is a smooth ridge with
// noise; later scenes lose backscatter over a central patch so the change
// features have something to find.
func (d *Dir) Generate(opts FixtureOptions) ([]scene.Candidate, error) {
	opts.defaults()
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed+1))

	for _, id := range geo.TilesFor(opts.Bounds) {
		if err := writeRaster(d.TilePath(id), demTile(id, opts.TilePixels, rng)); err != nil {
			return nil, fmt.Errorf("tile %s: %w", id, err)
		}
	}

	scenes := make([]scene.Candidate, 0, len(opts.Acquisitions))
	base := sarBase(opts.SARPixels, rng)
	for i, at := range opts.Acquisitions {
		name := operaName(opts.BurstID, at)
		c := scene.Candidate{
			ID:         name,
			AcquiredAt: at.UTC(),
			Platform:   "S1A",
			BurstID:    opts.BurstID,
			Endpoints:  make(map[scene.Polarization][]string),
		}
		for _, p := range opts.Polarizations {
			file := name + "_" + string(p) + ".tif"
			r := sarScene(base, opts.Bounds, p, i, rng)
			if err := writeRaster(filepath.Join(d.root, "sar", file), r); err != nil {
				return nil, fmt.Errorf("scene %s %s: %w", name, p, err)
			}
			c.Endpoints[p] = []string{file}
		}
		scenes = append(scenes, c)
	}
	if err := d.WriteManifest(scenes); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return scenes, nil
}

func operaName(burst string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("OPERA_L2_RTC-S1_%s_%s_%s_S1A_30_v1.0",
		burst, at.Format("20060102T150405Z"), at.Add(7*time.Hour).Format("20060102T150405Z"))
}

func demTile(id geo.TileID, n int, rng *rand.Rand) *raster.Raster {
	nodata := -32767.0
	g := raster.NewGrid(n, n)
	step := 1 / float64(n)
	for r := range n {
		lat := float64(id.Lat+1) - (float64(r)+0.5)*step
		for c := range n {
			lon := float64(id.Lon) + (float64(c)+0.5)*step
			ridge := 400 * math.Exp(-math.Pow((lon-float64(id.Lon)-0.5)*4, 2))
			g.Set(r, c, 150+ridge+60*math.Sin(lat*20)+rng.NormFloat64()*2)
		}
	}
	return &raster.Raster{
		Grid:      g,
		Transform: raster.GeoTransform{float64(id.Lon), step, 0, float64(id.Lat + 1), 0, -step},
		NoData:    &nodata,
		EPSG:      4326,
	}
}

// sarBase is the speckle-free intensity pattern shared by all scenes.
func sarBase(n int, rng *rand.Rand) raster.Grid {
	g := raster.NewGrid(n, n)
	for i := range g.Data {
		g.Data[i] = 0.05 + 0.15*rng.Float64()
	}
	return g
}

func sarScene(base raster.Grid, b geo.BoundingBox, p scene.Polarization, index int, rng *rand.Rand) *raster.Raster {
	g := raster.NewGrid(base.Rows, base.Cols)
	scale := 1.0
	if _, co := p.CrossPol(); !co {
		scale = 0.25
	}
	p0, p1 := base.Rows/3, 2*base.Rows/3
	for r := range base.Rows {
		for c := range base.Cols {
			v := base.At(r, c) * scale * (0.9 + 0.2*rng.Float64())
			if index > 0 && r >= p0 && r < p1 && c >= p0 && c < p1 {
				v *= 0.4
			}
			g.Set(r, c, v)
		}
	}
	return &raster.Raster{
		Grid: g,
		Transform: raster.GeoTransform{
			b.West, b.Width() / float64(base.Cols), 0,
			b.North, 0, -b.Height() / float64(base.Rows),
		},
		EPSG: 4326,
	}
}

func writeRaster(path string, r *raster.Raster) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := raster.WriteGeoTIFF(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
