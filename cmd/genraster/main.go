// Command genraster writes a synthetic fixture directory for offline runs:
// DEM tiles covering an area, SAR rasters for a series of acquisitions and
// the scene manifest the local catalog reads.
//
// Usage:
//
//	go run ./cmd/genraster \
//	  -out fixtures \
//	  -aoi 'POLYGON((72.2 23.2,72.4 23.2,72.4 23.4,72.2 23.4,72.2 23.2))' \
//	  -scenes 3 -interval 12d
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/adapter/localfs"
	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "fixture directory to write")
	aoi := flag.String("aoi", "", "area of interest as a WKT polygon")
	first := flag.String("first", "2024-01-05", "first acquisition date")
	count := flag.Int("scenes", 2, "number of acquisitions")
	interval := flag.String("interval", "12d", "gap between acquisitions, e.g. 12d or 36h")
	pols := flag.String("pols", "VV,VH", "polarizations to write")
	tilePixels := flag.Int("tile-pixels", 360, "pixels per side of each 1 degree DEM tile")
	sarPixels := flag.Int("sar-pixels", 128, "pixels per side of each SAR raster")
	burst := flag.String("burst", "", "burst id shared by every scene")
	seed := flag.Uint64("seed", 42, "random seed")
	flag.Parse()

	if *out == "" || *aoi == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -out, -aoi")
	}
	if *count < 1 {
		return fmt.Errorf("-scenes must be at least 1, got %d", *count)
	}

	b, err := geo.ParseBounds(*aoi)
	if err != nil {
		return err
	}
	start, err := domain.ParseDate(*first)
	if err != nil {
		return fmt.Errorf("-first: %w", err)
	}
	step, err := parseInterval(*interval)
	if err != nil {
		return fmt.Errorf("-interval: %w", err)
	}
	requested, err := scene.ParsePolarizationList(*pols)
	if err != nil {
		return err
	}

	dates := make([]time.Time, *count)
	for i := range dates {
		dates[i] = start.Add(time.Duration(i) * step)
	}

	scenes, err := localfs.New(*out).Generate(localfs.FixtureOptions{
		Bounds:        b,
		TilePixels:    *tilePixels,
		SARPixels:     *sarPixels,
		Acquisitions:  dates,
		Polarizations: requested,
		BurstID:       *burst,
		Seed:          *seed,
	})
	if err != nil {
		return err
	}

	tiles := geo.TilesFor(b)
	log.Printf("wrote %d DEM tiles and %d scenes (%d rasters) to %s", len(tiles), len(scenes), len(scenes)*len(requested), *out)
	for _, c := range scenes {
		log.Printf("  %s  %s", c.AcquiredAt.Format(time.DateOnly), c.ID)
	}
	return nil
}

// parseInterval accepts Go durations plus a whole-day suffix, e.g. 12d.
func parseInterval(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %s", s)
	}
	return d, nil
}
