package raster

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/couchcryptid/terrain-change-etl/internal/geo"
)

// precision is the number of decimals the clip extent and pixel lookups are
// rounded to so adjacent tiles meet without gaps or double rows.
const precision = 7

var (
	// ErrNoValidSources is returned when there is nothing to merge.
	ErrNoValidSources = errors.New("no valid raster sources")
	// ErrMergeFailed matches every *MergeError.
	ErrMergeFailed = errors.New("raster merge failed")
)

// MergeError reports the source that broke a mosaic.
type MergeError struct {
	Source string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge source %s: %v", e.Source, e.Err)
}

func (e *MergeError) Unwrap() []error { return []error{ErrMergeFailed, e.Err} }

// Mosaicker merges overlapping single-band rasters into one clipped grid.
type Mosaicker struct {
	logger *slog.Logger
}

// NewMosaicker creates a Mosaicker that logs handle release failures.
func NewMosaicker(logger *slog.Logger) *Mosaicker {
	return &Mosaicker{logger: logger}
}

// Mosaic reads every source and resamples it onto a grid at the finest source
// resolution covering clip exactly. Sources are applied in order and a later
// source overwrites earlier ones wherever it has a valid pixel. Cells no source
// covers hold the first source's nodata value, or 0 when it has none.
//
// All handles are closed before Mosaic returns, whatever the outcome.
func (m *Mosaicker) Mosaic(sources []Handle, clip geo.BoundingBox) (*Raster, error) {
	defer m.closeAll(sources)

	if len(sources) == 0 {
		return nil, ErrNoValidSources
	}

	rasters := make([]*Raster, 0, len(sources))
	for _, src := range sources {
		r, err := src.Read()
		if err != nil {
			return nil, &MergeError{Source: src.Name(), Err: err}
		}
		if !r.Transform.NorthUp() {
			return nil, &MergeError{Source: src.Name(), Err: fmt.Errorf("unsupported transform %v", r.Transform)}
		}
		if r.Grid.Empty() {
			return nil, &MergeError{Source: src.Name(), Err: errors.New("raster is empty")}
		}
		rasters = append(rasters, r)
	}

	resX, resY := math.Inf(1), math.Inf(1)
	for _, r := range rasters {
		resX = math.Min(resX, r.Transform[1])
		resY = math.Min(resY, -r.Transform[5])
	}

	west, north := round(clip.West), round(clip.North)
	cols := int(math.Round(round((round(clip.East) - west) / resX)))
	rows := int(math.Round(round((north - round(clip.South)) / resY)))
	if cols < 1 || rows < 1 {
		return nil, &MergeError{Source: "clip", Err: fmt.Errorf("bounds %s smaller than one pixel", clip)}
	}

	first := rasters[0]
	fill := 0.0
	if first.NoData != nil {
		fill = *first.NoData
	}
	out := &Raster{
		Grid:        Filled(rows, cols, fill),
		Transform:   GeoTransform{west, resX, 0, north, 0, -resY},
		NoData:      first.NoData,
		EPSG:        first.EPSG,
		Driver:      "GTiff",
		Compression: "lzw",
	}

	for _, r := range rasters {
		paint(out, r)
	}
	return out, nil
}

// paint writes every valid pixel of src that lands on dst.
func paint(dst, src *Raster) {
	dt, st := dst.Transform, src.Transform

	colMap := make([]int, dst.Grid.Cols)
	for c := range colMap {
		x := dt[0] + (float64(c)+0.5)*dt[1]
		colMap[c] = index((x-st[0])/st[1], src.Grid.Cols)
	}

	for r := range dst.Grid.Rows {
		y := dt[3] + (float64(r)+0.5)*dt[5]
		sr := index((y-st[3])/st[5], src.Grid.Rows)
		if sr < 0 {
			continue
		}
		srcRow := src.Grid.Data[sr*src.Grid.Cols : (sr+1)*src.Grid.Cols]
		dstRow := dst.Grid.Data[r*dst.Grid.Cols : (r+1)*dst.Grid.Cols]
		for c, sc := range colMap {
			if sc < 0 {
				continue
			}
			if v := srcRow[sc]; !src.IsNoData(v) {
				dstRow[c] = v
			}
		}
	}
}

// index converts a fractional pixel coordinate to a cell index, or -1 when it
// falls outside [0, n).
func index(f float64, n int) int {
	i := int(math.Floor(round(f)))
	if i < 0 || i >= n {
		return -1
	}
	return i
}

func round(v float64) float64 {
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}

func (m *Mosaicker) closeAll(sources []Handle) {
	for _, src := range sources {
		if err := src.Close(); err != nil {
			m.logger.Warn("release raster source failed", "source", src.Name(), "error", err)
		}
	}
}
