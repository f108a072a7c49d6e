// Package raster holds the in-memory raster model and the tile mosaicker.
package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Grid is a dense row-major 2D array.
type Grid struct {
	Rows int
	Cols int
	Data []float64
}

// NewGrid allocates a zeroed grid.
func NewGrid(rows, cols int) Grid {
	return Grid{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// GridFrom wraps data without copying.
func GridFrom(rows, cols int, data []float64) (Grid, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return Grid{}, fmt.Errorf("grid %dx%d cannot hold %d values", rows, cols, len(data))
	}
	return Grid{Rows: rows, Cols: cols, Data: data}, nil
}

// Filled returns a grid with every cell set to v.
func Filled(rows, cols int, v float64) Grid {
	g := NewGrid(rows, cols)
	if v != 0 {
		for i := range g.Data {
			g.Data[i] = v
		}
	}
	return g
}

func (g Grid) At(r, c int) float64     { return g.Data[r*g.Cols+c] }
func (g Grid) Set(r, c int, v float64) { g.Data[r*g.Cols+c] = v }
func (g Grid) Len() int                { return g.Rows * g.Cols }
func (g Grid) Empty() bool             { return g.Rows == 0 || g.Cols == 0 }

// SameShape reports whether g and o have identical dimensions.
func (g Grid) SameShape(o Grid) bool { return g.Rows == o.Rows && g.Cols == o.Cols }

func (g Grid) Shape() string { return fmt.Sprintf("%dx%d", g.Rows, g.Cols) }

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	return Grid{Rows: g.Rows, Cols: g.Cols, Data: append([]float64(nil), g.Data...)}
}

// Crop copies the top-left rows x cols block. Dimensions larger than g are clamped.
func (g Grid) Crop(rows, cols int) Grid {
	rows, cols = min(rows, g.Rows), min(cols, g.Cols)
	if rows == g.Rows && cols == g.Cols {
		return g.Clone()
	}
	out := NewGrid(rows, cols)
	for r := range rows {
		copy(out.Data[r*cols:(r+1)*cols], g.Data[r*g.Cols:r*g.Cols+cols])
	}
	return out
}

// Stats summarises finite cells.
type Stats struct {
	Min, Max, Mean float64
	Valid          int
}

// Stats ignores NaN and infinite cells and the optional nodata value.
func (g Grid) Stats(nodata *float64) Stats {
	vals := make([]float64, 0, len(g.Data))
	for _, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) || (nodata != nil && v == *nodata) {
			continue
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return Stats{}
	}
	return Stats{
		Min:   floats.Min(vals),
		Max:   floats.Max(vals),
		Mean:  floats.Sum(vals) / float64(len(vals)),
		Valid: len(vals),
	}
}
