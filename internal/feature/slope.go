package feature

import (
	"math"

	"github.com/couchcryptid/terrain-change-etl/internal/raster"
)

const (
	metresPerDegreeLat = 110574.0
	metresPerDegreeLon = 111320.0
)

// Slope returns terrain slope in degrees using Horn's 3x3 gradient. Edge
// cells reuse their nearest neighbour. Nodata cells, and cells next to one,
// get slope 0.
//
// For geographic rasters (EPSG 4000-4999, or 0) the pixel size is converted
// to metres at each row's latitude; otherwise it is used as-is.
func Slope(r *raster.Raster) raster.Grid {
	g := r.Grid
	out := raster.NewGrid(g.Rows, g.Cols)
	if g.Empty() {
		return out
	}
	t := r.Transform
	geographic := r.EPSG == 0 || (r.EPSG >= 4000 && r.EPSG < 5000)

	at := func(row, col int) float64 {
		return g.At(clamp(row, g.Rows), clamp(col, g.Cols))
	}
	for row := range g.Rows {
		dx, dy := math.Abs(t[1]), math.Abs(t[5])
		if geographic {
			lat := t[3] + (float64(row)+0.5)*t[5]
			dx *= metresPerDegreeLon * math.Cos(lat*math.Pi/180)
			dy *= metresPerDegreeLat
		}
		if dx == 0 || dy == 0 {
			continue
		}
	cells:
		for col := range g.Cols {
			var w [3][3]float64
			for i := range 3 {
				for j := range 3 {
					v := at(row+i-1, col+j-1)
					if r.IsNoData(v) {
						continue cells
					}
					w[i][j] = v
				}
			}
			gx := ((w[0][2] + 2*w[1][2] + w[2][2]) - (w[0][0] + 2*w[1][0] + w[2][0])) / (8 * dx)
			gy := ((w[2][0] + 2*w[2][1] + w[2][2]) - (w[0][0] + 2*w[0][1] + w[0][2])) / (8 * dy)
			out.Set(row, col, math.Atan(math.Hypot(gx, gy))*180/math.Pi)
		}
	}
	return out
}

func clamp(i, n int) int {
	return min(max(i, 0), n-1)
}
