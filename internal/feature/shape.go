package feature

import "github.com/couchcryptid/terrain-change-etl/internal/raster"

// MatchShapes crops a and b from the top-left corner to their common extent.
// It never resamples, so pixel (0,0) stays aligned in both outputs.
func MatchShapes(a, b raster.Grid) (raster.Grid, raster.Grid) {
	rows, cols := min(a.Rows, b.Rows), min(a.Cols, b.Cols)
	return a.Crop(rows, cols), b.Crop(rows, cols)
}

// MatchAll crops every grid to the smallest extent among them.
func MatchAll(grids ...raster.Grid) []raster.Grid {
	if len(grids) == 0 {
		return nil
	}
	rows, cols := grids[0].Rows, grids[0].Cols
	for _, g := range grids[1:] {
		rows, cols = min(rows, g.Rows), min(cols, g.Cols)
	}
	out := make([]raster.Grid, len(grids))
	for i, g := range grids {
		out[i] = g.Crop(rows, cols)
	}
	return out
}
