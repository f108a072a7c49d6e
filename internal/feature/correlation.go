package feature

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWindow   = 11
	DefaultTileSize = 256
)

// noiseFloor is the largest centred energy over n samples that mean
// subtraction can leave behind on a constant window of magnitude |mean|.
// The per-sample bound n*eps*|mean| covers the worst-case error of the
// summed mean.
func noiseFloor(mean, n float64) float64 {
	tol := n * 0x1p-52 * math.Abs(mean)
	return n * tol * tol
}

// Correlator computes a windowed normalised cross-correlation map.
type Correlator struct {
	// Window is the side of the square window; even values are bumped to the next odd.
	Window int
	// TileSize bounds the working set: each worker holds one tile plus its halo.
	TileSize int
	// Workers caps concurrently processed tiles. Zero means GOMAXPROCS.
	Workers int
}

func (c Correlator) params() (window, tile, workers int) {
	window, tile, workers = c.Window, c.TileSize, c.Workers
	if window <= 0 {
		window = DefaultWindow
	}
	if window%2 == 0 {
		window++
	}
	if tile <= 0 {
		tile = DefaultTileSize
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return window, tile, workers
}

// Correlate returns, for every pixel, the Pearson correlation of a and b over
// the window centred on it. Edges are handled by mirror reflection without
// repeating the edge pixel. Windows where either input is constant yield 0;
// a window counts as constant when its centred energy is within the rounding
// error of its mean (see noiseFloor), independent of how large the mean is.
//
// The raster is split into fixed-size tiles that are computed concurrently;
// each tile writes only its own region of the output.
func (c Correlator) Correlate(ctx context.Context, a, b raster.Grid) (raster.Grid, error) {
	if !a.SameShape(b) {
		return raster.Grid{}, fmt.Errorf("correlation: %w: %s vs %s", ErrShapeMismatch, a.Shape(), b.Shape())
	}
	out := raster.NewGrid(a.Rows, a.Cols)
	if a.Empty() {
		return out, nil
	}
	window, tile, workers := c.params()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for r0 := 0; r0 < a.Rows; r0 += tile {
		for c0 := 0; c0 < a.Cols; c0 += tile {
			r1, c1 := min(r0+tile, a.Rows), min(c0+tile, a.Cols)
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				correlateTile(a, b, out, window, r0, r1, c0, c1)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return raster.Grid{}, fmt.Errorf("correlation: %w", err)
	}
	return out, nil
}

// correlateTile fills out[r0:r1, c0:c1].
func correlateTile(a, b, out raster.Grid, window, r0, r1, c0, c1 int) {
	half := window / 2
	hr, hc := r1-r0+2*half, c1-c0+2*half
	pa := halo(a, r0-half, c0-half, hr, hc)
	pb := halo(b, r0-half, c0-half, hr, hc)

	n := float64(window * window)
	for i := 0; i < r1-r0; i++ {
		for j := 0; j < c1-c0; j++ {
			var sa, sb float64
			for y := i; y < i+window; y++ {
				row := y * hc
				for x := j; x < j+window; x++ {
					sa += pa[row+x]
					sb += pb[row+x]
				}
			}
			ma, mb := sa/n, sb/n

			var sab, saa, sbb float64
			for y := i; y < i+window; y++ {
				row := y * hc
				for x := j; x < j+window; x++ {
					da, db := pa[row+x]-ma, pb[row+x]-mb
					sab += da * db
					saa += da * da
					sbb += db * db
				}
			}

			v := 0.0
			if saa > noiseFloor(ma, n) && sbb > noiseFloor(mb, n) {
				v = sab / math.Sqrt(saa*sbb)
			}
			out.Data[(r0+i)*out.Cols+c0+j] = v
		}
	}
}

// halo copies an rows x cols block of g starting at (r0, c0), which may lie
// outside g; out-of-range indices are mirrored back into range.
func halo(g raster.Grid, r0, c0, rows, cols int) []float64 {
	colIdx := make([]int, cols)
	for x := range colIdx {
		colIdx[x] = reflect(c0+x, g.Cols)
	}
	buf := make([]float64, rows*cols)
	for y := range rows {
		src := g.Data[reflect(r0+y, g.Rows)*g.Cols:]
		dst := buf[y*cols : (y+1)*cols]
		for x, sx := range colIdx {
			dst[x] = src[sx]
		}
	}
	return buf
}

// reflect maps i onto [0, n) by mirroring about the first and last index
// without repeating them: for n=4, -1 -> 1, 4 -> 2, 6 -> 0.
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
