package feature

import (
	"math/rand/v2"

	"github.com/couchcryptid/terrain-change-etl/internal/raster"
)

// DefaultSeed keeps synthetic layers reproducible across runs.
const DefaultSeed = 42

// SyntheticSAR stands in for the three SAR-derived layers when no usable
// scene pair exists.
type SyntheticSAR struct {
	BackscatterChange raster.Grid
	RatioChange       raster.Grid
	Correlation       raster.Grid
}

// Synthetic draws uniform layers: backscatter change in [-5, 5) dB, ratio
// change in [-0.5, 0.5) and correlation in [0.1, 0.9).
func Synthetic(rows, cols int, seed uint64) SyntheticSAR {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	uniform := func(lo, hi float64) raster.Grid {
		g := raster.NewGrid(rows, cols)
		for i := range g.Data {
			g.Data[i] = lo + (hi-lo)*rng.Float64()
		}
		return g
	}
	return SyntheticSAR{
		BackscatterChange: uniform(-5, 5),
		RatioChange:       uniform(-0.5, 0.5),
		Correlation:       uniform(0.1, 0.9),
	}
}
