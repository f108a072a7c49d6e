package feature

import (
	"fmt"
	"math"
	"slices"

	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"gonum.org/v1/gonum/floats"
)

// Epsilon floors linear intensities before log and division.
const Epsilon = 1e-10

// Pair is one polarization observed before and after.
type Pair struct {
	Before raster.Grid
	After  raster.Grid
}

// ToDB converts linear intensity to decibels, flooring at Epsilon.
func ToDB(g raster.Grid) raster.Grid {
	out := raster.NewGrid(g.Rows, g.Cols)
	for i, v := range g.Data {
		out.Data[i] = 10 * math.Log10(math.Max(v, Epsilon))
	}
	return out
}

// FromDB inverts ToDB.
func FromDB(g raster.Grid) raster.Grid {
	out := raster.NewGrid(g.Rows, g.Cols)
	for i, v := range g.Data {
		out.Data[i] = math.Pow(10, v/10)
	}
	return out
}

// BackscatterChange returns after-minus-before in dB, averaged over every
// polarization present. All grids must share one shape.
func BackscatterChange(pairs map[scene.Polarization]Pair) (raster.Grid, error) {
	if len(pairs) == 0 {
		return raster.Grid{}, fmt.Errorf("backscatter change: %w: no polarizations", ErrMissingChannel)
	}
	pols := make([]scene.Polarization, 0, len(pairs))
	for p := range pairs {
		pols = append(pols, p)
	}
	slices.Sort(pols)

	ref := pairs[pols[0]].Before
	sum := make([]float64, ref.Len())
	diff := make([]float64, ref.Len())
	for _, p := range pols {
		pair := pairs[p]
		if !pair.Before.SameShape(ref) || !pair.After.SameShape(ref) {
			return raster.Grid{}, fmt.Errorf("%w: %s before %s after %s, want %s",
				ErrShapeMismatch, p, pair.Before.Shape(), pair.After.Shape(), ref.Shape())
		}
		floats.SubTo(diff, ToDB(pair.After).Data, ToDB(pair.Before).Data)
		floats.Add(sum, diff)
	}
	floats.Scale(1/float64(len(pols)), sum)
	return raster.Grid{Rows: ref.Rows, Cols: ref.Cols, Data: sum}, nil
}

// Ratio returns cross/co for one acquisition. Non-positive co-pol values are
// floored to Epsilon so the quotient stays finite.
func Ratio(cross, co raster.Grid) (raster.Grid, error) {
	if !cross.SameShape(co) {
		return raster.Grid{}, fmt.Errorf("%w: cross %s co %s", ErrShapeMismatch, cross.Shape(), co.Shape())
	}
	out := raster.NewGrid(co.Rows, co.Cols)
	for i, c := range co.Data {
		if c <= 0 {
			c = Epsilon
		}
		out.Data[i] = cross.Data[i] / c
	}
	return out, nil
}

// RatioChange computes VH/VV after minus VH/VV before, falling back to HV/HH
// when the VV/VH pair is not available.
func RatioChange(before, after map[scene.Polarization]raster.Grid) (raster.Grid, error) {
	for _, co := range []scene.Polarization{scene.VV, scene.HH} {
		cross, _ := co.CrossPol()
		cb, okCB := before[co]
		xb, okXB := before[cross]
		ca, okCA := after[co]
		xa, okXA := after[cross]
		if !okCB || !okXB || !okCA || !okXA {
			continue
		}
		rb, err := Ratio(xb, cb)
		if err != nil {
			return raster.Grid{}, fmt.Errorf("ratio before: %w", err)
		}
		ra, err := Ratio(xa, ca)
		if err != nil {
			return raster.Grid{}, fmt.Errorf("ratio after: %w", err)
		}
		if !ra.SameShape(rb) {
			return raster.Grid{}, fmt.Errorf("%w: ratio before %s after %s", ErrShapeMismatch, rb.Shape(), ra.Shape())
		}
		floats.Sub(ra.Data, rb.Data)
		return ra, nil
	}
	return raster.Grid{}, fmt.Errorf("ratio change: %w: need VV+VH or HH+HV at both times", ErrMissingChannel)
}
