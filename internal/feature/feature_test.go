package feature

import (
	"bytes"
	"context"
	"math"
	"testing"

	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grid(t *testing.T, rows, cols int, vals ...float64) raster.Grid {
	t.Helper()
	g, err := raster.GridFrom(rows, cols, vals)
	require.NoError(t, err)
	return g
}

func ramp(rows, cols int, f func(r, c int) float64) raster.Grid {
	g := raster.NewGrid(rows, cols)
	for r := range rows {
		for c := range cols {
			g.Set(r, c, f(r, c))
		}
	}
	return g
}

func TestMatchShapes_CropsFromOrigin(t *testing.T) {
	a := grid(t, 2, 3, 1, 2, 3, 4, 5, 6)
	b := grid(t, 3, 2, 10, 20, 30, 40, 50, 60)

	ma, mb := MatchShapes(a, b)
	assert.Equal(t, []float64{1, 2, 4, 5}, ma.Data)
	assert.Equal(t, []float64{10, 20, 30, 40}, mb.Data)
	assert.True(t, ma.SameShape(mb))
}

func TestMatchShapes_Idempotent(t *testing.T) {
	a := ramp(7, 4, func(r, c int) float64 { return float64(r*10 + c) })
	b := ramp(5, 9, func(r, c int) float64 { return float64(r - c) })

	a1, b1 := MatchShapes(a, b)
	a2, b2 := MatchShapes(a1, b1)
	assert.Equal(t, a1, a2)
	assert.Equal(t, b1, b2)
}

func TestMatchAll(t *testing.T) {
	out := MatchAll(raster.NewGrid(4, 4), raster.NewGrid(3, 5), raster.NewGrid(6, 2))
	for _, g := range out {
		assert.Equal(t, 3, g.Rows)
		assert.Equal(t, 2, g.Cols)
	}
	assert.Nil(t, MatchAll())
}

func TestToDB_InverseRecoversPositiveInput(t *testing.T) {
	g := grid(t, 1, 5, 1e-3, 0.05, 1, 12.5, 1e4)
	back := FromDB(ToDB(g))
	for i, v := range g.Data {
		assert.InEpsilon(t, v, back.Data[i], 1e-12)
	}
}

func TestToDB_ClampsNonPositive(t *testing.T) {
	db := ToDB(grid(t, 1, 3, 0, -4, 1))
	assert.Equal(t, -100.0, db.Data[0])
	assert.Equal(t, -100.0, db.Data[1])
	assert.Equal(t, 0.0, db.Data[2])
}

func TestBackscatterChange_AveragesPolarizations(t *testing.T) {
	pairs := map[scene.Polarization]Pair{
		scene.VV: {Before: grid(t, 1, 2, 1, 1), After: grid(t, 1, 2, 10, 100)},
		scene.VH: {Before: grid(t, 1, 2, 1, 1), After: grid(t, 1, 2, 1, 10)},
	}
	change, err := BackscatterChange(pairs)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, change.Data[0], 1e-12)
	assert.InDelta(t, 15.0, change.Data[1], 1e-12)
}

func TestBackscatterChange_ShapeMismatch(t *testing.T) {
	_, err := BackscatterChange(map[scene.Polarization]Pair{
		scene.VV: {Before: raster.NewGrid(2, 2), After: raster.NewGrid(2, 3)},
	})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = BackscatterChange(nil)
	assert.ErrorIs(t, err, ErrMissingChannel)
}

func TestRatioChange_FloorsNonPositiveDenominator(t *testing.T) {
	before := map[scene.Polarization]raster.Grid{
		scene.VV: grid(t, 1, 3, 2, 0, -1),
		scene.VH: grid(t, 1, 3, 1, 1, 0),
	}
	after := map[scene.Polarization]raster.Grid{
		scene.VV: grid(t, 1, 3, 4, 1, 1),
		scene.VH: grid(t, 1, 3, 4, 0, 0),
	}
	change, err := RatioChange(before, after)
	require.NoError(t, err)

	assert.InDelta(t, 1-0.5, change.Data[0], 1e-12)
	assert.InDelta(t, 0-1/Epsilon, change.Data[1], 1)
	assert.Equal(t, 0.0, change.Data[2])
	for _, v := range change.Data {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
}

func TestRatioChange_FallsBackToHH(t *testing.T) {
	before := map[scene.Polarization]raster.Grid{scene.HH: grid(t, 1, 1, 2), scene.HV: grid(t, 1, 1, 1)}
	after := map[scene.Polarization]raster.Grid{scene.HH: grid(t, 1, 1, 1), scene.HV: grid(t, 1, 1, 1)}
	change, err := RatioChange(before, after)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, change.Data[0], 1e-12)

	_, err = RatioChange(map[scene.Polarization]raster.Grid{scene.VV: grid(t, 1, 1, 1)}, after)
	assert.ErrorIs(t, err, ErrMissingChannel)
}

func TestReflect_MatchesMirrorPadding(t *testing.T) {
	// Mirror padding of [0 1 2 3] by 3: 3 2 1 | 0 1 2 3 | 2 1 0
	var got []int
	for i := -3; i < 7; i++ {
		got = append(got, reflect(i, 4))
	}
	assert.Equal(t, []int{3, 2, 1, 0, 1, 2, 3, 2, 1, 0}, got)
	assert.Equal(t, 0, reflect(-5, 1))
}

func TestCorrelate_SelfIsOne(t *testing.T) {
	a := ramp(37, 29, func(r, c int) float64 { return math.Sin(float64(r)*0.7) + math.Cos(float64(c)*0.3) + float64(r*c)*0.01 })

	corr, err := Correlator{Window: 5, TileSize: 8, Workers: 3}.Correlate(context.Background(), a, a)
	require.NoError(t, err)
	require.True(t, corr.SameShape(a))
	for _, v := range corr.Data {
		assert.InDelta(t, 1.0, v, 1e-9)
	}
}

func TestCorrelate_ConstantWindowsAreZero(t *testing.T) {
	a := raster.Filled(12, 12, 0.1)
	corr, err := Correlator{Window: 3}.Correlate(context.Background(), a, a)
	require.NoError(t, err)
	for _, v := range corr.Data {
		assert.Equal(t, 0.0, v)
	}
}

func TestCorrelate_SmallVariationOnLargeOffset(t *testing.T) {
	a := raster.NewGrid(9, 9)
	for i := range a.Data {
		a.Data[i] = 1e6 + 1e-5*float64(i%7)
	}
	corr, err := Correlator{Window: 5}.Correlate(context.Background(), a, a)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr.At(4, 4), 1e-6)
}

func TestCorrelate_ConstantLargeOffsetIsZero(t *testing.T) {
	a := raster.Filled(9, 9, 1e6+0.1)
	corr, err := Correlator{Window: 5}.Correlate(context.Background(), a, a)
	require.NoError(t, err)
	for _, v := range corr.Data {
		assert.Equal(t, 0.0, v)
	}
}

func TestCorrelate_AntiCorrelated(t *testing.T) {
	a := ramp(10, 10, func(r, c int) float64 { return float64(r + 2*c) })
	b := ramp(10, 10, func(r, c int) float64 { return -3 * float64(r+2*c) })

	corr, err := Correlator{Window: 4}.Correlate(context.Background(), a, b)
	require.NoError(t, err)
	for _, v := range corr.Data {
		assert.InDelta(t, -1.0, v, 1e-9)
	}
}

func TestCorrelate_TilingDoesNotChangeResult(t *testing.T) {
	a := ramp(40, 33, func(r, c int) float64 { return math.Sin(float64(r*c) * 0.05) })
	b := ramp(40, 33, func(r, c int) float64 { return math.Cos(float64(r+c) * 0.2) })

	whole, err := Correlator{Window: 7, TileSize: 1000, Workers: 1}.Correlate(context.Background(), a, b)
	require.NoError(t, err)
	tiled, err := Correlator{Window: 7, TileSize: 6, Workers: 4}.Correlate(context.Background(), a, b)
	require.NoError(t, err)

	for i := range whole.Data {
		assert.InDelta(t, whole.Data[i], tiled.Data[i], 1e-12)
	}
}

func TestCorrelate_WindowLargerThanRaster(t *testing.T) {
	a := ramp(3, 2, func(r, c int) float64 { return float64(r*2 + c) })
	corr, err := Correlator{Window: 11}.Correlate(context.Background(), a, a)
	require.NoError(t, err)
	for _, v := range corr.Data {
		assert.InDelta(t, 1.0, v, 1e-9)
	}
}

func TestCorrelate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Correlator{TileSize: 2}.Correlate(ctx, raster.NewGrid(8, 8), raster.NewGrid(8, 8))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorrelate_ShapeMismatch(t *testing.T) {
	_, err := Correlator{}.Correlate(context.Background(), raster.NewGrid(2, 2), raster.NewGrid(3, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestAssembleTable(t *testing.T) {
	slope := grid(t, 2, 2, 10, 20, 30, 40)
	bsc := grid(t, 2, 2, math.NaN(), 1, 2, 3)
	corr := grid(t, 2, 2, 0.5, 0.6, 0.7, 0.8)
	ratio := grid(t, 2, 2, 0.1, math.Inf(1), 0.3, 0.4)

	table, err := AssembleTable(slope, bsc, corr, ratio)
	require.NoError(t, err)

	assert.Equal(t, 4, table.Len())
	assert.Equal(t, slope.Rows*slope.Cols, table.Len())
	assert.Equal(t, [4]float64{10, 0, 0.5, 0.1}, table.Row(0))
	assert.Equal(t, [4]float64{20, 1, 0.6, 0}, table.Row(1))

	col, ok := table.Column(ColRatioChange)
	require.True(t, ok)
	for _, v := range col {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
	}
	assert.True(t, math.IsNaN(bsc.Data[0]), "inputs are not modified")
}

func TestAssembleTable_ShapeMismatch(t *testing.T) {
	_, err := AssembleTable(raster.NewGrid(2, 2), raster.NewGrid(2, 2), raster.NewGrid(2, 3), raster.NewGrid(2, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), ColCorrelation)
}

func TestTable_CSVRoundTrip(t *testing.T) {
	table, err := AssembleTable(grid(t, 1, 2, 1, 2), grid(t, 1, 2, 3, 4), grid(t, 1, 2, 0.25, 0.5), grid(t, 1, 2, -1, 1e-7))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))
	assert.Contains(t, buf.String(), "slope,backscatter_change,correlation,ratio_change\n")

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, table.Slope, back.Slope)
	assert.Equal(t, table.RatioChange, back.RatioChange)
}

func TestSynthetic_RangesAndDeterminism(t *testing.T) {
	s1 := Synthetic(20, 30, DefaultSeed)
	s2 := Synthetic(20, 30, DefaultSeed)
	assert.Equal(t, s1, s2)

	for i := range s1.Correlation.Data {
		assert.GreaterOrEqual(t, s1.BackscatterChange.Data[i], -5.0)
		assert.Less(t, s1.BackscatterChange.Data[i], 5.0)
		assert.GreaterOrEqual(t, s1.RatioChange.Data[i], -0.5)
		assert.Less(t, s1.RatioChange.Data[i], 0.5)
		assert.GreaterOrEqual(t, s1.Correlation.Data[i], 0.1)
		assert.Less(t, s1.Correlation.Data[i], 0.9)
	}
	assert.NotEqual(t, s1, Synthetic(20, 30, 7))
}

func TestSlope_FlatIsZero(t *testing.T) {
	r := &raster.Raster{Grid: raster.Filled(5, 5, 1200), Transform: raster.GeoTransform{0, 30, 0, 0, 0, -30}, EPSG: 32643}
	s := Slope(r)
	for _, v := range s.Data {
		assert.Zero(t, v)
	}
}

func TestSlope_UniformIncline(t *testing.T) {
	// Rises 30 m per 30 m pixel eastwards: 45 degrees.
	g := ramp(5, 5, func(_, c int) float64 { return float64(c) * 30 })
	r := &raster.Raster{Grid: g, Transform: raster.GeoTransform{0, 30, 0, 0, 0, -30}, EPSG: 32643}

	s := Slope(r)
	assert.InDelta(t, 45.0, s.At(2, 2), 1e-9)
	// Edge columns see half the gradient.
	assert.Less(t, s.At(2, 0), 45.0)
}

func TestSlope_NoDataNeighbourIsZero(t *testing.T) {
	nodata := -9999.0
	g := ramp(4, 4, func(r, c int) float64 { return float64(r*c) * 100 })
	g.Set(1, 1, nodata)
	r := &raster.Raster{Grid: g, Transform: raster.GeoTransform{0, 30, 0, 0, 0, -30}, NoData: &nodata, EPSG: 32643}

	s := Slope(r)
	assert.Zero(t, s.At(0, 0))
	assert.Zero(t, s.At(2, 2))
	assert.NotZero(t, s.At(3, 3))
}
