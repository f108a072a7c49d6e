package feature

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/couchcryptid/terrain-change-etl/internal/raster"
)

// Column names, in table order.
const (
	ColSlope             = "slope"
	ColBackscatterChange = "backscatter_change"
	ColCorrelation       = "correlation"
	ColRatioChange       = "ratio_change"
)

// Columns lists the table columns in order.
var Columns = []string{ColSlope, ColBackscatterChange, ColCorrelation, ColRatioChange}

// Table holds one row per pixel of the common raster shape, row-major.
type Table struct {
	Rows int // raster rows
	Cols int // raster columns

	Slope             []float64
	BackscatterChange []float64
	Correlation       []float64
	RatioChange       []float64
}

// Len is the number of table rows, Rows*Cols.
func (t *Table) Len() int { return len(t.Slope) }

// Column returns a column by name.
func (t *Table) Column(name string) ([]float64, bool) {
	switch name {
	case ColSlope:
		return t.Slope, true
	case ColBackscatterChange:
		return t.BackscatterChange, true
	case ColCorrelation:
		return t.Correlation, true
	case ColRatioChange:
		return t.RatioChange, true
	}
	return nil, false
}

// Row returns the four features of row i in column order.
func (t *Table) Row(i int) [4]float64 {
	return [4]float64{t.Slope[i], t.BackscatterChange[i], t.Correlation[i], t.RatioChange[i]}
}

// AssembleTable flattens four equally shaped grids. NaN and infinite values
// become 0.
func AssembleTable(slope, backscatter, correlation, ratio raster.Grid) (*Table, error) {
	named := []struct {
		name string
		g    raster.Grid
	}{
		{ColSlope, slope},
		{ColBackscatterChange, backscatter},
		{ColCorrelation, correlation},
		{ColRatioChange, ratio},
	}
	for _, n := range named[1:] {
		if !n.g.SameShape(slope) {
			return nil, fmt.Errorf("%w: %s is %s, slope is %s", ErrShapeMismatch, n.name, n.g.Shape(), slope.Shape())
		}
	}
	return &Table{
		Rows:              slope.Rows,
		Cols:              slope.Cols,
		Slope:             finite(slope.Data),
		BackscatterChange: finite(backscatter.Data),
		Correlation:       finite(correlation.Data),
		RatioChange:       finite(ratio.Data),
	}, nil
}

func finite(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[i] = v
		}
	}
	return out
}

// WriteCSV writes a header row followed by one line per table row.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	rec := make([]string, len(Columns))
	for i := range t.Len() {
		for j, v := range t.Row(i) {
			rec[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a table written by WriteCSV. The raster shape is not stored,
// so the result has Rows=Len() and Cols=1.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Columns)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i, name := range Columns {
		if header[i] != name {
			return nil, fmt.Errorf("column %d is %q, want %q", i, header[i], name)
		}
	}

	t := &Table{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var row [4]float64
		for j, s := range rec {
			if row[j], err = strconv.ParseFloat(s, 64); err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, Columns[j], err)
			}
		}
		t.Slope = append(t.Slope, row[0])
		t.BackscatterChange = append(t.BackscatterChange, row[1])
		t.Correlation = append(t.Correlation, row[2])
		t.RatioChange = append(t.RatioChange, row[3])
	}
	t.Rows, t.Cols = t.Len(), 1
	return t, nil
}
