// Command validate checks the artifacts of one analysis for internal
// consistency: the feature table, the merged elevation raster and the result
// summary must agree on shape, row count and risk statistics.
//
// Usage:
//
//	go run ./cmd/validate -dir artifacts/req-123
//	go run ./cmd/validate -dir artifacts/req-123 -heuristic
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/couchcryptid/terrain-change-etl/internal/adapter/artifact"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/riskmodel"
	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/feature"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// bundle is one analysis's artifacts as loaded from disk.
type bundle struct {
	summary   *domain.AnalysisResult
	table     *feature.Table
	elevation *raster.Raster
}

func main() {
	dir := flag.String("dir", "", "artifact directory of one request ({root}/{request_id})")
	heuristic := flag.Bool("heuristic", false, "recompute risk statistics with the heuristic scorer")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(1)
	}
	os.Exit(run(*dir, *heuristic))
}

func run(dir string, heuristic bool) int {
	fmt.Println("=== Analysis Artifact Validation ===")
	fmt.Println()

	b, err := load(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateTable(b),
		validateElevation(b),
		validateSummary(b),
	}
	if heuristic {
		phases = append(phases, validateRisk(b))
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Request %s: %d feature rows, SAR %s, elevation %s\n",
		b.summary.RequestID, b.table.Len(), b.summary.SARSource, b.summary.Elevation.Source)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Loading ──

func load(dir string) (*bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, artifact.SummaryObject))
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var summary domain.AnalysisResult
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}

	f, err := os.Open(filepath.Join(dir, artifact.FeaturesObject))
	if err != nil {
		return nil, fmt.Errorf("read features: %w", err)
	}
	defer f.Close()
	table, err := feature.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}

	b := &bundle{summary: &summary, table: table}
	elevPath := filepath.Join(dir, artifact.ElevationObject)
	if _, err := os.Stat(elevPath); err == nil {
		h := raster.NewFileHandle(artifact.ElevationObject, elevPath, nil)
		b.elevation, err = h.Read()
		if err != nil {
			return nil, fmt.Errorf("decode elevation: %w", err)
		}
	}
	return b, nil
}

// ── Phases ──

func validateTable(b *bundle) *phase {
	p := &phase{name: "Feature table integrity"}
	for _, name := range feature.Columns {
		col, ok := b.table.Column(name)
		if !ok {
			p.errorf("column %s missing", name)
			continue
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				p.errorf("column %s row %d: non-finite value %v", name, i, v)
				break
			}
		}
	}
	corr, _ := b.table.Column(feature.ColCorrelation)
	for i, v := range corr {
		if v < -1-1e-6 || v > 1+1e-6 {
			p.errorf("correlation row %d out of [-1, 1]: %v", i, v)
			break
		}
	}
	slope, _ := b.table.Column(feature.ColSlope)
	for i, v := range slope {
		if v < 0 || v > 90 {
			p.errorf("slope row %d out of [0, 90] degrees: %v", i, v)
			break
		}
	}
	return p
}

func validateElevation(b *bundle) *phase {
	p := &phase{name: "Elevation raster consistency"}
	s := b.summary
	switch s.Elevation.Source {
	case domain.ElevationMissing:
		if b.elevation != nil {
			p.errorf("summary reports no elevation but %s exists", artifact.ElevationObject)
		}
		return p
	case domain.ElevationMosaic:
	default:
		p.errorf("unknown elevation source %q", s.Elevation.Source)
		return p
	}

	if b.elevation == nil {
		p.errorf("summary reports a mosaic but %s is missing", artifact.ElevationObject)
		return p
	}
	if s.Elevation.Profile == nil {
		p.errorf("summary carries no elevation profile")
		return p
	}
	prof := s.Elevation.Profile
	if prof.Width != b.elevation.Grid.Cols || prof.Height != b.elevation.Grid.Rows {
		p.errorf("profile %dx%d, raster %s", prof.Height, prof.Width, b.elevation.Grid.Shape())
	}
	for i := range prof.Transform {
		if math.Abs(prof.Transform[i]-b.elevation.Transform[i]) > 1e-9 {
			p.errorf("transform[%d]: profile %v, raster %v", i, prof.Transform[i], b.elevation.Transform[i])
		}
	}
	if west := b.elevation.Transform[0]; math.Abs(west-s.Bounds.West) > 1e-6 {
		p.errorf("raster origin x %v does not match bounds west %v", west, s.Bounds.West)
	}
	if north := b.elevation.Transform[3]; math.Abs(north-s.Bounds.North) > 1e-6 {
		p.errorf("raster origin y %v does not match bounds north %v", north, s.Bounds.North)
	}
	st := b.elevation.Grid.Stats(b.elevation.NoData)
	// The raster is stored as float32.
	if math.Abs(st.Mean-s.Elevation.Mean) > 1e-3*math.Max(1, math.Abs(s.Elevation.Mean)) {
		p.errorf("raster mean %v, summary mean %v", st.Mean, s.Elevation.Mean)
	}
	if b.table.Rows > b.elevation.Grid.Rows || b.table.Cols > b.elevation.Grid.Cols {
		p.errorf("feature grid %dx%d exceeds elevation %s", b.table.Rows, b.table.Cols, b.elevation.Grid.Shape())
	}
	return p
}

func validateSummary(b *bundle) *phase {
	p := &phase{name: "Summary consistency"}
	s := b.summary
	if s.Status != domain.StatusSucceeded {
		p.errorf("status %q, want %q", s.Status, domain.StatusSucceeded)
	}
	if s.Rows != b.table.Len() {
		p.errorf("summary rows %d, table rows %d", s.Rows, b.table.Len())
	}
	if s.Shape != [2]int{b.table.Rows, b.table.Cols} {
		p.errorf("summary shape %v, table %dx%d", s.Shape, b.table.Rows, b.table.Cols)
	}
	if !slices.Equal(s.Columns, feature.Columns) {
		p.errorf("summary columns %v, want %v", s.Columns, feature.Columns)
	}
	if s.SARSource != domain.SARObserved && s.SARSource != domain.SARSynthetic {
		p.errorf("unknown sar_source %q", s.SARSource)
	}
	if s.SARSource == domain.SARObserved && (s.Before == nil || s.After == nil) {
		p.errorf("observed SAR without a before/after scene pair")
	}
	if s.Before != nil && s.After != nil && s.After.AcquiredAt.Before(s.Before.AcquiredAt) {
		p.errorf("after scene %s precedes before scene %s", s.After.ID, s.Before.ID)
	}
	for _, id := range s.TilesUsed {
		if !slices.Contains(s.Tiles, id) {
			p.errorf("tile %s used but not planned", id)
		}
	}
	if r := s.Risk; r != nil {
		if r.TotalPixels != b.table.Len() {
			p.errorf("risk total pixels %d, table rows %d", r.TotalPixels, b.table.Len())
		}
		d := r.Distribution
		if d.Low+d.Moderate+d.High != r.TotalPixels {
			p.errorf("risk distribution %d+%d+%d != %d", d.Low, d.Moderate, d.High, r.TotalPixels)
		}
		if r.Level != domain.LevelFor(r.MaxProbability) {
			p.errorf("risk level %s inconsistent with max probability %v", r.Level, r.MaxProbability)
		}
	}
	return p
}

func validateRisk(b *bundle) *phase {
	p := &phase{name: "Heuristic risk recomputation"}
	if b.summary.Risk == nil {
		p.errorf("summary carries no risk section")
		return p
	}
	probs, err := riskmodel.Heuristic{}.Predict(context.Background(), b.table)
	if err != nil {
		p.errorf("heuristic: %v", err)
		return p
	}
	var transform *raster.GeoTransform
	if b.elevation != nil {
		transform = &b.elevation.Transform
	}
	got, err := domain.Summarize(probs, b.table, transform)
	if err != nil {
		p.errorf("summarize: %v", err)
		return p
	}
	want := b.summary.Risk
	// Features round-trip through CSV, so allow for formatting precision.
	if math.Abs(got.MaxProbability-want.MaxProbability) > 1e-6 {
		p.errorf("max probability: recomputed %v, summary %v", got.MaxProbability, want.MaxProbability)
	}
	if math.Abs(got.MeanProbability-want.MeanProbability) > 1e-6 {
		p.errorf("mean probability: recomputed %v, summary %v", got.MeanProbability, want.MeanProbability)
	}
	if got.Level != want.Level {
		p.errorf("level: recomputed %s, summary %s", got.Level, want.Level)
	}
	return p
}
