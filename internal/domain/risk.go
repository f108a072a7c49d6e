package domain

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/terrain-change-etl/internal/feature"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Risk levels.
const (
	RiskHigh     = "HIGH"
	RiskModerate = "MODERATE"
	RiskLow      = "LOW"
)

const (
	highRiskThreshold = 0.7
	lowRiskThreshold  = 0.3

	// Rule-based landslide candidate: decorrelated surface on steep terrain.
	ruleCorrelationBelow = 0.3
	ruleSlopeAbove       = 30.0

	// Fallback pixel area for 30 m pixels when no transform is known.
	defaultPixelAreaKm2 = 0.0009
)

// RiskDistribution counts pixels per probability band.
type RiskDistribution struct {
	Low      int `json:"low"`
	Moderate int `json:"moderate"`
	High     int `json:"high"`
}

// Location is a WGS-84 point.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RiskSummary condenses per-pixel probabilities into reportable figures.
type RiskSummary struct {
	Level           string           `json:"level"`
	MaxProbability  float64          `json:"max_probability"`
	MeanProbability float64          `json:"mean_probability"`
	HighRiskPixels  int              `json:"high_risk_pixels"`
	TotalPixels     int              `json:"total_pixels"`
	Distribution    RiskDistribution `json:"distribution"`
	RuleCandidates  int              `json:"rule_candidates"`
	Peak            *Location        `json:"peak,omitempty"`
	TotalAreaKm2    float64          `json:"total_area_km2"`
	HighRiskAreaKm2 float64          `json:"high_risk_area_km2"`
	Hypothesis      string           `json:"hypothesis"`
}

// LevelFor maps a maximum probability to a risk level.
func LevelFor(maxProb float64) string {
	switch {
	case maxProb > 0.8:
		return RiskHigh
	case maxProb > 0.5:
		return RiskModerate
	default:
		return RiskLow
	}
}

// RuleLabels flags pixels whose correlation is below 0.3 on slopes above 30.
func RuleLabels(t *feature.Table) []bool {
	out := make([]bool, t.Len())
	for i := range out {
		out[i] = t.Correlation[i] < ruleCorrelationBelow && t.Slope[i] > ruleSlopeAbove
	}
	return out
}

// Summarize builds a RiskSummary. probs must have one entry per table row.
// transform, when set, georeferences the peak pixel and the area figures.
func Summarize(probs []float64, t *feature.Table, transform *raster.GeoTransform) (RiskSummary, error) {
	if len(probs) != t.Len() {
		return RiskSummary{}, fmt.Errorf("risk model returned %d probabilities for %d rows", len(probs), t.Len())
	}
	s := RiskSummary{Level: RiskLow, TotalPixels: len(probs)}
	if len(probs) == 0 {
		s.Hypothesis = "No pixels to assess."
		return s, nil
	}

	s.MaxProbability = floats.Max(probs)
	s.MeanProbability = stat.Mean(probs, nil)
	s.Level = LevelFor(s.MaxProbability)
	for _, p := range probs {
		switch {
		case p > highRiskThreshold:
			s.Distribution.High++
		case p < lowRiskThreshold:
			s.Distribution.Low++
		default:
			s.Distribution.Moderate++
		}
	}
	s.HighRiskPixels = s.Distribution.High
	for _, hit := range RuleLabels(t) {
		if hit {
			s.RuleCandidates++
		}
	}

	pixelArea := defaultPixelAreaKm2
	if transform != nil && t.Cols > 0 {
		peak := floats.MaxIdx(probs)
		row, col := peak/t.Cols, peak%t.Cols
		s.Peak = &Location{
			Lon: transform[0] + (float64(col)+0.5)*transform[1],
			Lat: transform[3] + (float64(row)+0.5)*transform[5],
		}
		pixelArea = pixelAreaKm2(*transform, s.Peak.Lat)
	}
	s.TotalAreaKm2 = float64(s.TotalPixels) * pixelArea
	s.HighRiskAreaKm2 = float64(s.HighRiskPixels) * pixelArea
	s.Hypothesis = hypothesis(s, t)
	return s, nil
}

// pixelAreaKm2 approximates the ground area of one geographic pixel at lat.
func pixelAreaKm2(t raster.GeoTransform, lat float64) float64 {
	const kmPerDegLat = 110.574
	kmPerDegLon := 111.320 * math.Cos(lat*math.Pi/180)
	return math.Abs(t[1]*kmPerDegLon) * math.Abs(t[5]*kmPerDegLat)
}

func hypothesis(s RiskSummary, t *feature.Table) string {
	slope := stat.Mean(t.Slope, nil)
	coherence := stat.Mean(t.Correlation, nil)
	change := stat.Mean(t.BackscatterChange, nil)

	parts := []string{
		fmt.Sprintf("Maximum landslide risk is %s (score %.3f).", s.Level, s.MaxProbability),
		fmt.Sprintf("%d of %d pixels exceed the %.1f high-risk threshold.", s.HighRiskPixels, s.TotalPixels, highRiskThreshold),
		fmt.Sprintf("Mean slope %.1f°, mean coherence %.3f.", slope, coherence),
	}
	if slope > 30 {
		parts = append(parts, "Steep terrain raises susceptibility.")
	}
	if coherence < 0.4 {
		parts = append(parts, "Low coherence points to surface change or vegetation loss.")
	}
	if math.Abs(change) > 2 {
		parts = append(parts, "Backscatter shifted markedly between acquisitions.")
	}
	return strings.Join(parts, " ")
}
