// Package riskmodel scores feature tables with landslide probabilities.
package riskmodel

import (
	"context"
	"math"

	"github.com/couchcryptid/terrain-change-etl/internal/feature"
)

// Heuristic scores pixels from terrain and change features without a trained
// model: steeper slope, lower coherence and larger backscatter change all
// raise the score.
type Heuristic struct{}

// Predict returns one probability in [0, 1] per table row.
func (Heuristic) Predict(ctx context.Context, t *feature.Table) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]float64, t.Len())
	for i := range out {
		slope := clip01(t.Slope[i] / 60)
		coherence := 1 - t.Correlation[i]
		change := clip01(math.Abs(t.BackscatterChange[i]) / 10)
		out[i] = clip01(0.5*slope + 0.3*coherence + 0.2*change)
	}
	return out, nil
}

func clip01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
