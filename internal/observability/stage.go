package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Stage names, used as the "stage" log attribute and metric label.
const (
	StageBounds    = "bounds"
	StageTiles     = "tiles"
	StageProbe     = "probe"
	StageMosaic    = "mosaic"
	StageSearch    = "scene_search"
	StageSelect    = "scene_select"
	StageSARLoad   = "sar_load"
	StageFeatures  = "features"
	StageRiskModel = "risk_model"
	StageArtifacts = "artifacts"
)

// Stages emits one structured event per analysis stage and feeds the stage
// duration histogram.
type Stages struct {
	logger  *slog.Logger
	metrics *Metrics
	clock   clockwork.Clock
}

// NewStages creates a stage sink. A nil clock uses real time.
func NewStages(logger *slog.Logger, metrics *Metrics, clock clockwork.Clock) *Stages {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Stages{logger: logger, metrics: metrics, clock: clock}
}

// Span is one running stage.
type Span struct {
	s     *Stages
	name  string
	start time.Time
	attrs []any
}

// Start begins timing a stage. attrs are logged with the completion event.
func (s *Stages) Start(name string, attrs ...any) *Span {
	return &Span{s: s, name: name, start: s.clock.Now(), attrs: attrs}
}

// End records the stage. A non-nil err is logged at warn level; the caller
// decides whether it is fatal.
func (sp *Span) End(ctx context.Context, err error, attrs ...any) time.Duration {
	d := sp.s.clock.Since(sp.start)
	sp.s.metrics.StageDuration.WithLabelValues(sp.name).Observe(d.Seconds())

	args := make([]any, 0, 4+len(sp.attrs)+len(attrs)+2)
	args = append(args, "stage", sp.name, "duration", d)
	args = append(args, sp.attrs...)
	args = append(args, attrs...)
	if err != nil {
		args = append(args, "error", err)
		sp.s.logger.WarnContext(ctx, "stage failed", args...)
		return d
	}
	sp.s.logger.DebugContext(ctx, "stage complete", args...)
	return d
}
