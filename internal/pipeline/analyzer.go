package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/config"
	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/feature"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/observability"
	"github.com/couchcryptid/terrain-change-etl/internal/raster"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const defaultProbeConcurrency = 8

// TileSource probes and opens elevation tiles.
type TileSource interface {
	Exists(ctx context.Context, id geo.TileID) (bool, error)
	Open(ctx context.Context, id geo.TileID) (raster.Handle, error)
}

// SceneCatalog lists SAR scenes over an area and time window.
type SceneCatalog interface {
	Search(ctx context.Context, b geo.BoundingBox, start, end time.Time) ([]scene.Candidate, error)
}

// SceneLoader opens one polarization raster of a scene.
type SceneLoader interface {
	Load(ctx context.Context, endpoint string) (raster.Handle, error)
}

// RiskModel scores every row of a feature table.
type RiskModel interface {
	Predict(ctx context.Context, t *feature.Table) ([]float64, error)
}

// ArtifactSink persists the outputs of a finished analysis.
type ArtifactSink interface {
	Persist(ctx context.Context, res *domain.AnalysisResult) ([]string, error)
}

// Deps are the collaborators an Analyzer drives. Model, Fallback and
// Artifacts are optional.
type Deps struct {
	Tiles     TileSource
	Catalog   SceneCatalog
	Loader    SceneLoader
	Model     RiskModel
	Fallback  RiskModel
	Artifacts ArtifactSink
}

// Options tunes an Analyzer.
type Options struct {
	Polarizations         []scene.Polarization
	ProbeConcurrency      int
	ProbeTimeout          time.Duration
	AnalysisTimeout       time.Duration
	AllowMissingElevation bool
	SARFallback           string
	SyntheticSeed         uint64
	Correlator            feature.Correlator
}

// OptionsFromConfig maps service configuration onto analyzer options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Polarizations:         cfg.RequiredPolarizations,
		ProbeConcurrency:      cfg.ProbeConcurrency,
		ProbeTimeout:          cfg.ProbeTimeout,
		AnalysisTimeout:       cfg.AnalysisTimeout,
		AllowMissingElevation: cfg.AllowMissingElevation,
		SARFallback:           cfg.SARFallback,
		SyntheticSeed:         cfg.SyntheticSeed,
		Correlator: feature.Correlator{
			Window:   cfg.CorrelationWindow,
			TileSize: cfg.CorrelationTileSize,
			Workers:  cfg.CorrelationWorkers,
		},
	}
}

// SceneLoadError reports a scene raster that could not be loaded.
type SceneLoadError struct {
	Scene string
	Pol   scene.Polarization
	Err   error
}

func (e *SceneLoadError) Error() string {
	return fmt.Sprintf("scene %s %s: %v", e.Scene, e.Pol, e.Err)
}

func (e *SceneLoadError) Unwrap() error { return e.Err }

// Analyzer runs one AOI through elevation mosaicking, SAR selection, feature
// extraction and risk scoring. It implements Transformer.
type Analyzer struct {
	deps      Deps
	opts      Options
	mosaicker *raster.Mosaicker
	stages    *observability.Stages
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewAnalyzer creates an Analyzer. A nil clock uses real time.
func NewAnalyzer(deps Deps, opts Options, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Analyzer {
	if opts.ProbeConcurrency <= 0 {
		opts.ProbeConcurrency = defaultProbeConcurrency
	}
	if len(opts.Polarizations) == 0 {
		opts.Polarizations = scene.DefaultPolarizations
	}
	if opts.SARFallback == "" {
		opts.SARFallback = config.SARFallbackSynthetic
	}
	return &Analyzer{
		deps:      deps,
		opts:      opts,
		mosaicker: raster.NewMosaicker(logger),
		stages:    observability.NewStages(logger, metrics, clock),
		metrics:   metrics,
		logger:    logger,
	}
}

// Transform parses a request message and analyses it.
func (a *Analyzer) Transform(ctx context.Context, raw domain.RawEvent) (domain.AnalysisResult, error) {
	req, err := domain.ParseRequest(raw, a.opts.Polarizations)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	res, err := a.Analyze(ctx, req)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return *res, nil
}

// Analyze runs the full analysis for one request.
func (a *Analyzer) Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	if a.opts.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.AnalysisTimeout)
		defer cancel()
	}
	logger := a.logger.With("request_id", req.ID)
	res := &domain.AnalysisResult{
		RequestID: req.ID,
		Status:    domain.StatusSucceeded,
		Columns:   feature.Columns,
		Elevation: domain.ElevationInfo{Source: domain.ElevationMissing},
	}

	span := a.stages.Start(observability.StageBounds, "request_id", req.ID)
	bounds, err := geo.ParseBounds(req.AOI)
	span.End(ctx, err)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}
	res.Bounds = bounds

	span = a.stages.Start(observability.StageTiles, "request_id", req.ID)
	res.Tiles = geo.TilesFor(bounds)
	span.End(ctx, nil, "tiles", len(res.Tiles))

	dem, err := a.elevation(ctx, logger, res)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("request %s: %w", req.ID, ctxErr)
		}
		if !a.opts.AllowMissingElevation {
			return nil, fmt.Errorf("request %s: %w: %w", req.ID, domain.ErrNoElevation, err)
		}
		logger.Warn("elevation unavailable, continuing with a zero layer", "error", err)
		res.Warn(fmt.Sprintf("elevation unavailable: %v", err))
	}

	stack, err := a.sar(ctx, logger, req, res)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("request %s: %w", req.ID, ctxErr)
		}
		if a.opts.SARFallback != config.SARFallbackSynthetic {
			return nil, fmt.Errorf("request %s: %w: %w", req.ID, domain.ErrNoSARData, err)
		}
		logger.Warn("SAR unavailable, substituting synthetic features", "error", err)
		res.Warn(fmt.Sprintf("SAR unavailable, features are synthetic: %v", err))
	}

	span = a.stages.Start(observability.StageFeatures, "request_id", req.ID)
	table, transform, err := a.features(ctx, logger, dem, stack, req.Polarizations, res)
	span.End(ctx, err)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}
	res.Table = table
	res.Rows = table.Len()
	res.Shape = [2]int{table.Rows, table.Cols}
	res.ElevationGT = dem
	a.metrics.SARSource.WithLabelValues(res.SARSource).Inc()
	a.metrics.FeatureRows.Observe(float64(table.Len()))

	if err := a.score(ctx, logger, table, transform, res); err != nil {
		return nil, fmt.Errorf("request %s: %w", req.ID, err)
	}

	res.Stamp()
	a.persist(ctx, logger, res)

	logger.Info("analysis complete",
		"sar_source", res.SARSource,
		"rows", res.Rows,
		"tiles_used", len(res.TilesUsed),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// elevation probes, opens and mosaics the tiles covering res.Bounds.
func (a *Analyzer) elevation(ctx context.Context, logger *slog.Logger, res *domain.AnalysisResult) (*raster.Raster, error) {
	span := a.stages.Start(observability.StageProbe, "request_id", res.RequestID)
	found := a.probe(ctx, logger, res)
	span.End(ctx, ctx.Err(), "found", len(found), "tiles", len(res.Tiles))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span = a.stages.Start(observability.StageMosaic, "request_id", res.RequestID)
	handles := a.open(ctx, logger, found, res)
	dem, err := a.mosaicker.Mosaic(handles, res.Bounds)
	span.End(ctx, err, "sources", len(handles))
	if err != nil {
		res.TilesUsed = nil
		return nil, err
	}

	stats := dem.Grid.Stats(dem.NoData)
	profile := dem.Profile()
	res.Elevation = domain.ElevationInfo{
		Source:  domain.ElevationMosaic,
		Profile: &profile,
		Min:     stats.Min,
		Max:     stats.Max,
		Mean:    stats.Mean,
	}
	return dem, nil
}

// probe checks tile existence with bounded concurrency and a per-tile
// timeout. Tiles that are missing or fail to answer are excluded.
func (a *Analyzer) probe(ctx context.Context, logger *slog.Logger, res *domain.AnalysisResult) []geo.TileID {
	exists := make([]bool, len(res.Tiles))
	errs := make([]error, len(res.Tiles))

	var g errgroup.Group
	g.SetLimit(a.opts.ProbeConcurrency)
	for i, id := range res.Tiles {
		g.Go(func() error {
			pctx := ctx
			if a.opts.ProbeTimeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, a.opts.ProbeTimeout)
				defer cancel()
			}
			exists[i], errs[i] = a.deps.Tiles.Exists(pctx, id)
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range res.Tiles {
		switch {
		case errs[i] != nil:
			a.metrics.TilesProbed.WithLabelValues("error").Inc()
			logger.Warn("tile probe failed", "tile", id.String(), "error", errs[i])
			res.Warn(fmt.Sprintf("tile %s probe failed: %v", id, errs[i]))
		case exists[i]:
			a.metrics.TilesProbed.WithLabelValues("found").Inc()
		default:
			a.metrics.TilesProbed.WithLabelValues("missing").Inc()
			logger.Debug("tile not found", "tile", id.String())
		}
	}
	return lo.Filter(res.Tiles, func(_ geo.TileID, i int) bool { return exists[i] && errs[i] == nil })
}

// open opens the found tiles concurrently, keeping grid order so the mosaic
// overlap policy stays deterministic. Tiles that fail to open are excluded.
func (a *Analyzer) open(ctx context.Context, logger *slog.Logger, tiles []geo.TileID, res *domain.AnalysisResult) []raster.Handle {
	handles := make([]raster.Handle, len(tiles))
	errs := make([]error, len(tiles))

	var g errgroup.Group
	g.SetLimit(a.opts.ProbeConcurrency)
	for i, id := range tiles {
		g.Go(func() error {
			handles[i], errs[i] = a.deps.Tiles.Open(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	opened := make([]raster.Handle, 0, len(tiles))
	for i, id := range tiles {
		if errs[i] != nil {
			logger.Warn("tile excluded from mosaic", "tile", id.String(), "error", errs[i])
			res.Warn(fmt.Sprintf("tile %s excluded: %v", id, errs[i]))
			continue
		}
		opened = append(opened, handles[i])
		res.TilesUsed = append(res.TilesUsed, id)
	}
	return opened
}

// sarStack holds the loaded before and after rasters per polarization.
type sarStack struct {
	before map[scene.Polarization]*raster.Raster
	after  map[scene.Polarization]*raster.Raster
}

// sar searches, selects and loads the scene pair. A nil stack with an error
// means no usable pair; the caller applies the fallback policy.
func (a *Analyzer) sar(ctx context.Context, logger *slog.Logger, req domain.AnalysisRequest, res *domain.AnalysisResult) (*sarStack, error) {
	span := a.stages.Start(observability.StageSearch, "request_id", req.ID)
	scenes, err := a.deps.Catalog.Search(ctx, res.Bounds, req.Start, req.End)
	span.End(ctx, err, "scenes", len(scenes))
	if err != nil {
		return nil, fmt.Errorf("scene search: %w", err)
	}

	span = a.stages.Start(observability.StageSelect, "request_id", req.ID)
	scene.SortByAcquisition(scenes)
	sel := scene.Select(scenes, req.Polarizations)
	outcome := "pair"
	switch {
	case sel.Empty():
		outcome = "none"
	case sel.Single():
		outcome = "single"
	}
	a.metrics.ScenesSelected.WithLabelValues(outcome).Inc()
	span.End(ctx, nil, "outcome", outcome, "candidates", len(scenes))

	switch {
	case sel.Empty():
		return nil, fmt.Errorf("no scene between %s and %s carries %v",
			req.Start.Format(time.DateOnly), req.End.Format(time.DateOnly), req.Polarizations)
	case sel.Single():
		return nil, fmt.Errorf("only scene %s qualifies, a change pair needs two acquisitions", sel.Oldest.ID)
	}
	logger.Debug("scene pair selected", "before", sel.Oldest.ID, "after", sel.Newest.ID)
	res.Before, res.After = domain.RefOf(sel.Oldest), domain.RefOf(sel.Newest)

	return a.load(ctx, req, sel)
}

// load reads every (scene, polarization) raster of the selection. One failed
// load does not stop the others; all failures are reported together.
func (a *Analyzer) load(ctx context.Context, req domain.AnalysisRequest, sel scene.Selection) (*sarStack, error) {
	type job struct {
		c      *scene.Candidate
		pol    scene.Polarization
		before bool
	}
	var jobs []job
	for _, p := range req.Polarizations {
		jobs = append(jobs, job{sel.Oldest, p, true}, job{sel.Newest, p, false})
	}

	span := a.stages.Start(observability.StageSARLoad, "request_id", req.ID)
	rasters := make([]*raster.Raster, len(jobs))
	errs := make([]error, len(jobs))
	var g errgroup.Group
	g.SetLimit(a.opts.ProbeConcurrency)
	for i, j := range jobs {
		g.Go(func() error {
			rasters[i], errs[i] = a.loadScene(ctx, j.c, j.pol)
			return nil
		})
	}
	_ = g.Wait()
	err := errors.Join(errs...)
	span.End(ctx, err, "rasters", len(jobs))
	if err != nil {
		return nil, err
	}

	stack := &sarStack{
		before: make(map[scene.Polarization]*raster.Raster),
		after:  make(map[scene.Polarization]*raster.Raster),
	}
	for i, j := range jobs {
		if j.before {
			stack.before[j.pol] = rasters[i]
		} else {
			stack.after[j.pol] = rasters[i]
		}
	}
	return stack, nil
}

func (a *Analyzer) loadScene(ctx context.Context, c *scene.Candidate, pol scene.Polarization) (*raster.Raster, error) {
	endpoint, ok := c.Endpoint(pol)
	if !ok {
		return nil, &SceneLoadError{Scene: c.ID, Pol: pol, Err: feature.ErrMissingChannel}
	}
	h, err := a.deps.Loader.Load(ctx, endpoint)
	if err != nil {
		return nil, &SceneLoadError{Scene: c.ID, Pol: pol, Err: err}
	}
	defer func() {
		if cerr := h.Close(); cerr != nil {
			a.logger.Warn("release scene raster failed", "scene", c.ID, "pol", string(pol), "error", cerr)
		}
	}()
	r, err := h.Read()
	if err != nil {
		return nil, &SceneLoadError{Scene: c.ID, Pol: pol, Err: err}
	}
	return r, nil
}

// features builds the feature table from whatever layers are available and
// returns the geotransform of its top-left-aligned grid.
func (a *Analyzer) features(ctx context.Context, logger *slog.Logger, dem *raster.Raster, stack *sarStack, pols []scene.Polarization, res *domain.AnalysisResult) (*feature.Table, *raster.GeoTransform, error) {
	if stack == nil {
		return a.syntheticFeatures(dem, res)
	}
	res.SARSource = domain.SARObserved

	grids := make([]raster.Grid, 0, 2*len(pols)+1)
	for _, p := range pols {
		grids = append(grids, stack.before[p].Grid, stack.after[p].Grid)
	}
	if dem != nil {
		grids = append(grids, feature.Slope(dem))
	}
	grids = feature.MatchAll(grids...)

	before := make(map[scene.Polarization]raster.Grid, len(pols))
	after := make(map[scene.Polarization]raster.Grid, len(pols))
	pairs := make(map[scene.Polarization]feature.Pair, len(pols))
	for i, p := range pols {
		before[p], after[p] = grids[2*i], grids[2*i+1]
		pairs[p] = feature.Pair{Before: before[p], After: after[p]}
	}
	ref := grids[0]

	slope := raster.NewGrid(ref.Rows, ref.Cols)
	if dem != nil {
		slope = grids[len(grids)-1]
	}

	bsc, err := feature.BackscatterChange(pairs)
	if err != nil {
		return nil, nil, &feature.InputError{Name: "backscatter", Err: err}
	}

	ratio, err := feature.RatioChange(before, after)
	if errors.Is(err, feature.ErrMissingChannel) {
		logger.Warn("ratio change unavailable, using zeros", "error", err)
		res.Warn(fmt.Sprintf("ratio change unavailable: %v", err))
		ratio, err = raster.NewGrid(ref.Rows, ref.Cols), nil
	}
	if err != nil {
		return nil, nil, &feature.InputError{Name: "ratio", Err: err}
	}

	co := copol(pols)
	corr, err := a.opts.Correlator.Correlate(ctx, before[co], after[co])
	if err != nil {
		return nil, nil, &feature.InputError{Name: "correlation " + string(co), Err: err}
	}

	table, err := feature.AssembleTable(slope, bsc, corr, ratio)
	if err != nil {
		return nil, nil, err
	}

	transform := stack.before[co].Transform
	if dem != nil {
		transform = dem.Transform
	}
	return table, &transform, nil
}

// syntheticFeatures sizes synthetic SAR layers from the elevation mosaic.
func (a *Analyzer) syntheticFeatures(dem *raster.Raster, res *domain.AnalysisResult) (*feature.Table, *raster.GeoTransform, error) {
	if dem == nil {
		return nil, nil, fmt.Errorf("%w and %w: nothing to size the feature grid from", domain.ErrNoElevation, domain.ErrNoSARData)
	}
	res.SARSource = domain.SARSynthetic
	res.Before, res.After = nil, nil
	slope := feature.Slope(dem)
	syn := feature.Synthetic(slope.Rows, slope.Cols, a.opts.SyntheticSeed)
	table, err := feature.AssembleTable(slope, syn.BackscatterChange, syn.Correlation, syn.RatioChange)
	if err != nil {
		return nil, nil, err
	}
	transform := dem.Transform
	return table, &transform, nil
}

// copol picks the channel the correlation map is computed on: the first
// co-polarised channel requested, else the first channel.
func copol(pols []scene.Polarization) scene.Polarization {
	if p, ok := lo.Find(pols, func(p scene.Polarization) bool {
		_, co := p.CrossPol()
		return co
	}); ok {
		return p
	}
	return pols[0]
}

// score runs the risk model, falling back to the secondary model when the
// primary fails, and summarises the probabilities.
func (a *Analyzer) score(ctx context.Context, logger *slog.Logger, table *feature.Table, transform *raster.GeoTransform, res *domain.AnalysisResult) error {
	if a.deps.Model == nil {
		return nil
	}
	span := a.stages.Start(observability.StageRiskModel, "request_id", res.RequestID)
	probs, err := a.deps.Model.Predict(ctx, table)
	if err != nil && a.deps.Fallback != nil && ctx.Err() == nil {
		logger.Warn("risk model failed, using fallback scorer", "error", err)
		res.Warn(fmt.Sprintf("risk model failed, fallback scorer used: %v", err))
		probs, err = a.deps.Fallback.Predict(ctx, table)
	}
	span.End(ctx, err, "rows", table.Len())
	if err != nil {
		return fmt.Errorf("risk model: %w", err)
	}

	summary, err := domain.Summarize(probs, table, transform)
	if err != nil {
		return fmt.Errorf("risk summary: %w", err)
	}
	res.Risk = &summary
	return nil
}

// persist stores the artifacts. Failures are recorded on the result but do
// not fail the analysis.
func (a *Analyzer) persist(ctx context.Context, logger *slog.Logger, res *domain.AnalysisResult) {
	if a.deps.Artifacts == nil {
		return
	}
	span := a.stages.Start(observability.StageArtifacts, "request_id", res.RequestID)
	locations, err := a.deps.Artifacts.Persist(ctx, res)
	span.End(ctx, err, "artifacts", len(locations))
	res.Artifacts = locations
	if err != nil {
		logger.Warn("persist artifacts failed", "error", err)
		res.Warn(fmt.Sprintf("artifacts incomplete: %v", err))
	}
}
