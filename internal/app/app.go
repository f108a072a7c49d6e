// Package app assembles the analyzer and its adapters from configuration.
// Both the service and the CLI build their analyzer here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/terrain-change-etl/internal/adapter/artifact"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/asf"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/copernicus"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/fetch"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/localfs"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/riskmodel"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/tilecache"
	"github.com/couchcryptid/terrain-change-etl/internal/config"
	"github.com/couchcryptid/terrain-change-etl/internal/observability"
	"github.com/couchcryptid/terrain-change-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

// Sources selects where elevation tiles and SAR scenes come from.
type Sources struct {
	// FixtureDir, when set, serves everything from a local fixture
	// directory instead of the remote services.
	FixtureDir string
}

// BuildAnalyzer wires an Analyzer from cfg. The returned cleanup releases
// network clients and must be called once the analyzer is no longer used.
func BuildAnalyzer(ctx context.Context, cfg *config.Config, src Sources, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Analyzer, func(), error) {
	var (
		deps     pipeline.Deps
		tiles    tilecache.Source
		cleanups []func()
	)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if src.FixtureDir != "" {
		dir := localfs.New(src.FixtureDir)
		tiles, deps.Catalog, deps.Loader = dir, dir, dir
		logger.Info("serving sources from fixtures", "dir", src.FixtureDir)
	} else {
		fetcher := fetch.New(cfg.FetchTimeout, cfg.EarthdataToken, "", logger)
		tiles = copernicus.NewClient(cfg.DEMBaseURL, cfg.ProbeTimeout, fetcher, logger)
		deps.Catalog = asf.NewClient(cfg.ASFSearchURL, cfg.EarthdataToken, cfg.FetchTimeout, logger)
		deps.Loader = fetcher
	}

	var cacheOpts []tilecache.Option
	if cfg.RedisAddr != "" {
		rc := tilecache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cleanups = append(cleanups, func() {
			if err := rc.Close(); err != nil {
				logger.Warn("redis close failed", "error", err)
			}
		})
		cacheOpts = append(cacheOpts, tilecache.WithRedis(rc))
		logger.Info("tile existence cache backed by redis", "addr", cfg.RedisAddr)
	}
	deps.Tiles = tilecache.New(tiles, cfg.TileCacheSize, cfg.TileCacheTTL, metrics, logger, cacheOpts...)

	if cfg.RiskModelURL != "" {
		deps.Model = riskmodel.NewClient(cfg.RiskModelURL, cfg.RiskModelTimeout, logger)
		deps.Fallback = riskmodel.Heuristic{}
		logger.Info("risk model enabled", "url", cfg.RiskModelURL)
	} else {
		deps.Model = riskmodel.Heuristic{}
		logger.Info("risk model not configured, using heuristic scorer")
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if store != nil {
		deps.Artifacts = artifact.Sink{Store: store}
	}

	a := pipeline.NewAnalyzer(deps, pipeline.OptionsFromConfig(cfg), logger, metrics, clockwork.NewRealClock())
	return a, cleanup, nil
}

func newStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (artifact.Store, error) {
	switch cfg.ArtifactStore {
	case config.ArtifactStoreFS:
		s, err := artifact.NewFileStore(cfg.ArtifactDir)
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		logger.Info("artifacts written to filesystem", "dir", cfg.ArtifactDir)
		return s, nil
	case config.ArtifactStoreMinIO:
		s, err := artifact.NewMinIOStore(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey,
			cfg.MinIOBucket, cfg.MinIOUseSSL, logger)
		if err != nil {
			return nil, fmt.Errorf("artifact store: %w", err)
		}
		logger.Info("artifacts written to minio", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucket)
		return s, nil
	default:
		return nil, nil
	}
}
