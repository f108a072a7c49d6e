package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
)

// SAR fallback policies.
const (
	SARFallbackSynthetic = "synthetic"
	SARFallbackSkip      = "skip"
)

// Artifact store backends.
const (
	ArtifactStoreNone  = "none"
	ArtifactStoreFS    = "fs"
	ArtifactStoreMinIO = "minio"
)

// DefaultASFSearchURL is the ASF search API endpoint.
const DefaultASFSearchURL = "https://api.daac.asf.alaska.edu/services/search/param"

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Data sources.
	DEMBaseURL            string
	ASFSearchURL          string
	EarthdataToken        string
	RequiredPolarizations []scene.Polarization

	// Fan-out and deadlines.
	ProbeConcurrency int
	ProbeTimeout     time.Duration
	FetchTimeout     time.Duration
	AnalysisTimeout  time.Duration

	// Correlation map.
	CorrelationWindow   int
	CorrelationTileSize int
	CorrelationWorkers  int // 0 means GOMAXPROCS

	// Degradation policies.
	AllowMissingElevation bool
	SARFallback           string
	SyntheticSeed         uint64

	// Tile existence cache; Redis is optional.
	TileCacheSize int
	TileCacheTTL  time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Risk model; empty URL selects the built-in heuristic.
	RiskModelURL     string
	RiskModelTimeout time.Duration

	// Artifact persistence.
	ArtifactStore  string
	ArtifactDir    string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
}

// defaultBatchSize is lower than the shared default: every message is a full
// AOI analysis, and offsets are committed per batch.
const defaultBatchSize = 4

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	batchSize := defaultBatchSize
	if os.Getenv("BATCH_SIZE") != "" {
		if batchSize, err = sharedcfg.ParseBatchSize(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "aoi-analysis-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "aoi-feature-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "terrain-change-etl"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		DEMBaseURL:     sharedcfg.EnvOrDefault("DEM_BASE_URL", geo.DefaultCopernicusBaseURL),
		ASFSearchURL:   sharedcfg.EnvOrDefault("ASF_SEARCH_URL", DefaultASFSearchURL),
		EarthdataToken: os.Getenv("EARTHDATA_TOKEN"),

		SARFallback: sharedcfg.EnvOrDefault("SAR_FALLBACK", SARFallbackSynthetic),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		RiskModelURL: os.Getenv("RISK_MODEL_URL"),

		ArtifactStore:  sharedcfg.EnvOrDefault("ARTIFACT_STORE", ArtifactStoreNone),
		ArtifactDir:    sharedcfg.EnvOrDefault("ARTIFACT_DIR", "artifacts"),
		MinIOEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:    sharedcfg.EnvOrDefault("MINIO_BUCKET", "terrain-artifacts"),
	}

	durations := []struct {
		dst *time.Duration
		key string
		def string
	}{
		{&cfg.ProbeTimeout, "PROBE_TIMEOUT", "10s"},
		{&cfg.FetchTimeout, "FETCH_TIMEOUT", "2m"},
		{&cfg.AnalysisTimeout, "ANALYSIS_TIMEOUT", "15m"},
		{&cfg.TileCacheTTL, "TILE_CACHE_TTL", "24h"},
		{&cfg.RiskModelTimeout, "RISK_MODEL_TIMEOUT", "30s"},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	positives := []struct {
		dst *int
		key string
		def int
	}{
		{&cfg.ProbeConcurrency, "PROBE_CONCURRENCY", 8},
		{&cfg.CorrelationWindow, "CORRELATION_WINDOW", 11},
		{&cfg.CorrelationTileSize, "CORRELATION_TILE_SIZE", 256},
		{&cfg.TileCacheSize, "TILE_CACHE_SIZE", 4096},
	}
	for _, p := range positives {
		if *p.dst, err = parsePositiveInt(p.key, p.def); err != nil {
			return nil, err
		}
	}
	if cfg.CorrelationWorkers, err = parseNonNegativeInt("CORRELATION_WORKERS", 0); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = parseNonNegativeInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.AllowMissingElevation, err = parseBool("ALLOW_MISSING_ELEVATION", false); err != nil {
		return nil, err
	}
	if cfg.MinIOUseSSL, err = parseBool("MINIO_USE_SSL", false); err != nil {
		return nil, err
	}
	if cfg.SyntheticSeed, err = parseUint64("SYNTHETIC_SEED", 42); err != nil {
		return nil, err
	}
	if cfg.RequiredPolarizations, err = scene.ParsePolarizationList(sharedcfg.EnvOrDefault("REQUIRED_POLARIZATIONS", "VV,VH")); err != nil {
		return nil, fmt.Errorf("invalid REQUIRED_POLARIZATIONS: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaSourceTopic == "" {
		return errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if c.KafkaSinkTopic == "" {
		return errors.New("KAFKA_SINK_TOPIC is required")
	}
	switch c.SARFallback {
	case SARFallbackSynthetic, SARFallbackSkip:
	default:
		return fmt.Errorf("invalid SAR_FALLBACK %q: want %s or %s", c.SARFallback, SARFallbackSynthetic, SARFallbackSkip)
	}
	switch c.ArtifactStore {
	case ArtifactStoreNone, ArtifactStoreFS:
	case ArtifactStoreMinIO:
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return errors.New("ARTIFACT_STORE is minio but MINIO_ENDPOINT, MINIO_ACCESS_KEY or MINIO_SECRET_KEY is not set")
		}
	default:
		return fmt.Errorf("invalid ARTIFACT_STORE %q: want none, fs or minio", c.ArtifactStore)
	}
	return nil
}
