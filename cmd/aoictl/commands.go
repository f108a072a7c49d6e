package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/adapter/asf"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/localfs"
	"github.com/couchcryptid/terrain-change-etl/internal/app"
	"github.com/couchcryptid/terrain-change-etl/internal/config"
	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/observability"
	"github.com/couchcryptid/terrain-change-etl/internal/pipeline"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	logLevel  string
	logFormat string
	fixtures  string
}

// window holds the area and time flags of commands that search for scenes.
type window struct {
	aoi   string
	start string
	end   string
}

func (w *window) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.aoi, "aoi", "", "area of interest as a WKT polygon (required)")
	cmd.Flags().StringVar(&w.start, "start", "", "window start, YYYY-MM-DD or RFC3339 (required)")
	cmd.Flags().StringVar(&w.end, "end", "", "window end, YYYY-MM-DD or RFC3339 (required)")
	_ = cmd.MarkFlagRequired("aoi")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func (w *window) parse() (geo.BoundingBox, time.Time, time.Time, error) {
	b, err := geo.ParseBounds(w.aoi)
	if err != nil {
		return geo.BoundingBox{}, time.Time{}, time.Time{}, err
	}
	start, err := domain.ParseDate(w.start)
	if err != nil {
		return geo.BoundingBox{}, time.Time{}, time.Time{}, fmt.Errorf("--start: %w", err)
	}
	end, err := domain.ParseDate(w.end)
	if err != nil {
		return geo.BoundingBox{}, time.Time{}, time.Time{}, fmt.Errorf("--end: %w", err)
	}
	return b, start, end, nil
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "aoictl",
		Short:         "Terrain and SAR change analysis for an area of interest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "text", "log format (json, text)")
	pf.StringVar(&opts.fixtures, "fixtures", "", "serve tiles and scenes from this fixture directory")

	cmd.AddCommand(newTilesCommand(), newScenesCommand(opts), newRunCommand(opts))
	return cmd
}

// loadConfig reads the environment and applies the shared flags.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.LogLevel, cfg.LogFormat = o.logLevel, o.logFormat
	return cfg, observability.NewLoggerTo(cmd.ErrOrStderr(), cfg), nil
}

func newTilesCommand() *cobra.Command {
	var aoi, baseURL string
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "List the elevation tiles covering an area",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := geo.ParseBounds(aoi)
			if err != nil {
				return err
			}
			loc := geo.CopernicusLocator{BaseURL: baseURL}
			type tile struct {
				ID  geo.TileID `json:"id"`
				URL string     `json:"url"`
			}
			out := struct {
				Bounds geo.BoundingBox `json:"bounds"`
				Tiles  []tile          `json:"tiles"`
			}{Bounds: b}
			for _, id := range geo.TilesFor(b) {
				out.Tiles = append(out.Tiles, tile{ID: id, URL: loc.Locate(id)})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&aoi, "aoi", "", "area of interest as a WKT polygon (required)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "elevation tile bucket (default Copernicus GLO-30)")
	_ = cmd.MarkFlagRequired("aoi")
	return cmd
}

func newScenesCommand(opts *rootOptions) *cobra.Command {
	var (
		w      window
		maxGap time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scenes",
		Short: "List SAR scenes in a window and the change pairs they form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, start, end, err := w.parse()
			if err != nil {
				return err
			}
			cfg, logger, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			var catalog pipeline.SceneCatalog = asf.NewClient(cfg.ASFSearchURL, cfg.EarthdataToken, cfg.FetchTimeout, logger)
			if opts.fixtures != "" {
				catalog = localfs.New(opts.fixtures)
			}
			scenes, err := catalog.Search(cmd.Context(), b, start, end)
			if err != nil {
				return err
			}
			type pair struct {
				BurstID string `json:"burst_id"`
				Before  string `json:"before"`
				After   string `json:"after"`
				GapDays int    `json:"gap_days"`
			}
			out := struct {
				Scenes []scene.Candidate `json:"scenes"`
				Pairs  []pair            `json:"pairs"`
			}{Scenes: scenes}
			for _, p := range scene.ChangePairs(scenes, maxGap) {
				out.Pairs = append(out.Pairs, pair{p.BurstID, p.Before.ID, p.After.ID, p.GapDays})
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	w.register(cmd)
	cmd.Flags().DurationVar(&maxGap, "max-gap", scene.DefaultMaxPairGap, "widest acquisition gap for a change pair")
	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var (
		w            window
		id           string
		pols         string
		artifactDir  string
		allowNoDEM   bool
		sarFallback  string
		seed         uint64
		showWarnings bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyse an area and print the result summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, _, err := w.parse(); err != nil {
				return err
			}
			cfg, logger, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("artifacts") {
				cfg.ArtifactStore, cfg.ArtifactDir = config.ArtifactStoreFS, artifactDir
			}
			if cmd.Flags().Changed("allow-missing-elevation") {
				cfg.AllowMissingElevation = allowNoDEM
			}
			if cmd.Flags().Changed("sar-fallback") {
				if sarFallback != config.SARFallbackSynthetic && sarFallback != config.SARFallbackSkip {
					return fmt.Errorf("--sar-fallback must be %q or %q", config.SARFallbackSynthetic, config.SARFallbackSkip)
				}
				cfg.SARFallback = sarFallback
			}
			if cmd.Flags().Changed("seed") {
				cfg.SyntheticSeed = seed
			}
			requested := cfg.RequiredPolarizations
			if pols != "" {
				if requested, err = scene.ParsePolarizationList(pols); err != nil {
					return err
				}
			}

			analyzer, cleanup, err := app.BuildAnalyzer(cmd.Context(), cfg, app.Sources{FixtureDir: opts.fixtures}, logger, observability.NewMetricsForTesting())
			if err != nil {
				return err
			}
			defer cleanup()

			start, _ := domain.ParseDate(w.start)
			end, _ := domain.ParseDate(w.end)
			req, err := domain.NewRequest(id, w.aoi, start, end, requested)
			if err != nil {
				return err
			}
			res, err := analyzer.Analyze(cmd.Context(), req)
			if err != nil {
				return err
			}
			if showWarnings {
				for _, msg := range res.Warnings {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", msg)
				}
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	w.register(cmd)
	f := cmd.Flags()
	f.StringVar(&id, "id", "cli", "request id, also the artifact prefix")
	f.StringVar(&pols, "pols", "", "required polarizations, e.g. VV,VH (default REQUIRED_POLARIZATIONS)")
	f.StringVar(&artifactDir, "artifacts", "", "write artifacts below this directory")
	f.BoolVar(&allowNoDEM, "allow-missing-elevation", false, "continue with a zero elevation layer when no tile is usable")
	f.StringVar(&sarFallback, "sar-fallback", config.SARFallbackSynthetic, "synthetic or skip when no SAR pair is usable")
	f.Uint64Var(&seed, "seed", 42, "seed for synthetic SAR layers")
	f.BoolVar(&showWarnings, "warnings", true, "print result warnings to stderr")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
