package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/scene"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBody = 1 << 20

// Analyzer runs one analysis synchronously.
type Analyzer interface {
	Analyze(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error)
}

// TilePlan is the /v1/tiles response.
type TilePlan struct {
	Bounds geo.BoundingBox `json:"bounds"`
	Tiles  []PlannedTile   `json:"tiles"`
}

// PlannedTile is one elevation tile and where it would be fetched from.
type PlannedTile struct {
	ID  geo.TileID `json:"id"`
	URL string     `json:"url"`
}

// Server exposes health, readiness, metrics, and the on-demand analysis API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	analyzer   Analyzer
	locator    geo.CopernicusLocator
	defaults   []scene.Polarization
}

// Option configures optional routes.
type Option func(*Server)

// WithAnalyzer enables POST /v1/analyses. defaults applies to requests that
// name no polarizations.
func WithAnalyzer(a Analyzer, defaults []scene.Polarization) Option {
	return func(s *Server) {
		s.analyzer = a
		s.defaults = defaults
	}
}

// WithTileLocator sets the base used by GET /v1/tiles.
func WithTileLocator(l geo.CopernicusLocator) Option {
	return func(s *Server) { s.locator = l }
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and
// /v1/tiles routes, plus /v1/analyses when an analyzer is configured.
func NewServer(addr string, ready sharedobs.ReadinessChecker, logger *slog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/tiles", s.handleTiles)
	if s.analyzer != nil {
		mux.HandleFunc("POST /v1/analyses", s.handleAnalyze)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleTiles(w http.ResponseWriter, r *http.Request) {
	bounds, err := geo.ParseBounds(r.URL.Query().Get("aoi"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	plan := TilePlan{Bounds: bounds}
	for _, id := range geo.TilesFor(bounds) {
		plan.Tiles = append(plan.Tiles, PlannedTile{ID: id, URL: s.locator.Locate(id)})
	}
	sharedobs.WriteJSON(w, http.StatusOK, plan)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	req, err := domain.ParseRequest(domain.RawEvent{Value: body}, s.defaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("analysis failed", "request_id", req.ID, "error", err)
		}
		writeError(w, status, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, geo.ErrMalformed),
		errors.Is(err, geo.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoSARData), errors.Is(err, domain.ErrNoElevation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
