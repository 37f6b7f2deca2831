// Package httpapi exposes the offline layer to the dashboard over HTTP.
//
// The daemon listens on localhost; the dashboard is the only intended
// client. Cache writes answer 503 when the store rejects them so the UI can
// tell the user the copy is incomplete, cache reads degrade to empty
// results, and a failed alert enqueue answers 507 because in that case no
// record of the alert exists anywhere.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harborlight/relief-offline/internal/alertqueue"
	"github.com/harborlight/relief-offline/internal/domain"
)

// maxBodyBytes bounds request bodies. Tile batches dominate and stay well
// under this.
const maxBodyBytes = 32 << 20

// ReadinessChecker reports whether the store is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// CacheManager is the cache surface the API exposes.
type CacheManager interface {
	CacheDisasters(ctx context.Context, events []domain.DisasterEvent) error
	CachedDisasters(ctx context.Context) []domain.DisasterEvent
	CacheWeather(ctx context.Context, snapshot domain.WeatherSnapshot) error
	CachedWeather(ctx context.Context, location string) (domain.WeatherSnapshot, bool)
	CacheFacilities(ctx context.Context, facilities []domain.Facility) error
	CachedFacilities(ctx context.Context) []domain.Facility
	CacheGuidelines(ctx context.Context, guidelines []domain.Guideline) error
	CachedGuideline(ctx context.Context, disasterType string) (domain.Guideline, bool)
	CachedGuidelines(ctx context.Context) []domain.Guideline
	CacheTiles(ctx context.Context, tiles []domain.TileRecord) error
	CachedTile(ctx context.Context, url string) ([]byte, bool)
	ClearOldCache(ctx context.Context) (int, error)
}

// AlertQueue is the queue surface the API exposes.
type AlertQueue interface {
	SendOrEnqueue(ctx context.Context, payload json.RawMessage) (delivered bool, id uint64, err error)
	ListPending(ctx context.Context) ([]domain.PendingAlert, error)
	Remove(ctx context.Context, id uint64) error
	Flush(ctx context.Context, trigger string) (alertqueue.FlushResult, error)
	PendingCount(ctx context.Context) (int, error)
}

// Connectivity is the monitor surface the API exposes: the dashboard reads
// the state for its badge and forwards platform transitions.
type Connectivity interface {
	Online() bool
	Set(online bool)
}

// UsageReporter supplies the storage panel numbers.
type UsageReporter interface {
	Usage(ctx context.Context) (domain.StorageUsage, bool)
}

// Deps collects the components the server fronts.
type Deps struct {
	Ready        ReadinessChecker
	Cache        CacheManager
	Alerts       AlertQueue
	Connectivity Connectivity
	Usage        UsageReporter
}

// Server exposes the cache, alert queue, connectivity, and storage usage
// endpoints plus health and metrics.
type Server struct {
	httpServer *http.Server
	cache      CacheManager
	alerts     AlertQueue
	conn       Connectivity
	usage      UsageReporter
	logger     *slog.Logger
}

// NewServer wires all routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// A manual flush response waits for per-alert retries.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		cache:  deps.Cache,
		alerts: deps.Alerts,
		conn:   deps.Connectivity,
		usage:  deps.Usage,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("PUT /v1/cache/disasters", s.handleCacheDisasters)
	mux.HandleFunc("GET /v1/cache/disasters", s.handleGetDisasters)
	mux.HandleFunc("PUT /v1/cache/weather", s.handleCacheWeather)
	mux.HandleFunc("GET /v1/cache/weather/{location}", s.handleGetWeather)
	mux.HandleFunc("PUT /v1/cache/facilities", s.handleCacheFacilities)
	mux.HandleFunc("GET /v1/cache/facilities", s.handleGetFacilities)
	mux.HandleFunc("PUT /v1/cache/guidelines", s.handleCacheGuidelines)
	mux.HandleFunc("GET /v1/cache/guidelines", s.handleGetGuidelines)
	mux.HandleFunc("GET /v1/cache/guidelines/{type}", s.handleGetGuideline)
	mux.HandleFunc("PUT /v1/cache/tiles", s.handleCacheTiles)
	mux.HandleFunc("GET /v1/cache/tile", s.handleGetTile)
	mux.HandleFunc("POST /v1/cache/sweep", s.handleSweep)

	mux.HandleFunc("POST /v1/alerts", s.handleSendAlert)
	mux.HandleFunc("GET /v1/alerts/pending", s.handleListPending)
	mux.HandleFunc("DELETE /v1/alerts/{id}", s.handleRemoveAlert)
	mux.HandleFunc("POST /v1/alerts/flush", s.handleFlush)

	mux.HandleFunc("GET /v1/connectivity", s.handleGetConnectivity)
	mux.HandleFunc("POST /v1/connectivity", s.handleSetConnectivity)

	mux.HandleFunc("GET /v1/storage", s.handleStorageUsage)

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

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody decodes a JSON request body into T, answering 400 itself when
// the body does not parse.
func decodeBody[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return v, false
	}
	return v, true
}
