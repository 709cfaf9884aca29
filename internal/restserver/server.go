// Package restserver serves the read-oriented JSON API over the stored
// weather data.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	nwsclient "github.com/weatherdepot/weatherdepot/internal/clients/nws"
	"github.com/weatherdepot/weatherdepot/internal/database"
	"github.com/weatherdepot/weatherdepot/internal/fabric"
	ingestnws "github.com/weatherdepot/weatherdepot/internal/ingest/nws"
	"github.com/weatherdepot/weatherdepot/internal/ingestlog"
	"github.com/weatherdepot/weatherdepot/pkg/config"
	"github.com/weatherdepot/weatherdepot/pkg/responseformat"
	"go.uber.org/zap"
)

// Per-route freshness windows.
var (
	policyMetrics = cachePolicy{ttl: 15 * time.Second, stale: 30 * time.Second}
	policyGeo     = cachePolicy{ttl: 60 * time.Second, stale: 120 * time.Second}
	policySummary = cachePolicy{ttl: 60 * time.Second, stale: 120 * time.Second}
	policyLayer   = cachePolicy{ttl: 5 * time.Minute, stale: 10 * time.Minute}
)

// Server is the REST API over the API-side store.
type Server struct {
	cfg     *config.Config
	db      *database.Client
	store   *database.Store
	metrics *fabric.Metrics
	nws     *nwsclient.Client
	nwsPipe *ingestnws.Pipeline
	journal *ingestlog.Journal
	cache   *responseCache
	logger  *zap.SugaredLogger

	httpServer *http.Server
}

// NewServer wires the API handlers. The store must be bound to the API
// pool; the NWS pipeline carries the live-fetch path through the ingest
// pool.
func NewServer(cfg *config.Config, db *database.Client, store *database.Store, metrics *fabric.Metrics, nws *nwsclient.Client, nwsPipe *ingestnws.Pipeline, journal *ingestlog.Journal, logger *zap.SugaredLogger) *Server {
	return &Server{
		cfg:     cfg,
		db:      db,
		store:   store,
		metrics: metrics,
		nws:     nws,
		nwsPipe: nwsPipe,
		journal: journal,
		cache:   newResponseCache(),
		logger:  logger,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/api/metrics/summary", s.handleMetricsSummary).Methods("GET")
	r.HandleFunc("/api/metrics/external", s.handleMetricsExternal).Methods("GET")

	r.HandleFunc("/api/gridpoints", s.handleGridpoints).Methods("GET")
	r.HandleFunc("/api/alerts", s.handleAlerts).Methods("GET")
	r.HandleFunc("/api/stations/near", s.handleStationsNear).Methods("GET")
	r.HandleFunc("/api/stations/all", s.handleStationsAll).Methods("GET")

	r.HandleFunc("/api/forecast/hourly", s.handleForecastHourly).Methods("GET")
	r.HandleFunc("/api/forecast/daily", s.handleForecastDaily).Methods("GET")
	r.HandleFunc("/api/forecast/hourly/point", s.handleForecastHourlyPoint).Methods("GET")

	r.HandleFunc("/api/history/daily", s.handleHistoryDaily).Methods("GET")
	r.HandleFunc("/api/history/gridpoint", s.handleHistoryGridpoint).Methods("GET")
	r.HandleFunc("/api/point/summary", s.handlePointSummary).Methods("GET")

	r.HandleFunc("/layers/temperature", s.handleLayerTemperature).Methods("GET")
	r.HandleFunc("/layers/precipitation", s.handleLayerPrecipitation).Methods("GET")

	r.HandleFunc("/api/tracked-points", s.handleTrackedList).Methods("GET")
	r.HandleFunc("/api/tracked-points", s.handleTrackedCreate).Methods("POST")
	r.HandleFunc("/api/tracked-points", s.handleTrackedDelete).Methods("DELETE")
	r.HandleFunc("/api/tracked-points/refresh", s.handleTrackedRefresh).Methods("POST")

	r.HandleFunc("/api/ingest/runs", s.handleIngestRuns).Methods("GET")
	r.HandleFunc("/api/ingest/events", s.handleIngestEvents).Methods("GET")

	r.HandleFunc("/api/ml/runs", s.handleMLRuns).Methods("GET")
	r.HandleFunc("/api/ml/predictions/latest", s.handleMLPredictionsLatest).Methods("GET")
	r.HandleFunc("/api/ml/weather/latest", s.handleMLWeatherLatest).Methods("GET")
	r.HandleFunc("/api/ml/weather/forecast", s.handleMLWeatherForecast).Methods("GET")

	return r
}

// Start begins serving and shuts the listener down when the context ends.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "If-None-Match", "Accept"}),
	)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.API.Port),
		Handler:      cors(s.Router()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.logger.Infow("REST server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("REST server exited", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorw("REST server shutdown failed", "error", err)
		}
	}()
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeData serves a payload in the requested format, uncached.
func (s *Server) writeData(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	f := responseformat.FromRequest(r)
	if err := responseformat.Write(w, f, status, v); err != nil {
		s.logger.Errorw("response write failed", "path", r.URL.Path, "error", err)
	}
}

// writeError emits the stable {error, message?} envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, token, message string) {
	s.writeData(w, r, status, errorBody{Error: token, Message: message})
}

// writeStoreError maps a storage failure without leaking SQL detail.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, database.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, "not_found", "")
		return
	}
	s.logger.Errorw("storage failure", "path", r.URL.Path, "error", err)
	s.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
}

// writeUpstreamError maps a fabric failure to 503 with the upstream name.
func (s *Server) writeUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	token := "upstream_unavailable"
	var ue *fabric.UpstreamError
	if errors.As(err, &ue) && ue.Upstream == nwsclient.Upstream {
		token = "nws_unavailable"
	}
	if errors.Is(err, fabric.ErrBreakerOpen) {
		token = "nws_unavailable"
	}
	s.logger.Warnw("upstream failure on API path", "path", r.URL.Path, "error", err)
	s.writeError(w, r, http.StatusServiceUnavailable, token, err.Error())
}

// serveCached fills the response cache on miss and honours If-None-Match.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, key string, pol cachePolicy, build func() (interface{}, error)) {
	f := responseformat.FromRequest(r)
	key = key + "|fmt=" + string(f)

	entry, ok := s.cache.get(key)
	if !ok {
		payload, err := build()
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		body, err := f.Marshal(payload)
		if err != nil {
			s.logger.Errorw("response encode failed", "path", r.URL.Path, "error", err)
			s.writeError(w, r, http.StatusInternalServerError, "internal_error", "")
			return
		}
		entry = s.cache.put(key, body, f.ContentType(), pol.ttl)
	}

	w.Header().Set("Content-Type", entry.contentType)
	w.Header().Set("ETag", entry.etag)
	w.Header().Set("Cache-Control", pol.cacheControl())
	if r.Header.Get("If-None-Match") == entry.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(entry.body); err != nil {
		s.logger.Errorw("response write failed", "path", r.URL.Path, "error", err)
	}
}
