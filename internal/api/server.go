// Package api exposes the read-side aggregator contract over HTTP:
// get_metrics, get_metrics_graph, a Prometheus scrape endpoint, and a
// liveness probe. Auth, sessions, and CRUD on checks are an external
// collaborator (the façade) — this package never implements them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"uptimemesh"
	"uptimemesh/internal/heartbeat"
)

// MetricsSource is the subset of internal/aggregator this package depends
// on, so tests can inject a fake implementation.
type MetricsSource interface {
	GetMetrics(ctx context.Context, checkID string, from, to int64) (uptimemesh.MetricsResponse, error)
	GetMetricsGraph(ctx context.Context, checkID string, from, to int64, granularity uptimemesh.Granularity) ([]uptimemesh.GraphPoint, error)
}

// LivenessSource reports this node's own membership state for /healthz.
type LivenessSource interface {
	State() uptimemesh.NodeState
}

// Server is the HTTP surface over the aggregator.
type Server struct {
	metrics   MetricsSource
	liveness  LivenessSource
}

// New constructs a Server.
func New(metrics MetricsSource, liveness LivenessSource) *Server {
	return &Server{metrics: metrics, liveness: liveness}
}

// Handler returns the chi router with every route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/checks/{checkID}", func(r chi.Router) {
		r.Get("/metrics", s.handleGetMetrics)
		r.Get("/metrics/graph", s.handleGetMetricsGraph)
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.liveness.State()
	status := http.StatusOK
	if state.Fenced() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": state.String()})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "checkID")
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	resp, err := s.metrics.GetMetrics(r.Context(), checkID, from, to)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMetricsGraph(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "checkID")
	from, to, ok := parseWindow(w, r)
	if !ok {
		return
	}

	granularity := uptimemesh.GranularityHourly
	if g := r.URL.Query().Get("granularity"); g == "daily" {
		granularity = uptimemesh.GranularityDaily
	}

	points, err := s.metrics.GetMetricsGraph(r.Context(), checkID, from, to, granularity)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// parseWindow reads the from/to query parameters as RFC 3339 UTC timestamps
// the external API's documented wire format — and converts them to the
// internal microsecond representation every other layer uses.
func parseWindow(w http.ResponseWriter, r *http.Request) (from, to int64, ok bool) {
	q := r.URL.Query()
	fromT, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be an RFC 3339 UTC timestamp")
		return 0, 0, false
	}
	toT, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be an RFC 3339 UTC timestamp")
		return 0, 0, false
	}
	return fromT.UnixMicro(), toT.UnixMicro(), true
}

// writeStoreError maps a store-layer error to the façade's status contract
// 404 for a missing check, 5xx only for store unavailability.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, uptimemesh.ErrNotFound) {
		writeError(w, http.StatusNotFound, "check not found")
		return
	}
	writeError(w, http.StatusServiceUnavailable, "store unavailable")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var _ LivenessSource = (*heartbeat.Service)(nil)
