package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"uptimemesh"
)

type fakeMetrics struct {
	resp   uptimemesh.MetricsResponse
	points []uptimemesh.GraphPoint
	err    error
}

func (f *fakeMetrics) GetMetrics(ctx context.Context, checkID string, from, to int64) (uptimemesh.MetricsResponse, error) {
	return f.resp, f.err
}

func (f *fakeMetrics) GetMetricsGraph(ctx context.Context, checkID string, from, to int64, granularity uptimemesh.Granularity) ([]uptimemesh.GraphPoint, error) {
	return f.points, f.err
}

type fakeLiveness struct {
	state uptimemesh.NodeState
}

func (f *fakeLiveness) State() uptimemesh.NodeState { return f.state }

func TestHandleGetMetrics_OK(t *testing.T) {
	uptime := 90.0
	fm := &fakeMetrics{resp: uptimemesh.MetricsResponse{Overall: uptimemesh.SingleMetrics{UptimePercent: &uptime}}}
	s := New(fm, &fakeLiveness{state: uptimemesh.NodeLive})

	req := httptest.NewRequest(http.MethodGet, "/checks/check-1/metrics?from=2026-07-30T00:00:00Z&to=2026-07-31T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got uptimemesh.MetricsResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Overall.UptimePercent == nil || *got.Overall.UptimePercent != 90.0 {
		t.Fatalf("uptime_percent = %v, want 90.0", got.Overall.UptimePercent)
	}
}

func TestHandleGetMetrics_NotFound(t *testing.T) {
	fm := &fakeMetrics{err: uptimemesh.ErrNotFound}
	s := New(fm, &fakeLiveness{})

	req := httptest.NewRequest(http.MethodGet, "/checks/missing/metrics?from=2026-07-30T00:00:00Z&to=2026-07-31T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleGetMetrics_StoreUnavailableIs5xx(t *testing.T) {
	fm := &fakeMetrics{err: errUnavailableForTest{}}
	s := New(fm, &fakeLiveness{})

	req := httptest.NewRequest(http.MethodGet, "/checks/check-1/metrics?from=2026-07-30T00:00:00Z&to=2026-07-31T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

type errUnavailableForTest struct{}

func (errUnavailableForTest) Error() string { return "store unavailable" }

func TestHandleGetMetrics_BadWindow(t *testing.T) {
	s := New(&fakeMetrics{}, &fakeLiveness{})

	req := httptest.NewRequest(http.MethodGet, "/checks/check-1/metrics?from=nope&to=2026-07-31T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleHealthz_FencedNodeReturns503(t *testing.T) {
	s := New(&fakeMetrics{}, &fakeLiveness{state: uptimemesh.NodeDead})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleHealthz_LiveNodeReturns200(t *testing.T) {
	s := New(&fakeMetrics{}, &fakeLiveness{state: uptimemesh.NodeLive})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
