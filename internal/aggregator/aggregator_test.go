package aggregator

import (
	"context"
	"testing"
	"time"

	"uptimemesh"
)

type fakeStore struct {
	check   uptimemesh.Check
	results []uptimemesh.CheckResult
}

func (f *fakeStore) ListEnabledChecks(ctx context.Context) ([]uptimemesh.Check, error) { return nil, nil }
func (f *fakeStore) GetCheck(ctx context.Context, id string) (uptimemesh.Check, error) {
	return f.check, nil
}
func (f *fakeStore) UpsertHeartbeat(ctx context.Context, hb uptimemesh.Heartbeat) error { return nil }
func (f *fakeStore) ListLiveHeartbeats(ctx context.Context, now int64, threshold time.Duration) ([]uptimemesh.Heartbeat, error) {
	return nil, nil
}
func (f *fakeStore) AppendResult(ctx context.Context, row uptimemesh.CheckResult) error { return nil }
func (f *fakeStore) ListResults(ctx context.Context, checkID string, region *uptimemesh.Region, from, to int64) ([]uptimemesh.CheckResult, error) {
	var out []uptimemesh.CheckResult
	for _, r := range f.results {
		if r.ScheduledAtMicros >= from && r.ScheduledAtMicros < to {
			out = append(out, r)
		}
	}
	return out, nil
}

func okRow(scheduledAt int64, region uptimemesh.Region, responseMicros uint64) uptimemesh.CheckResult {
	return uptimemesh.CheckResult{
		Region:            region,
		ScheduledAtMicros: scheduledAt,
		Outcome:           uptimemesh.OutcomeOK,
		ResponseTimeMicros: responseMicros,
	}
}

// S4 — metrics math: 9 OK rows with response times 100000..900000us plus one
// TIMEOUT row. uptime=90%, avg is the true mean of the OK sample, P95/P99
// both land on the nearest-rank formula's last element since ceil(0.95*9)
// and ceil(0.99*9) both equal 9.
func TestGetMetrics_UptimeAndPercentileMath(t *testing.T) {
	var results []uptimemesh.CheckResult
	var sum uint64
	for i := int64(1); i <= 9; i++ {
		rt := uint64(i * 100_000)
		sum += rt
		results = append(results, okRow(i, uptimemesh.RegionHelsinki, rt))
	}
	results = append(results, uptimemesh.CheckResult{
		Region:            uptimemesh.RegionHelsinki,
		ScheduledAtMicros: 10,
		Outcome:           uptimemesh.OutcomeTimeout,
	})

	fs := &fakeStore{
		check:   uptimemesh.Check{Regions: []uptimemesh.Region{uptimemesh.RegionHelsinki}},
		results: results,
	}
	a := New(fs)

	resp, err := a.GetMetrics(context.Background(), "check-1", 0, 11)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}

	if resp.Overall.UptimePercent == nil || *resp.Overall.UptimePercent != 90.0 {
		t.Fatalf("uptime_percent = %v, want 90.0", resp.Overall.UptimePercent)
	}
	wantAvg := sum / 9
	if resp.Overall.AvgResponseTimeMicros != wantAvg {
		t.Fatalf("avg = %d, want %d", resp.Overall.AvgResponseTimeMicros, wantAvg)
	}
	if resp.Overall.P95ResponseTimeMicros != 900_000 {
		t.Fatalf("p95 = %d, want 900000", resp.Overall.P95ResponseTimeMicros)
	}
	if resp.Overall.P99ResponseTimeMicros != 900_000 {
		t.Fatalf("p99 = %d, want 900000", resp.Overall.P99ResponseTimeMicros)
	}
}

func TestGetMetrics_EmptyWindowIsNullUptime(t *testing.T) {
	fs := &fakeStore{check: uptimemesh.Check{Regions: []uptimemesh.Region{uptimemesh.RegionHelsinki}}}
	a := New(fs)

	resp, err := a.GetMetrics(context.Background(), "check-1", 0, 1000)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if resp.Overall.UptimePercent != nil {
		t.Fatalf("uptime_percent = %v, want nil", *resp.Overall.UptimePercent)
	}
	if _, ok := resp.ByRegion[uptimemesh.RegionHelsinki]; !ok {
		t.Fatal("expected a zero-value entry for the configured region even with no rows")
	}
}

func TestGetMetrics_PerRegionBreakdownIsolatesRows(t *testing.T) {
	fs := &fakeStore{
		check: uptimemesh.Check{Regions: []uptimemesh.Region{uptimemesh.RegionHelsinki, uptimemesh.RegionOrmelle}},
		results: []uptimemesh.CheckResult{
			okRow(1, uptimemesh.RegionHelsinki, 100_000),
			{Region: uptimemesh.RegionOrmelle, ScheduledAtMicros: 1, Outcome: uptimemesh.OutcomeTimeout},
		},
	}
	a := New(fs)

	resp, err := a.GetMetrics(context.Background(), "check-1", 0, 100)
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}

	helsinki := resp.ByRegion[uptimemesh.RegionHelsinki]
	if helsinki.UptimePercent == nil || *helsinki.UptimePercent != 100.0 {
		t.Fatalf("helsinki uptime = %v, want 100.0", helsinki.UptimePercent)
	}
	ormelle := resp.ByRegion[uptimemesh.RegionOrmelle]
	if ormelle.UptimePercent == nil || *ormelle.UptimePercent != 0.0 {
		t.Fatalf("ormelle uptime = %v, want 0.0", ormelle.UptimePercent)
	}
}

// S6 — graph bucketing: 48 hours of hourly OK rows for one region, queried
// with granularity=Hourly over exactly [T, T+48h), returns 48 points.
func TestGetMetricsGraph_FortyEightHourlyPoints(t *testing.T) {
	const hour = int64(3600 * 1_000_000)
	var results []uptimemesh.CheckResult
	for i := int64(0); i < 48; i++ {
		scheduledAt := i*hour + 1
		results = append(results, okRow(scheduledAt, uptimemesh.RegionHelsinki, 50_000))
	}

	fs := &fakeStore{
		check:   uptimemesh.Check{Regions: []uptimemesh.Region{uptimemesh.RegionHelsinki}},
		results: results,
	}
	a := New(fs)

	points, err := a.GetMetricsGraph(context.Background(), "check-1", 0, 48*hour, uptimemesh.GranularityHourly)
	if err != nil {
		t.Fatalf("GetMetricsGraph: %v", err)
	}
	if len(points) != 48 {
		t.Fatalf("len(points) = %d, want 48", len(points))
	}
	for i, p := range points {
		wantStart := int64(i) * hour
		if p.BucketStartMicros != wantStart {
			t.Fatalf("point %d start = %d, want %d", i, p.BucketStartMicros, wantStart)
		}
		helsinki := p.ByRegion[uptimemesh.RegionHelsinki]
		if helsinki.UptimePercent == nil || *helsinki.UptimePercent != 100.0 {
			t.Fatalf("point %d uptime = %v, want 100.0", i, helsinki.UptimePercent)
		}
	}
}
