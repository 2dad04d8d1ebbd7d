// Package aggregator computes uptime percentages and response-time
// percentiles on read. It never writes anything; every call
// re-scans the requested window through the store adapter and reduces the
// rows in memory.
package aggregator

import (
	"context"
	"math"
	"sort"
	"time"

	"uptimemesh"
	"uptimemesh/internal/store"
	"uptimemesh/internal/telemetry"
)

// Aggregator answers get_metrics and get_metrics_graph queries.
type Aggregator struct {
	store store.Store
}

// New constructs an Aggregator around a store adapter.
func New(st store.Store) *Aggregator {
	return &Aggregator{store: st}
}

// GetMetrics computes the overall and per-region summary for one check over
// [from, to). Regions the check is configured for but with zero rows in the
// window still get an entry with a nil UptimePercent.
func (a *Aggregator) GetMetrics(ctx context.Context, checkID string, from, to int64) (uptimemesh.MetricsResponse, error) {
	start := time.Now()
	defer func() { telemetry.AggregatorQueryLatency.WithLabelValues("get_metrics").Observe(time.Since(start).Seconds()) }()

	check, err := a.store.GetCheck(ctx, checkID)
	if err != nil {
		return uptimemesh.MetricsResponse{}, err
	}

	rows, err := a.store.ListResults(ctx, checkID, nil, from, to)
	if err != nil {
		return uptimemesh.MetricsResponse{}, err
	}

	resp := uptimemesh.MetricsResponse{
		Overall:  summarize(rows),
		ByRegion: make(map[uptimemesh.Region]uptimemesh.SingleMetrics, len(check.Regions)),
	}
	for _, region := range check.Regions {
		resp.ByRegion[region] = summarize(filterRegion(rows, region))
	}
	return resp, nil
}

// GetMetricsGraph computes one SingleMetrics-per-region point for each
// aligned bucket of width granularity covering [from, to), ordered by bucket
// start.
func (a *Aggregator) GetMetricsGraph(ctx context.Context, checkID string, from, to int64, granularity uptimemesh.Granularity) ([]uptimemesh.GraphPoint, error) {
	start := time.Now()
	defer func() {
		telemetry.AggregatorQueryLatency.WithLabelValues("get_metrics_graph").Observe(time.Since(start).Seconds())
	}()

	check, err := a.store.GetCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}

	rows, err := a.store.ListResults(ctx, checkID, nil, from, to)
	if err != nil {
		return nil, err
	}

	width := granularity.Micros()
	first := floorToWidth(from, width)

	byBucket := make(map[int64][]uptimemesh.CheckResult)
	for _, row := range rows {
		b := floorToWidth(row.ScheduledAtMicros, width)
		byBucket[b] = append(byBucket[b], row)
	}

	var points []uptimemesh.GraphPoint
	for start := first; start < to; start += width {
		bucketRows := byBucket[start]
		point := uptimemesh.GraphPoint{
			BucketStartMicros: start,
			ByRegion:          make(map[uptimemesh.Region]uptimemesh.SingleMetrics, len(check.Regions)),
		}
		for _, region := range check.Regions {
			point.ByRegion[region] = summarize(filterRegion(bucketRows, region))
		}
		points = append(points, point)
	}
	return points, nil
}

func floorToWidth(t, width int64) int64 {
	if width <= 0 {
		return t
	}
	return (t / width) * width
}

func filterRegion(rows []uptimemesh.CheckResult, region uptimemesh.Region) []uptimemesh.CheckResult {
	out := make([]uptimemesh.CheckResult, 0, len(rows))
	for _, r := range rows {
		if r.Region == region {
			out = append(out, r)
		}
	}
	return out
}

// summarize reduces a set of rows to one SingleMetrics: uptime over all
// rows, latency percentiles over the OK subset only.
func summarize(rows []uptimemesh.CheckResult) uptimemesh.SingleMetrics {
	if len(rows) == 0 {
		return uptimemesh.SingleMetrics{}
	}

	ok := 0
	samples := make([]uint64, 0, len(rows))
	var sum uint64
	for _, r := range rows {
		if r.Outcome == uptimemesh.OutcomeOK {
			ok++
			samples = append(samples, r.ResponseTimeMicros)
			sum += r.ResponseTimeMicros
		}
	}

	uptime := 100 * float64(ok) / float64(len(rows))
	metrics := uptimemesh.SingleMetrics{UptimePercent: &uptime}
	if len(samples) == 0 {
		return metrics
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	metrics.AvgResponseTimeMicros = sum / uint64(len(samples))
	metrics.P95ResponseTimeMicros = nearestRank(samples, 0.95)
	metrics.P99ResponseTimeMicros = nearestRank(samples, 0.99)
	return metrics
}

// nearestRank returns the p-th percentile of a sorted sample using
// ceil(p*n), 1-indexed.
func nearestRank(sorted []uint64, p float64) uint64 {
	n := len(sorted)
	rank := int(math.Ceil(p * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}
