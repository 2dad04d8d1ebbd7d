package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"uptimemesh"
	"uptimemesh/internal/store/corrosion"
	"uptimemesh/internal/telemetry"
)

// CorrosionStore implements Store over the shared key/value store's
// SQL-over-HTTP interface, with a bounded retry budget and a process-wide
// request-rate limiter sized by DATABASE_CONCURRENT_REQUESTS: at most that
// many requests start per second, with a burst of the same size. It does
// not bound how many requests are in flight at once.
type CorrosionStore struct {
	client  *corrosion.Client
	retry   RetryPolicy
	limiter *rate.Limiter
}

// New creates a CorrosionStore. concurrentRequests <= 0 disables limiting.
func New(client *corrosion.Client, retry RetryPolicy, concurrentRequests int) *CorrosionStore {
	var limiter *rate.Limiter
	if concurrentRequests > 0 {
		limiter = rate.NewLimiter(rate.Limit(concurrentRequests), concurrentRequests)
	}
	return &CorrosionStore{client: client, retry: retry, limiter: limiter}
}

// EnsureSchema creates the checks/heartbeats/results tables if absent.
func (s *CorrosionStore) EnsureSchema(ctx context.Context) error {
	for _, ddl := range []string{schemaChecks, schemaHeartbeats, schemaResults} {
		if err := s.exec(ctx, "ensure_schema", ddl); err != nil {
			return err
		}
	}
	return nil
}

func (s *CorrosionStore) throttle(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func (s *CorrosionStore) exec(ctx context.Context, op, query string, args ...any) error {
	start := time.Now()
	defer func() { telemetry.StoreRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	if err := s.throttle(ctx); err != nil {
		telemetry.StoreErrors.WithLabelValues(op, Timeout.String()).Inc()
		return &StoreError{Kind: Timeout, Op: op, Err: err}
	}
	err := withRetry(ctx, s.retry, func() error {
		_, err := s.client.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		storeErr := classify(op, err)
		telemetry.StoreErrors.WithLabelValues(op, storeErr.(*StoreError).Kind.String()).Inc()
		return storeErr
	}
	return nil
}

func (s *CorrosionStore) query(ctx context.Context, op, q string, args ...any) ([][]json.RawMessage, error) {
	start := time.Now()
	defer func() { telemetry.StoreRequestLatency.WithLabelValues(op).Observe(time.Since(start).Seconds()) }()

	if err := s.throttle(ctx); err != nil {
		telemetry.StoreErrors.WithLabelValues(op, Timeout.String()).Inc()
		return nil, &StoreError{Kind: Timeout, Op: op, Err: err}
	}
	var rows [][]json.RawMessage
	err := withRetry(ctx, s.retry, func() error {
		r, _, qerr := s.client.QueryContext(ctx, q, args...)
		if qerr != nil {
			return qerr
		}
		rows = r
		return nil
	})
	if err != nil {
		storeErr := classify(op, err)
		telemetry.StoreErrors.WithLabelValues(op, storeErr.(*StoreError).Kind.String()).Inc()
		return nil, storeErr
	}
	return rows, nil
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case err == context.DeadlineExceeded:
		return &StoreError{Kind: Timeout, Op: op, Err: err}
	default:
		return &StoreError{Kind: Unavailable, Op: op, Err: err}
	}
}

// ── checks ──────────────────────────────────────────────────────────────

func (s *CorrosionStore) ListEnabledChecks(ctx context.Context) ([]uptimemesh.Check, error) {
	rows, err := s.query(ctx, "list_enabled_checks",
		`SELECT id, owner_user_id, url, method, headers_json, body_b64,
		        expect_status, timeout_secs, freq_secs, regions_csv, enabled, created_at
		 FROM checks WHERE enabled = 1`)
	if err != nil {
		return nil, err
	}
	out := make([]uptimemesh.Check, 0, len(rows))
	for _, r := range rows {
		c, derr := decodeCheck(r)
		if derr != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_enabled_checks", Err: derr}
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *CorrosionStore) GetCheck(ctx context.Context, id string) (uptimemesh.Check, error) {
	rows, err := s.query(ctx, "get_check",
		`SELECT id, owner_user_id, url, method, headers_json, body_b64,
		        expect_status, timeout_secs, freq_secs, regions_csv, enabled, created_at
		 FROM checks WHERE id = ?`, id)
	if err != nil {
		return uptimemesh.Check{}, err
	}
	if len(rows) == 0 {
		return uptimemesh.Check{}, uptimemesh.ErrNotFound
	}
	c, derr := decodeCheck(rows[0])
	if derr != nil {
		return uptimemesh.Check{}, &StoreError{Kind: Malformed, Op: "get_check", Err: derr}
	}
	return c, nil
}

func decodeCheck(v []json.RawMessage) (uptimemesh.Check, error) {
	if len(v) != 12 {
		return uptimemesh.Check{}, fmt.Errorf("decode check: expected 12 columns, got %d", len(v))
	}
	var c uptimemesh.Check
	var method, headersJSON, bodyB64, regionsCSV string
	var enabled, createdAt int64
	fields := []any{
		&c.ID, &c.OwnerUserID, &c.URL, &method, &headersJSON, &bodyB64,
		&c.ExpectStatus, &c.TimeoutSecs, &c.FrequencySecs, &regionsCSV, &enabled, &createdAt,
	}
	for i, dst := range fields {
		if err := json.Unmarshal(v[i], dst); err != nil {
			return uptimemesh.Check{}, fmt.Errorf("decode check column %d: %w", i, err)
		}
	}
	c.Method = uptimemesh.HTTPMethod(method)
	c.Enabled = enabled != 0
	c.CreatedAt = time.UnixMicro(createdAt).UTC()

	if headersJSON != "" {
		if err := json.Unmarshal([]byte(headersJSON), &c.Headers); err != nil {
			return uptimemesh.Check{}, fmt.Errorf("decode check headers: %w", err)
		}
	}
	if bodyB64 != "" {
		body, err := base64.StdEncoding.DecodeString(bodyB64)
		if err != nil {
			return uptimemesh.Check{}, fmt.Errorf("decode check body: %w", err)
		}
		c.Body = body
	}
	for _, r := range strings.Split(regionsCSV, ",") {
		if r = strings.TrimSpace(r); r != "" {
			c.Regions = append(c.Regions, uptimemesh.Region(r))
		}
	}
	return c, nil
}

// ── heartbeats ──────────────────────────────────────────────────────────

func (s *CorrosionStore) UpsertHeartbeat(ctx context.Context, hb uptimemesh.Heartbeat) error {
	return s.exec(ctx, "upsert_heartbeat", `
		INSERT INTO heartbeats (node_id, region, last_seen_micros, bucket_version, buckets_count, replication_factor)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			region = excluded.region,
			last_seen_micros = excluded.last_seen_micros,
			bucket_version = excluded.bucket_version,
			buckets_count = excluded.buckets_count,
			replication_factor = excluded.replication_factor`,
		hb.NodeID, string(hb.Region), hb.LastSeenMicros, hb.BucketVersion, hb.BucketsCount, hb.ReplicationFactor)
}

func (s *CorrosionStore) ListLiveHeartbeats(ctx context.Context, now int64, threshold time.Duration) ([]uptimemesh.Heartbeat, error) {
	cutoff := now - threshold.Microseconds()
	rows, err := s.query(ctx, "list_live_heartbeats", `
		SELECT node_id, region, last_seen_micros, bucket_version, buckets_count, replication_factor
		FROM heartbeats WHERE last_seen_micros >= ? ORDER BY node_id`, cutoff)
	if err != nil {
		return nil, err
	}
	out := make([]uptimemesh.Heartbeat, 0, len(rows))
	for _, r := range rows {
		if len(r) != 6 {
			return nil, &StoreError{Kind: Malformed, Op: "list_live_heartbeats", Err: fmt.Errorf("expected 6 columns, got %d", len(r))}
		}
		var hb uptimemesh.Heartbeat
		var region string
		if err := json.Unmarshal(r[0], &hb.NodeID); err != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_live_heartbeats", Err: err}
		}
		if err := json.Unmarshal(r[1], &region); err != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_live_heartbeats", Err: err}
		}
		hb.Region = uptimemesh.Region(region)
		if err := json.Unmarshal(r[2], &hb.LastSeenMicros); err != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_live_heartbeats", Err: err}
		}
		if err := json.Unmarshal(r[3], &hb.BucketVersion); err != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_live_heartbeats", Err: err}
		}
		if err := json.Unmarshal(r[4], &hb.BucketsCount); err != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_live_heartbeats", Err: err}
		}
		if err := json.Unmarshal(r[5], &hb.ReplicationFactor); err != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_live_heartbeats", Err: err}
		}
		out = append(out, hb)
	}
	return out, nil
}

// ── results ─────────────────────────────────────────────────────────────

func (s *CorrosionStore) AppendResult(ctx context.Context, row uptimemesh.CheckResult) error {
	var observed any
	if row.ObservedStatus != nil {
		observed = *row.ObservedStatus
	}
	return s.exec(ctx, "append_result", `
		INSERT INTO results (check_id, region, time_bucket, scheduled_at_micros, outcome, response_time_micros, observed_status, executor_node_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(check_id, region, time_bucket, scheduled_at_micros) DO NOTHING`,
		row.CheckID, string(row.Region), row.TimeBucket, row.ScheduledAtMicros,
		string(row.Outcome), row.ResponseTimeMicros, observed, row.ExecutorNodeID)
}

func (s *CorrosionStore) ListResults(ctx context.Context, checkID string, region *uptimemesh.Region, from, to int64) ([]uptimemesh.CheckResult, error) {
	query := `
		SELECT check_id, region, time_bucket, scheduled_at_micros, outcome, response_time_micros, observed_status, executor_node_id
		FROM results WHERE check_id = ? AND scheduled_at_micros >= ? AND scheduled_at_micros < ?`
	args := []any{checkID, from, to}
	if region != nil {
		query += " AND region = ?"
		args = append(args, string(*region))
	}
	query += " ORDER BY scheduled_at_micros ASC"

	rows, err := s.query(ctx, "list_results", query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]uptimemesh.CheckResult, 0, len(rows))
	for _, r := range rows {
		row, derr := decodeResult(r)
		if derr != nil {
			return nil, &StoreError{Kind: Malformed, Op: "list_results", Err: derr}
		}
		out = append(out, row)
	}
	return out, nil
}

func decodeResult(v []json.RawMessage) (uptimemesh.CheckResult, error) {
	if len(v) != 8 {
		return uptimemesh.CheckResult{}, fmt.Errorf("decode result: expected 8 columns, got %d", len(v))
	}
	var row uptimemesh.CheckResult
	var region, outcome string
	if err := json.Unmarshal(v[0], &row.CheckID); err != nil {
		return uptimemesh.CheckResult{}, err
	}
	if err := json.Unmarshal(v[1], &region); err != nil {
		return uptimemesh.CheckResult{}, err
	}
	row.Region = uptimemesh.Region(region)
	if err := json.Unmarshal(v[2], &row.TimeBucket); err != nil {
		return uptimemesh.CheckResult{}, err
	}
	if err := json.Unmarshal(v[3], &row.ScheduledAtMicros); err != nil {
		return uptimemesh.CheckResult{}, err
	}
	if err := json.Unmarshal(v[4], &outcome); err != nil {
		return uptimemesh.CheckResult{}, err
	}
	row.Outcome = uptimemesh.Outcome(outcome)
	if err := json.Unmarshal(v[5], &row.ResponseTimeMicros); err != nil {
		return uptimemesh.CheckResult{}, err
	}
	if len(v[6]) > 0 && string(v[6]) != "null" {
		var status int
		if err := json.Unmarshal(v[6], &status); err != nil {
			return uptimemesh.CheckResult{}, err
		}
		row.ObservedStatus = &status
	}
	if err := json.Unmarshal(v[7], &row.ExecutorNodeID); err != nil {
		return uptimemesh.CheckResult{}, err
	}
	return row, nil
}

var _ Store = (*CorrosionStore)(nil)
