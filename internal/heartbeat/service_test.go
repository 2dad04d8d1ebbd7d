package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"uptimemesh"
	"uptimemesh/internal/clock"
)

// --- fakes ---

type fakeStore struct {
	upsertErr error
	upserts   []uptimemesh.Heartbeat
	live      []uptimemesh.Heartbeat
	listErr   error
}

func (f *fakeStore) ListEnabledChecks(context.Context) ([]uptimemesh.Check, error) { return nil, nil }
func (f *fakeStore) GetCheck(context.Context, string) (uptimemesh.Check, error) {
	return uptimemesh.Check{}, nil
}

func (f *fakeStore) UpsertHeartbeat(_ context.Context, hb uptimemesh.Heartbeat) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, hb)
	return nil
}

func (f *fakeStore) ListLiveHeartbeats(context.Context, int64, time.Duration) ([]uptimemesh.Heartbeat, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.live, nil
}

func (f *fakeStore) AppendResult(context.Context, uptimemesh.CheckResult) error { return nil }
func (f *fakeStore) ListResults(context.Context, string, *uptimemesh.Region, int64, int64) ([]uptimemesh.CheckResult, error) {
	return nil, nil
}

func testConfig() Config {
	return Config{
		Self:              uptimemesh.NodeIdentity{ID: "self", Region: uptimemesh.RegionFalkenstein},
		Interval:          time.Second,
		BucketsCount:      128,
		BucketVersion:     1,
		ReplicationFactor: 3,
	}
}

// --- tests ---

func TestService_FirstWriteTransitionsJoiningToLive(t *testing.T) {
	st := &fakeStore{}
	svc := New(st, clock.NewManual(0), testConfig(), slog.Default())

	if got := svc.State(); got != uptimemesh.NodeJoining {
		t.Fatalf("initial state = %v, want Joining", got)
	}

	svc.tick(context.Background())

	if got := svc.State(); got != uptimemesh.NodeLive {
		t.Fatalf("state after first tick = %v, want Live", got)
	}
	if len(st.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(st.upserts))
	}
}

func TestService_SelfFencesAfterThreeFailures(t *testing.T) {
	st := &fakeStore{upsertErr: errors.New("unavailable")}
	svc := New(st, clock.NewManual(0), testConfig(), slog.Default())
	svc.mu.Lock()
	svc.state = uptimemesh.NodeLive
	svc.mu.Unlock()

	ctx := context.Background()
	svc.tick(ctx) // 1st failure: Live -> Suspect
	if got := svc.State(); got != uptimemesh.NodeSuspect {
		t.Fatalf("state after 1 failure = %v, want Suspect", got)
	}
	if svc.IsFenced() {
		t.Fatal("must not be fenced after a single failure")
	}

	svc.tick(ctx) // 2nd failure
	if svc.IsFenced() {
		t.Fatal("must not be fenced after two failures")
	}

	svc.tick(ctx) // 3rd failure -> Dead
	if got := svc.State(); got != uptimemesh.NodeDead {
		t.Fatalf("state after 3 failures = %v, want Dead", got)
	}
	if !svc.IsFenced() {
		t.Fatal("must be fenced after 3 consecutive failures")
	}
}

func TestService_RecoversFromSuspect(t *testing.T) {
	st := &fakeStore{upsertErr: errors.New("unavailable")}
	svc := New(st, clock.NewManual(0), testConfig(), slog.Default())
	svc.mu.Lock()
	svc.state = uptimemesh.NodeLive
	svc.mu.Unlock()

	ctx := context.Background()
	svc.tick(ctx)
	if got := svc.State(); got != uptimemesh.NodeSuspect {
		t.Fatalf("state = %v, want Suspect", got)
	}

	st.upsertErr = nil
	svc.tick(ctx)
	if got := svc.State(); got != uptimemesh.NodeLive {
		t.Fatalf("state after recovery = %v, want Live", got)
	}
	if svc.IsFenced() {
		t.Fatal("must not be fenced after recovery")
	}
}

func TestService_RefreshViewExcludesMismatchedBucketVersion(t *testing.T) {
	st := &fakeStore{
		live: []uptimemesh.Heartbeat{
			{NodeID: "a", BucketVersion: 1},
			{NodeID: "b", BucketVersion: 2}, // stale ring generation, excluded
			{NodeID: "c", BucketVersion: 1},
		},
	}
	svc := New(st, clock.NewManual(0), testConfig(), slog.Default())

	svc.refreshView(context.Background())

	view := svc.View()
	if len(view.LiveNodes) != 2 {
		t.Fatalf("live nodes = %v, want 2 entries (a, c)", view.LiveNodes)
	}
	for _, id := range view.LiveNodes {
		if id == "b" {
			t.Fatal("node with mismatched bucket_version must be excluded")
		}
	}
	if view.BucketsCount != 128 || view.ReplicationFactor != 3 {
		t.Fatalf("ring params not carried through: %+v", view)
	}
}

func TestService_RefreshViewKeepsLastGoodOnStoreError(t *testing.T) {
	st := &fakeStore{live: []uptimemesh.Heartbeat{{NodeID: "a", BucketVersion: 1}}}
	svc := New(st, clock.NewManual(0), testConfig(), slog.Default())

	svc.refreshView(context.Background())
	want := svc.View()

	st.listErr = errors.New("store unavailable")
	svc.refreshView(context.Background())

	got := svc.View()
	if len(got.LiveNodes) != len(want.LiveNodes) {
		t.Fatalf("view changed on store error: got %+v, want unchanged %+v", got, want)
	}
}
