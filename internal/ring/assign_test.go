package ring

import (
	"fmt"
	"math/rand"
	"testing"

	"uptimemesh"
)

func nodes(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("node-%d", i)
	}
	return ids
}

func TestAssign_ReturnsMinReplicationFactorDistinctLiveNodes(t *testing.T) {
	view := uptimemesh.RingView{LiveNodes: nodes(5), BucketsCount: 64, ReplicationFactor: 3}

	for i := 0; i < 200; i++ {
		checkID := fmt.Sprintf("check-%d", i)
		got := Assign(view, checkID)

		if len(got) != 3 {
			t.Fatalf("checkID=%s: len=%d, want 3", checkID, len(got))
		}
		seen := map[string]bool{}
		live := map[string]bool{}
		for _, id := range view.LiveNodes {
			live[id] = true
		}
		for _, id := range got {
			if seen[id] {
				t.Fatalf("checkID=%s: duplicate node %s in %v", checkID, id, got)
			}
			seen[id] = true
			if !live[id] {
				t.Fatalf("checkID=%s: node %s not in live set", checkID, id)
			}
		}
	}
}

func TestAssign_ReplicationFactorClampedToLiveNodeCount(t *testing.T) {
	view := uptimemesh.RingView{LiveNodes: nodes(2), BucketsCount: 8, ReplicationFactor: 5}

	got := Assign(view, "some-check")
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2 (clamped to N)", len(got))
	}
}

func TestAssign_NoLiveNodesReturnsNil(t *testing.T) {
	view := uptimemesh.RingView{LiveNodes: nil, BucketsCount: 8, ReplicationFactor: 2}
	if got := Assign(view, "x"); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestAssign_Deterministic(t *testing.T) {
	view := uptimemesh.RingView{LiveNodes: nodes(7), BucketsCount: 128, ReplicationFactor: 3}
	checkID := "stable-check-id"

	first := Assign(view, checkID)
	for i := 0; i < 10; i++ {
		again := Assign(view, checkID)
		if fmt.Sprint(first) != fmt.Sprint(again) {
			t.Fatalf("assignment not deterministic: %v != %v", first, again)
		}
	}
}

// Assignment basics: N=3, B=20, R=2, primary bucket=7 -> 7 mod 3 = 1 -> B.
func TestAssign_PrimaryOwnerIncludedAndStable(t *testing.T) {
	view := uptimemesh.RingView{LiveNodes: []string{"A", "B", "C"}, BucketsCount: 20, ReplicationFactor: 2}

	// Synthesize a check_id whose primary bucket is exactly 7 by brute force
	// search over the hash space.
	var checkID string
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("s1-check-%d", i)
		if primaryBucket(candidate, 20) == 7 {
			checkID = candidate
			break
		}
	}

	got := Assign(view, checkID)
	if len(got) != 2 {
		t.Fatalf("len=%d, want 2", len(got))
	}
	foundB := false
	for _, id := range got {
		if id == "B" {
			foundB = true
		}
	}
	if !foundB {
		t.Fatalf("assignment %v must include B (primary owner, bucket 7 mod 3 = 1)", got)
	}

	again := Assign(view, checkID)
	if fmt.Sprint(got) != fmt.Sprint(again) {
		t.Fatalf("re-running assignment changed the result: %v != %v", got, again)
	}
}

// Node failure rebalances ~1/N checks: removing one of three nodes
// changes roughly 1/3 (not all) of 600 checks' owner sets.
func TestAssign_MinimalChurnOnNodeRemoval(t *testing.T) {
	before := uptimemesh.RingView{LiveNodes: []string{"A", "B", "C"}, BucketsCount: 64, ReplicationFactor: 2}
	after := uptimemesh.RingView{LiveNodes: []string{"A", "C"}, BucketsCount: 64, ReplicationFactor: 2}

	const total = 600
	changed := 0
	for i := 0; i < total; i++ {
		checkID := fmt.Sprintf("churn-check-%d", i)
		beforeSet := Assign(before, checkID)
		afterSet := Assign(after, checkID)

		if !sameSet(beforeSet, afterSet) {
			changed++
		}
	}

	// Expect roughly 1/3 churn (B's share) with generous tolerance; the
	// property under test is "not O(1)", i.e. nowhere near all 600.
	if changed < total/6 || changed > total*2/3 {
		t.Fatalf("changed=%d out of %d, want roughly 1/3 (not all, not none)", changed, total)
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	am := map[string]bool{}
	for _, x := range a {
		am[x] = true
	}
	for _, x := range b {
		if !am[x] {
			return false
		}
	}
	return true
}

func TestBetaSample_BoundedUnitInterval(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		v := betaSample(rng, betaAlpha, betaBeta)
		if v < 0 || v > 1 {
			t.Fatalf("betaSample out of [0,1]: %v", v)
		}
	}
}
