package ring

import (
	"math/rand"

	"uptimemesh"
)

// rejectionRounds bounds the Beta-draw rejection loop before falling back to
// a deterministic linear scan; needed for termination when R approaches N
// and most positions are already taken.
const rejectionRounds = 64

// Assign is the pure function assign(ring_view, check_id) -> {node_id} from
// It performs no I/O and is deterministic in its inputs:
// same view and check_id always produce the same ordered node set.
//
// Returns nil if view has no live nodes. Otherwise returns exactly
// min(ReplicationFactor, N) distinct node ids, all members of
// view.LiveNodes.
func Assign(view uptimemesh.RingView, checkID string) []string {
	n := len(view.LiveNodes)
	if n == 0 {
		return nil
	}

	r := view.ReplicationFactor
	if r > n {
		r = n
	}
	if r < 1 {
		r = 1
	}

	positions := make([]int, 0, r)
	selected := make(map[int]bool, r)

	p0 := int(primaryBucket(checkID, view.BucketsCount)) % n
	positions = append(positions, p0)
	selected[p0] = true

	for replica := 1; replica < r; replica++ {
		p := selectReplicaPosition(checkID, replica, n, selected)
		positions = append(positions, p)
		selected[p] = true
	}

	nodes := make([]string, len(positions))
	for i, p := range positions {
		nodes[i] = view.LiveNodes[p]
	}
	return nodes
}

// selectReplicaPosition draws positions from a Beta(2,2)-biased sequence
// seeded by (checkID, replica), rejecting ones already selected. The draw
// sequence from a given seed is always the same, so re-running assignment
// for the same inputs reproduces the same replica positions.
func selectReplicaPosition(checkID string, replica, n int, selected map[int]bool) int {
	rng := rand.New(rand.NewSource(int64(replicaSeed(checkID, replica))))

	for i := 0; i < rejectionRounds; i++ {
		draw := betaSample(rng, betaAlpha, betaBeta)
		pos := int(draw * float64(n))
		if pos >= n {
			pos = n - 1
		}
		if !selected[pos] {
			return pos
		}
	}

	// Rejection sampling didn't converge (R close to N): scan forward from
	// the first draw of the same seeded sequence for a guaranteed-terminating
	// deterministic fallback.
	rng2 := rand.New(rand.NewSource(int64(replicaSeed(checkID, replica))))
	start := int(betaSample(rng2, betaAlpha, betaBeta) * float64(n))
	for i := 0; i < n; i++ {
		pos := (start + i) % n
		if !selected[pos] {
			return pos
		}
	}
	return 0 // unreachable: selected can never cover all n positions here
}
