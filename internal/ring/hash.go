// Package ring implements the pure consistent-hash assignment function
// assign(ring_view, check_id) -> {node_id}. It
// performs no I/O and depends only on its inputs, so it is exercised purely
// through unit tests with synthetic RingViews.
package ring

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// primaryBucket returns H(checkID) mod bucketsCount, the check's fixed
// position in the bucket space before replica fan-out.
func primaryBucket(checkID string, bucketsCount int) uint64 {
	if bucketsCount <= 0 {
		return 0
	}
	return xxhash.Sum64String(checkID) % uint64(bucketsCount)
}

// replicaSeed derives the deterministic seed for replica r's Beta draw
// sequence, seeded by (check_id, r).
func replicaSeed(checkID string, replica int) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%s\x00%d", checkID, replica))
}
