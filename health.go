package uptimemesh

// MembershipSummary is a point-in-time snapshot of node health across the
// ring, derived from the latest heartbeat sweep and returned by the
// heartbeat service's Summary. The sweep only sees live heartbeats, so it
// fills Total and Live; Suspect and Dead stay zero. The self-fencing
// decision does not read it: it counts the node's own failed writes.
type MembershipSummary struct {
	Initialized bool // at least one heartbeat sweep has completed
	Total       int
	Live        int
	Suspect     int
	Dead        int
}

// HasQuorum reports whether enough of the ring is live to keep assigning
// checks; a ring with no live nodes cannot be probed at all.
func (s MembershipSummary) HasQuorum() bool {
	return s.Live > 0
}
