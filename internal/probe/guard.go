package probe

import "net/netip"

// cgnat is the carrier-grade NAT range (RFC 6598), not covered by
// netip.Addr.IsPrivate but just as unreachable from the public internet as
// RFC1918 space.
var cgnat = netip.MustParsePrefix("100.64.0.0/10")

// isBlockedAddr reports whether addr must never be dialed: loopback,
// link-local (unicast or multicast), multicast, unspecified, RFC1918/ULA
// private space, carrier-grade NAT, or the node's own configured address —
// a check is never allowed to probe the node running it.
// v4-mapped IPv6 addresses are unwrapped first so ::ffff:10.0.0.1 is judged
// by its embedded IPv4 address, not waved through as "not an IPv4 literal".
func isBlockedAddr(addr netip.Addr, selfIP netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() {
		return true
	}
	if addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() ||
		addr.IsPrivate() {
		return true
	}
	if selfIP.IsValid() && addr == selfIP.Unmap() {
		return true
	}
	return addr.Is4() && cgnat.Contains(addr)
}
