package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"
)

// ErrBlockedAddr is returned by guardedDialer when every address a host
// resolves to (or the literal address dialed) is on the SSRF guard's
// blocklist. No TCP connection is ever attempted in that case.
var ErrBlockedAddr = errors.New("probe: destination address is blocked (private/loopback/link-local)")

// dnsTimeout bounds DNS resolution independently of the check's own
// timeout, so a hung resolver can't hold a dispatch permit for the full
// per-check timeout; context.WithTimeout still respects a shorter parent
// deadline, giving effectively min(dnsTimeout, check.timeout).
const dnsTimeout = 5 * time.Second

// guardedDialer resolves host:port itself, rejects the dial before opening
// any socket if every resolved address is blocked, and then connects
// directly to the address it validated — re-resolving inside net.Dialer
// would reopen a DNS-rebinding window between check and connect.
type guardedDialer struct {
	resolver *net.Resolver
	dialer   *net.Dialer
	selfIP   netip.Addr
}

func newGuardedDialer(dialer *net.Dialer, selfIP netip.Addr) *guardedDialer {
	return &guardedDialer{resolver: net.DefaultResolver, dialer: dialer, selfIP: selfIP}
}

func (g *guardedDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	ips, err := g.resolver.LookupNetIP(dnsCtx, "ip", host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no addresses found", Name: host}
	}

	var target netip.Addr
	found := false
	for _, ip := range ips {
		if !isBlockedAddr(ip, g.selfIP) {
			target = ip
			found = true
			break
		}
	}
	if !found {
		return nil, ErrBlockedAddr
	}

	return g.dialer.DialContext(ctx, network, net.JoinHostPort(target.String(), port))
}
