package probe

import (
	"net/netip"
	"testing"
)

var noSelfIP netip.Addr

// Every one of these must be blocked.
func TestIsBlockedAddr_PrivateAndLoopback(t *testing.T) {
	blocked := []string{
		"127.0.0.1",
		"10.0.0.1",
		"192.168.1.1",
		"169.254.1.1",
		"::1",
		"fc00::1",
		"100.64.0.1", // CGNAT
		"::ffff:10.0.0.1",
	}
	for _, s := range blocked {
		addr := netip.MustParseAddr(s)
		if !isBlockedAddr(addr, noSelfIP) {
			t.Errorf("isBlockedAddr(%s) = false, want true", s)
		}
	}
}

func TestIsBlockedAddr_PublicAllowed(t *testing.T) {
	public := []string{
		"8.8.8.8",
		"1.1.1.1",
		"2606:4700:4700::1111",
	}
	for _, s := range public {
		addr := netip.MustParseAddr(s)
		if isBlockedAddr(addr, noSelfIP) {
			t.Errorf("isBlockedAddr(%s) = true, want false", s)
		}
	}
}

func TestIsBlockedAddr_BlocksConfiguredSelfIP(t *testing.T) {
	self := netip.MustParseAddr("203.0.113.9")
	if isBlockedAddr(netip.MustParseAddr("8.8.8.8"), self) {
		t.Fatal("unrelated public address must not be blocked by an unrelated self IP")
	}
	if !isBlockedAddr(self, self) {
		t.Fatal("a check targeting the node's own configured address must be blocked")
	}
	if !isBlockedAddr(netip.MustParseAddr("::ffff:203.0.113.9"), self) {
		t.Fatal("a v4-mapped form of the self address must also be blocked")
	}
}
