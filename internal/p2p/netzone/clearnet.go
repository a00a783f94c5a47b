package netzone

import (
	"fmt"
	"net/netip"
	"strings"
)

// maxBanSubnetHostBits bounds how many addresses one ban-list subnet may
// expand to.
const maxBanSubnetHostBits = 16

// ClearNet is the zone of peers reachable over plain IPv4/IPv6. Peers are
// keyed by IP and port and banned by IP.
type ClearNet struct {
	// Strict rejects peers that are not publicly routable. Set false for
	// private or local networks.
	Strict bool
}

// Name implements addrbook.Zone.
func (ClearNet) Name() string { return "clearnet" }

// Canonicalize unmaps IPv4-mapped IPv6 addresses and drops IPv6 zones.
func (ClearNet) Canonicalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(canonicalIP(addr.Addr()), addr.Port())
}

func canonicalIP(ip netip.Addr) netip.Addr {
	return ip.Unmap().WithZone("")
}

// BanID implements addrbook.Zone. Peers are banned by IP, regardless of port.
func (ClearNet) BanID(addr netip.AddrPort) netip.Addr {
	return canonicalIP(addr.Addr())
}

// CanonicalizeBanID implements addrbook.Zone.
func (ClearNet) CanonicalizeBanID(ip netip.Addr) netip.Addr {
	return canonicalIP(ip)
}

// ShouldAddToPeerList implements addrbook.Zone.
func (z ClearNet) ShouldAddToPeerList(addr netip.AddrPort) bool {
	ip := addr.Addr()
	if !ip.IsValid() || ip.IsUnspecified() || ip.IsMulticast() || addr.Port() == 0 {
		return false
	}
	if z.Strict && !Routable(ip) {
		return false
	}
	return true
}

// Routable reports whether ip is reachable from the public internet.
func Routable(ip netip.Addr) bool {
	ip = canonicalIP(ip)
	return ip.IsGlobalUnicast() && !ip.IsPrivate()
}

// ReadBanLine implements addrbook.Zone. A line holds an IP, an IP and port,
// or a subnet in CIDR notation, which expands to every IP in it. Text after
// '#' is a comment.
func (ClearNet) ReadBanLine(line string) ([]netip.Addr, error) {
	line = stripComment(line)
	if line == "" {
		return nil, nil
	}

	if strings.Contains(line, "/") {
		return expandSubnet(line)
	}
	if addrPort, err := netip.ParseAddrPort(line); err == nil {
		return []netip.Addr{canonicalIP(addrPort.Addr())}, nil
	}
	ip, err := netip.ParseAddr(line)
	if err != nil {
		return nil, fmt.Errorf("invalid ban line %q: %w", line, err)
	}
	return []netip.Addr{canonicalIP(ip)}, nil
}

func expandSubnet(s string) ([]netip.Addr, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return nil, fmt.Errorf("invalid ban subnet %q: %w", s, err)
	}
	if prefix.Addr().Is4In6() {
		bits := prefix.Bits() - 96
		if bits < 0 {
			return nil, fmt.Errorf("invalid ban subnet %q: mapped prefix shorter than /96", s)
		}
		prefix = netip.PrefixFrom(prefix.Addr().Unmap(), bits)
	}

	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if hostBits > maxBanSubnetHostBits {
		return nil, fmt.Errorf("ban subnet %q is larger than /%d", s, prefix.Addr().BitLen()-maxBanSubnetHostBits)
	}

	prefix = prefix.Masked()
	ips := make([]netip.Addr, 0, 1<<hostBits)
	for ip := prefix.Addr(); ip.IsValid() && prefix.Contains(ip); ip = ip.Next() {
		ips = append(ips, ip)
	}
	return ips, nil
}

// ParseAddr implements addrbook.Zone.
func (ClearNet) ParseAddr(s string) (netip.AddrPort, error) {
	return netip.ParseAddrPort(s)
}

// ParseBanID implements addrbook.Zone.
func (ClearNet) ParseBanID(s string) (netip.Addr, error) {
	return netip.ParseAddr(s)
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}
