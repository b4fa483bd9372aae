package hostfuncs

import "net"

// cgnBlock is the carrier-grade NAT range, RFC 6598. Not covered by
// net.IP's built-in classification helpers.
var cgnBlock = mustCIDR("100.64.0.0/10")

func mustCIDR(s string) *net.IPNet {
	_, block, err := net.ParseCIDR(s)
	if err != nil {
		panic(err)
	}
	return block
}

// CheckPublicAddress reports whether ip is safe for an outbound guest
// request. It returns the reason a reserved or private address was
// rejected, or ok=true for routable public addresses.
//
// IPv4-mapped IPv6 addresses are unwrapped to IPv4 before checking, so
// "::ffff:10.0.0.1" is rejected the same as "10.0.0.1".
func CheckPublicAddress(ip net.IP) (reason string, ok bool) {
	// Unwrap IPv4-mapped IPv6 so the IPv4 range checks apply.
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	switch {
	case ip.IsUnspecified():
		return "unspecified address", false
	case ip.IsLoopback():
		return "loopback address", false
	case ip.IsLinkLocalUnicast():
		// Covers 169.254.0.0/16 including cloud metadata endpoints,
		// and fe80::/10.
		return "link-local address", false
	case ip.IsLinkLocalMulticast(), ip.IsMulticast():
		return "multicast address", false
	case ip.IsPrivate():
		// RFC 1918 for IPv4, unique-local fc00::/7 for IPv6.
		return "private address", false
	case cgnBlock.Contains(ip):
		return "carrier-grade NAT address", false
	}
	return "", true
}
