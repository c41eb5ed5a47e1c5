package fleet

import "net"

// ExtractWorkingIPs dedupes IPs across a machine's discovered and static
// links, skipping loopback/link-local addresses (spec.md §4.5).
func ExtractWorkingIPs(m Machine) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(addr string) {
		if addr == "" {
			return
		}
		ip := net.ParseIP(addr)
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return
		}
		if _, dup := seen[addr]; dup {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}

	for _, iface := range m.InterfaceSet {
		for _, link := range iface.DiscoveredIPs {
			add(link.IPAddress)
		}
		for _, link := range iface.Links {
			add(link.IPAddress)
		}
	}

	return out
}
