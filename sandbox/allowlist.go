package sandbox

import "strings"

// NetworkAllowlist is the parsed form of a plugin's declared network
// permission: exact hostnames, wildcard-suffix domains, or allow-all.
// Matching is case-insensitive and ignores ports; a wildcard entry
// "*.example.com" matches subdomains at any depth but never the bare
// domain itself.
type NetworkAllowlist struct {
	allowAll bool
	exact    map[string]struct{}
	suffixes []string
}

// ParseNetworkAllowlist builds an allowlist from manifest entries.
func ParseNetworkAllowlist(entries []string) NetworkAllowlist {
	a := NetworkAllowlist{exact: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case entry == "*":
			a.allowAll = true
		case strings.HasPrefix(entry, "*."):
			a.suffixes = append(a.suffixes, entry[1:]) // ".example.com"
		default:
			a.exact[entry] = struct{}{}
		}
	}
	return a
}

// Empty returns true if the plugin declared no network permission at
// all. An empty allowlist is default-deny.
func (a NetworkAllowlist) Empty() bool {
	return !a.allowAll && len(a.exact) == 0 && len(a.suffixes) == 0
}

// AllowsAll returns true if the allowlist contains "*".
func (a NetworkAllowlist) AllowsAll() bool {
	return a.allowAll
}

// Allows reports whether host (no port) matches the allowlist.
func (a NetworkAllowlist) Allows(host string) bool {
	if a.allowAll {
		return true
	}
	host = strings.ToLower(host)
	if _, ok := a.exact[host]; ok {
		return true
	}
	for _, suffix := range a.suffixes {
		if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
			return true
		}
	}
	return false
}
