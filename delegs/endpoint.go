package delegs

import (
	"net/netip"
	"net/url"
	"strings"
)

// IsValidEndpoint reports whether text is an acceptable routing endpoint.
// Operators register either a bare two-segment hostname ("relay.example"),
// a full URI ("https://relay.example/api") or a raw IPv4 literal.
func IsValidEndpoint(text string) bool {
	if text == "" {
		return false
	}

	if addr, err := netip.ParseAddr(text); err == nil {
		return addr.Is4()
	}

	if isBareHostname(text) {
		return true
	}

	u, err := url.Parse(text)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// isBareHostname accepts exactly two non-empty dot-separated segments with
// no scheme, path or port.
func isBareHostname(text string) bool {
	if strings.ContainsAny(text, ":/") {
		return false
	}
	segments := strings.Split(text, ".")
	return len(segments) == 2 && segments[0] != "" && segments[1] != ""
}
