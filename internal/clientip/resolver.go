// Package clientip derives the visitor identity from request headers and the
// transport address.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Fallback is returned when the transport address is empty
const Fallback = "127.0.0.1"

// headers are consulted in order before the transport address
var headers = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

var (
	thisNetwork = netip.MustParsePrefix("0.0.0.0/8")
	reserved    = netip.MustParsePrefix("240.0.0.0/4")
)

// FromRequest resolves the client identity of r
func FromRequest(r *http.Request) string {
	return Resolve(r.Header, r.RemoteAddr)
}

// Resolve returns the first public address among the proxy headers and the
// transport address. When none qualifies the raw transport host is used.
func Resolve(h http.Header, remoteAddr string) string {
	for _, header := range headers {
		value := h.Get(header)
		if value == "" {
			continue
		}
		// X-Forwarded-For can contain multiple IPs, take the first one
		if header == "X-Forwarded-For" {
			value, _, _ = strings.Cut(value, ",")
		}
		if ip, ok := public(value); ok {
			return ip
		}
	}

	host := hostOnly(remoteAddr)
	if ip, ok := public(host); ok {
		return ip
	}
	if host == "" {
		return Fallback
	}
	return host
}

// public parses candidate and reports whether it is a routable address
func public(candidate string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(candidate))
	if err != nil {
		return "", false
	}

	// IPv4-mapped IPv6 is a reserved range
	switch {
	case addr.Is4In6(),
		addr.IsPrivate(),
		addr.IsLoopback(),
		addr.IsLinkLocalUnicast(),
		addr.IsUnspecified(),
		thisNetwork.Contains(addr),
		reserved.Contains(addr):
		return "", false
	}

	return addr.String(), true
}

// hostOnly strips the port from a transport address when present
func hostOnly(remoteAddr string) string {
	remoteAddr = strings.TrimSpace(remoteAddr)
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
