package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ClientIP returns the address TrustedRealIP settled on, or "" outside it.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(netip.Addr); ok {
		return ip.String()
	}
	return ""
}

// ParseProxies turns CIDRs or bare addresses into prefixes. Invalid
// entries are returned separately so the caller can report them.
func ParseProxies(entries []string) (prefixes []netip.Prefix, invalid []string) {
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			prefixes = append(prefixes, p.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		invalid = append(invalid, entry)
	}
	return prefixes, invalid
}

// TrustedRealIP resolves the client address of each request. Forwarding
// headers are honored only when the connection comes from a trusted proxy;
// X-Forwarded-For is walked right to left past trusted hops, so a client
// cannot prepend a spoofed address. The result replaces RemoteAddr and is
// available through ClientIP.
func TrustedRealIP(trustedProxies []string) func(http.Handler) http.Handler {
	trusted, invalid := ParseProxies(trustedProxies)
	for _, entry := range invalid {
		slog.Warn("realip: invalid trusted proxy, skipping", "proxy", entry)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, ok := parseAddr(r.RemoteAddr)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if isTrusted(ip, trusted) {
				ip = forwardedFor(r.Header, ip, trusted)
			}

			r.RemoteAddr = ip.String()
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}

// forwardedFor returns the first untrusted hop of the forwarding chain.
func forwardedFor(h http.Header, peer netip.Addr, trusted []netip.Prefix) netip.Addr {
	if rip, ok := parseAddr(h.Get("X-Real-IP")); ok {
		return rip
	}

	hops := strings.Split(strings.Join(h.Values("X-Forwarded-For"), ","), ",")
	client := peer
	for i := len(hops) - 1; i >= 0; i-- {
		hop, ok := parseAddr(hops[i])
		if !ok {
			break
		}
		client = hop
		if !isTrusted(hop, trusted) {
			break
		}
	}
	return client
}

// parseAddr accepts "host:port" or a bare address.
func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

func isTrusted(ip netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
