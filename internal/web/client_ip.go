package web

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyResolver determines the client IP of a request. Forwarding
// headers are honoured only when the direct peer is a trusted proxy.
type ProxyResolver struct {
	trusted []netip.Prefix
}

// NewProxyResolver parses trusted proxy entries. Each entry is an IP
// address or a CIDR range.
func NewProxyResolver(entries []string) (*ProxyResolver, error) {
	r := &ProxyResolver{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy CIDR %q: %w", entry, err)
			}
			r.trusted = append(r.trusted, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy IP %q: %w", entry, err)
		}
		addr = addr.Unmap()
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// HasTrustedProxies reports whether any proxies are configured.
func (r *ProxyResolver) HasTrustedProxies() bool {
	return r != nil && len(r.trusted) > 0
}

// IsTrusted reports whether remoteAddr (host or host:port) is a trusted proxy.
func (r *ProxyResolver) IsTrusted(remoteAddr string) bool {
	if !r.HasTrustedProxies() {
		return false
	}
	addr, err := netip.ParseAddr(hostOnly(remoteAddr))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the originating client IP for r, without a port.
func (r *ProxyResolver) ClientIP(req *http.Request) string {
	direct := hostOnly(req.RemoteAddr)
	if !r.IsTrusted(req.RemoteAddr) {
		return direct
	}
	if ip := r.forwardedFor(req.Header.Values("X-Forwarded-For")); ip != "" {
		return ip
	}
	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return direct
}

// forwardedFor walks the X-Forwarded-For chain from the right and returns
// the first hop that is not a trusted proxy. Entries left of that hop are
// client supplied and ignored. If every hop is trusted the leftmost wins.
func (r *ProxyResolver) forwardedFor(headers []string) string {
	var hops []string
	for _, h := range headers {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				hops = append(hops, part)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if _, err := netip.ParseAddr(hostOnly(hops[i])); err != nil {
			// Unparseable hop: nothing left of it can be trusted.
			return ""
		}
		if !r.IsTrusted(hops[i]) || i == 0 {
			return hostOnly(hops[i])
		}
	}
	return ""
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
