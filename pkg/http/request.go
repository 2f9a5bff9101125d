package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const (
	maxUserAgentLen = 512
	unknownIP       = "unknown"
)

// IPConfig decides which peers may report a client address through
// forwarding headers. The zero value trusts no one.
type IPConfig struct {
	trusted []netip.Prefix
}

// NewIPConfig parses trusted proxy ranges. Entries may be CIDR ranges or
// single addresses.
func NewIPConfig(trustedProxies []string) (*IPConfig, error) {
	cfg := &IPConfig{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy range %q: %w", entry, err)
			}
			cfg.trusted = append(cfg.trusted, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy address %q: %w", entry, err)
		}
		addr = addr.Unmap()
		cfg.trusted = append(cfg.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return cfg, nil
}

// Trusts reports whether addr belongs to a trusted proxy
func (c *IPConfig) Trusts(addr netip.Addr) bool {
	if c == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the address the attempt counters and audit trail
// key on. Forwarding headers are only read when the direct peer is trusted;
// X-Forwarded-For is walked from the right so a client cannot prepend a
// forged hop.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	peer, ok := remoteAddr(r)
	if !ok {
		if r.RemoteAddr == "" {
			return unknownIP
		}
		return r.RemoteAddr
	}
	if !config.Trusts(peer) {
		return peer.String()
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			hop = hop.Unmap()
			if !config.Trusts(hop) {
				return hop.String()
			}
		}
	}

	if xri, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xri.Unmap().String()
	}

	return peer.String()
}

func remoteAddr(r *http.Request) (netip.Addr, bool) {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}

// UserAgent returns the request User-Agent truncated to a storable length
func UserAgent(r *http.Request) string {
	ua := strings.TrimSpace(r.UserAgent())
	if len(ua) <= maxUserAgentLen {
		return ua
	}
	cut := maxUserAgentLen
	// avoid splitting a multi-byte rune
	for cut > 0 && ua[cut]&0xC0 == 0x80 {
		cut--
	}
	return ua[:cut]
}
