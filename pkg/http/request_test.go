package http_test

import (
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"unicode/utf8"

	pkghttp "github.com/scamnemesis/authcore/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// NewIPConfig
// ============================================================================

func TestNewIPConfig(t *testing.T) {
	cfg, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8", " 192.0.2.7 ", "", "2001:db8::/32"})
	require.NoError(t, err)

	assert.True(t, cfg.Trusts(netip.MustParseAddr("10.20.30.40")))
	assert.True(t, cfg.Trusts(netip.MustParseAddr("192.0.2.7")))
	assert.False(t, cfg.Trusts(netip.MustParseAddr("192.0.2.8")))
	assert.True(t, cfg.Trusts(netip.MustParseAddr("2001:db8::1")))
	assert.True(t, cfg.Trusts(netip.MustParseAddr("::ffff:10.0.0.1")), "mapped IPv4 matches IPv4 range")
}

func TestNewIPConfig_Invalid(t *testing.T) {
	for _, entry := range []string{"10.0.0.0/33", "not-an-ip", "300.1.1.1"} {
		t.Run(entry, func(t *testing.T) {
			_, err := pkghttp.NewIPConfig([]string{entry})
			assert.Error(t, err)
		})
	}
}

func TestIPConfig_NilTrustsNothing(t *testing.T) {
	var cfg *pkghttp.IPConfig
	assert.False(t, cfg.Trusts(netip.MustParseAddr("127.0.0.1")))
}

// ============================================================================
// ExtractClientIP
// ============================================================================

func TestExtractClientIP(t *testing.T) {
	proxies, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "fd00::/8"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		config     *pkghttp.IPConfig
		expected   string
	}{
		{
			name:       "direct client ignores forwarding headers",
			remoteAddr: "203.0.113.10:54321",
			xff:        "1.2.3.4",
			realIP:     "192.168.1.1",
			config:     proxies,
			expected:   "203.0.113.10",
		},
		{
			name:       "nil config ignores forwarding headers",
			remoteAddr: "10.0.0.5:443",
			xff:        "203.0.113.42",
			expected:   "10.0.0.5",
		},
		{
			name:       "trusted proxy forwards client",
			remoteAddr: "10.0.0.5:443",
			xff:        "203.0.113.42",
			config:     proxies,
			expected:   "203.0.113.42",
		},
		{
			name:       "forged leftmost hop is skipped",
			remoteAddr: "10.0.0.5:443",
			xff:        "1.1.1.1, 203.0.113.42, 10.0.0.9",
			config:     proxies,
			expected:   "203.0.113.42",
		},
		{
			name:       "malformed hop stops the walk",
			remoteAddr: "10.0.0.5:443",
			xff:        "garbage, 10.0.0.9",
			realIP:     "198.51.100.3",
			config:     proxies,
			expected:   "198.51.100.3",
		},
		{
			name:       "real ip header from trusted proxy",
			remoteAddr: "10.0.0.5:443",
			realIP:     "198.51.100.7",
			config:     proxies,
			expected:   "198.51.100.7",
		},
		{
			name:       "all hops trusted falls back to peer",
			remoteAddr: "10.0.0.5:443",
			xff:        "10.1.1.1",
			config:     proxies,
			expected:   "10.0.0.5",
		},
		{
			name:       "ipv6 proxy",
			remoteAddr: "[fd00::1]:443",
			xff:        "2001:db8::42",
			config:     proxies,
			expected:   "2001:db8::42",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "198.51.100.9",
			config:     proxies,
			expected:   "198.51.100.9",
		},
		{
			name:       "unparseable remote addr kept verbatim",
			remoteAddr: "pipe",
			config:     proxies,
			expected:   "pipe",
		},
		{
			name:     "empty remote addr",
			config:   proxies,
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/auth/token", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}

			assert.Equal(t, tt.expected, pkghttp.ExtractClientIP(req, tt.config))
		})
	}
}

func TestExtractClientIP_MultipleForwardedHeaders(t *testing.T) {
	proxies, err := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Add("X-Forwarded-For", "1.1.1.1")
	req.Header.Add("X-Forwarded-For", "203.0.113.5, 10.0.0.6")

	assert.Equal(t, "203.0.113.5", pkghttp.ExtractClientIP(req, proxies))
}

// ============================================================================
// UserAgent
// ============================================================================

func TestUserAgent(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("User-Agent", "  curl/8.4.0 ")
	assert.Equal(t, "curl/8.4.0", pkghttp.UserAgent(req))

	req.Header.Set("User-Agent", strings.Repeat("a", 600))
	assert.Len(t, pkghttp.UserAgent(req), 512)

	// a two-byte rune straddling the limit is dropped whole
	req.Header.Set("User-Agent", strings.Repeat("a", 511)+"é"+"tail")
	ua := pkghttp.UserAgent(req)
	assert.Len(t, ua, 511)
	assert.True(t, utf8.ValidString(ua))
}
