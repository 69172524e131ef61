package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies configures Echo to trust reverse proxy headers
// (X-Forwarded-For, X-Real-IP, X-Forwarded-Proto) from specific IP ranges.
//
// The server normally sits behind a TLS-terminating reverse proxy. Without
// this config, c.RealIP() would always return the proxy's IP instead of the
// actual client, and the login rate limiter would throttle everyone at once.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	var trusted []*net.IPNet
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		trusted = append(trusted, network)
	}

	// Echo's IPExtractor determines how c.RealIP() resolves the client IP.
	// Forwarding headers are honored only when the direct peer is one of
	// the trusted proxies; anything else could spoof its way past the
	// login rate limiter.
	e.IPExtractor = func(req *http.Request) string {
		directIP := req.RemoteAddr
		if host, _, err := net.SplitHostPort(directIP); err == nil {
			directIP = host
		}

		if !cidrsContain(trusted, directIP) {
			return directIP
		}

		// X-Real-IP first (nginx and friends set it to the single client IP).
		if realIP := req.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}

		// X-Forwarded-For: comma-separated chain, leftmost is the client.
		if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}

		return directIP
	}
}

// cidrsContain reports whether the IP falls in any of the given networks.
func cidrsContain(networks []*net.IPNet, ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
