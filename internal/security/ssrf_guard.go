// Package security provides the application's security facilities:
// SSRF protection for outbound calls and sanitization of technician input.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService defines the SSRF protection interface. It guards the
// outbound webhook relay, whose target URL comes from configuration and
// could otherwise be pointed at internal services.
type SSRFGuardService interface {
	// NewSafeClient builds an HTTP client that refuses connections to
	// private, loopback, link-local and metadata IPs, validating the
	// resolved address at the dialer so DNS rebinding cannot bypass it.
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL statically checks a URL before any request is sent:
	// scheme, host, and IP ranges. DNS rebinding is covered by the safe
	// client's dialer validation, not here.
	ValidateURL(rawURL string) error
}

// allowedSchemes are the URL schemes permitted for outbound calls.
var allowedSchemes = []string{"http", "https"}

// blockedNetworks are the address ranges rejected for outbound calls.
// Parsed once at package init.
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// private ranges (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// loopback (RFC 1122)
		"127.0.0.0/8",
		// link-local (RFC 3927), includes cloud metadata 169.254.169.254
		"169.254.0.0/16",
		// current network
		"0.0.0.0/8",
		// IPv6 loopback
		"::1/128",
		// IPv6 link-local
		"fe80::/10",
		// IPv6 unique local
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// ssrfGuard implements SSRFGuardService.
type ssrfGuard struct{}

// NewSSRFGuard builds an SSRFGuardService.
func NewSSRFGuard() *ssrfGuard {
	return &ssrfGuard{}
}

// NewSafeClient builds the SSRF-protected HTTP client.
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateURL statically validates an outbound URL.
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	ip := net.ParseIP(host)
	if ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// isAllowedScheme checks the scheme allow list.
func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

// isBlockedIP checks the blocked network ranges.
func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHostnames are rejected host names.
var blockedHostnames = []string{
	"localhost",
}

// isBlockedHostname checks the hostname block list.
func isBlockedHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, blocked := range blockedHostnames {
		if lower == blocked {
			return true
		}
	}
	return false
}
