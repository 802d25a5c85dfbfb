// Package upstream resolves a ProviderType's base_url into the
// concrete address, Host header, and TLS server name a forward needs.
// Accepts host[:port], a full URL, a bare IPv4 address, or a bracketed
// IPv6 literal.
package upstream

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Target is the resolved forwarding address for one upstream request.
type Target struct {
	// Addr is the dial target, host:port.
	Addr       string
	// HostHeader is the Host header value to send upstream.
	HostHeader string
	// SNI is the TLS ServerName to present during the handshake.
	SNI        string
	// Scheme is "http" or "https".
	Scheme     string
}

// defaultPort returns the scheme's default port.
func defaultPort(scheme string) string {
	if scheme == "http" {
		return "80"
	}
	return "443"
}

// Resolve parses baseURL (a full URL, a bare host[:port], a bare
// IPv4 address, or a bracketed IPv6 literal) into a Target.
func Resolve(baseURL string) (*Target, error) {
	if strings.Contains(baseURL, "://") {
		return resolveFullURL(baseURL)
	}
	return resolveHostPort(baseURL, "https")
}

func resolveFullURL(raw string) (*Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("upstream: parse base_url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream: unsupported scheme %q in base_url %q", u.Scheme, raw)
	}
	return resolveHostPort(u.Host, u.Scheme)
}

func resolveHostPort(hostport, scheme string) (*Target, error) {
	host, port, explicitPort := splitHostPort(hostport)
	if host == "" {
		return nil, fmt.Errorf("upstream: empty host in %q", hostport)
	}
	if port == "" {
		port = defaultPort(scheme)
	}

	hostHeader := host
	if explicitPort {
		hostHeader = net.JoinHostPort(host, port)
	}

	return &Target{
		Addr:       net.JoinHostPort(host, port),
		HostHeader: hostHeader,
		SNI:        host,
		Scheme:     scheme,
	}, nil
}

// splitHostPort splits hostport into (host, port, explicitPort),
// tolerating bracketed IPv6 literals with no port ("[::1]") and bare
// IPv6 literals without brackets or a port ("::1").
func splitHostPort(hostport string) (host, port string, explicit bool) {
	if strings.HasPrefix(hostport, "[") && !strings.Contains(hostport, "]:") {
		// Bracketed IPv6 with no port, e.g. "[::1]".
		return strings.Trim(hostport, "[]"), "", false
	}

	h, p, err := net.SplitHostPort(hostport)
	if err == nil {
		return h, p, true
	}

	// No port present — could be a bare hostname, IPv4, or unbracketed
	// IPv6 literal (net.SplitHostPort rejects all three without a port).
	return hostport, "", false
}
