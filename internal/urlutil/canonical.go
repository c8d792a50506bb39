package urlutil

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Canonicalize normalizes a monitor endpoint before it is stored:
// scheme and host are lowercased, default ports and fragments are dropped,
// and a trailing slash is trimmed from non-root paths. Query strings are kept
// because probes must hit the exact resource.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("endpoint must be an absolute http or https url")
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	if len(u.Path) > 1 && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String(), nil
}

// Hostname extracts the bare host from an endpoint that is either a URL
// ("https://api.example.com:8443/x") or a host with an optional port.
func Hostname(endpoint string) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return ""
		}
		return strings.ToLower(u.Hostname())
	}
	if i := strings.IndexByte(endpoint, '/'); i >= 0 {
		endpoint = endpoint[:i]
	}
	if host, _, err := net.SplitHostPort(endpoint); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(strings.Trim(endpoint, "[]"))
}

// IsHTTPS reports whether endpoint is an https URL.
func IsHTTPS(endpoint string) bool {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	return err == nil && strings.EqualFold(u.Scheme, "https")
}
