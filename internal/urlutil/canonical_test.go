package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"HTTPS://Example.COM:443/health/":  "https://example.com/health",
		"http://example.com:80/":           "http://example.com/",
		"https://example.com/a?b=1#frag":   "https://example.com/a?b=1",
		"https://example.com:8443/status/": "https://example.com:8443/status",
	}
	for in, want := range cases {
		got, err := Canonicalize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"ftp://example.com", "example.com/path", "https://"} {
		_, err := Canonicalize(bad)
		assert.Error(t, err, bad)
	}
}

func TestHostname(t *testing.T) {
	cases := map[string]string{
		"https://API.example.com:8443/x": "api.example.com",
		"example.com":                    "example.com",
		"example.com:22":                 "example.com",
		"10.0.0.1":                       "10.0.0.1",
		"[::1]:80":                       "::1",
		"host.local/path":                "host.local",
		"":                               "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Hostname(in), in)
	}
}

func TestIsHTTPS(t *testing.T) {
	cases := map[string]bool{
		"https://example.com/health": true,
		"HTTPS://Example.com":        true,
		"http://example.com":         false,
		"example.com":                false,
		"10.0.0.1":                   false,
		"":                           false,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsHTTPS(in), in)
	}
}
