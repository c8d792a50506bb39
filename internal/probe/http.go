package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pulsewatch/internal/models"
)

const maxBodyBytes = 1 << 20

// HTTP probes http monitors with the configured method, headers and body.
type HTTP struct {
	client    *http.Client
	userAgent string
}

// NewHTTP creates an HTTP prober whose requests time out after timeout.
func NewHTTP(timeout time.Duration, userAgent string) *HTTP {
	return &HTTP{
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
	}
}

// Probe implements Prober.
func (h *HTTP) Probe(ctx context.Context, m models.Monitor) Outcome {
	out, _ := h.do(ctx, m)
	return out
}

// do performs the request and reports whether a response was received.
func (h *HTTP) do(ctx context.Context, m models.Monitor) (Outcome, bool) {
	var body io.Reader
	cfg := m.HTTPConfig
	if cfg.Body != "" && cfg.BodyType != models.BodyNone && cfg.BodyType != "" {
		body = strings.NewReader(cfg.Body)
	}
	method := m.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, m.Endpoint, body)
	if err != nil {
		return Down(m, StatusNetworkError, fmt.Sprintf("invalid request: %v", err)), false
	}
	for _, hdr := range cfg.Headers {
		req.Header.Set(hdr.Key, hdr.Value)
	}
	if body != nil && cfg.BodyType == models.BodyJSON && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("User-Agent") == "" && h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		out := Down(m, StatusNetworkError, err.Error())
		out.LatencyMS = latency.Milliseconds()
		return out, false
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	latency = time.Since(start)
	if err != nil {
		out := Down(m, StatusNetworkError, fmt.Sprintf("read response body: %v", err))
		out.LatencyMS = latency.Milliseconds()
		return out, false
	}

	out := newOutcome(m)
	out.LatencyMS = latency.Milliseconds()
	out.StatusCode = resp.StatusCode
	out.Body = string(data)
	out.IsUp = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !out.IsUp {
		msg := strings.TrimSpace(out.Body)
		if msg == "" {
			msg = resp.Status
		}
		out.ErrorMessage = Truncate(msg)
	}
	return out, true
}

// Keyword probes like HTTP and additionally requires Keyword in the body.
type Keyword struct {
	http *HTTP
}

// NewKeyword wraps an HTTP prober.
func NewKeyword(h *HTTP) *Keyword {
	return &Keyword{http: h}
}

// Probe implements Prober.
func (k *Keyword) Probe(ctx context.Context, m models.Monitor) Outcome {
	out, responded := k.http.do(ctx, m)
	if !responded {
		return out
	}
	if !strings.Contains(out.Body, m.Keyword) {
		out.IsUp = false
		out.ErrorMessage = Truncate(fmt.Sprintf("keyword %q not found in response body", m.Keyword))
	}
	return out
}
