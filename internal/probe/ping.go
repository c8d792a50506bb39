package probe

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"pulsewatch/internal/models"
	"pulsewatch/internal/urlutil"
)

// Ping sends a single ICMP echo to the monitor's host.
type Ping struct {
	timeout    time.Duration
	privileged bool
}

// NewPing creates a Ping prober. Unprivileged mode uses UDP ICMP sockets.
func NewPing(timeout time.Duration, privileged bool) *Ping {
	return &Ping{timeout: timeout, privileged: privileged}
}

// Probe implements Prober.
func (p *Ping) Probe(ctx context.Context, m models.Monitor) Outcome {
	host := urlutil.Hostname(m.Endpoint)
	if host == "" {
		return Down(m, StatusNetworkError, fmt.Sprintf("cannot determine host from %q", m.Endpoint))
	}
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return Down(m, StatusNetworkError, fmt.Sprintf("resolve %s: %v", host, err))
	}
	pinger.Count = 1
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(p.privileged)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		return Down(m, StatusNetworkError, fmt.Sprintf("ping %s: %v", host, err))
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return Down(m, StatusNetworkError, fmt.Sprintf("no echo reply from %s within %s", host, p.timeout))
	}
	out := newOutcome(m)
	out.IsUp = true
	out.StatusCode = 200
	out.LatencyMS = stats.AvgRtt.Milliseconds()
	return out
}
