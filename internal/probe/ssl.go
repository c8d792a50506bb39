package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"

	"pulsewatch/internal/models"
)

// CertChecker performs a TLS handshake and reports the leaf certificate state.
type CertChecker struct {
	Timeout time.Duration
	// Port defaults to 443.
	Port string
	// RootCAs overrides the system pool.
	RootCAs *x509.CertPool
	Now     func() time.Time
}

// Check handshakes with host and returns the SSL sub-state. Any failure yields
// IsValid=false, DaysRemaining=0 and the error message.
func (c *CertChecker) Check(ctx context.Context, host string) models.SSLState {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	state := models.SSLState{LastCheckedAt: &now}

	leaf, err := c.handshake(ctx, host)
	if err != nil {
		invalid := false
		zero := 0
		state.IsValid = &invalid
		state.DaysRemaining = &zero
		state.ErrorMessage = Truncate(err.Error())
		return state
	}

	valid := !now.Before(leaf.NotBefore) && now.Before(leaf.NotAfter)
	expires := leaf.NotAfter.UTC()
	days := int(leaf.NotAfter.Sub(now).Hours() / 24)
	if days < 0 {
		days = 0
	}
	state.IsValid = &valid
	state.ExpiresAt = &expires
	state.DaysRemaining = &days
	return state
}

func (c *CertChecker) handshake(ctx context.Context, host string) (*x509.Certificate, error) {
	port := c.Port
	if port == "" {
		port = "443"
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    &tls.Config{ServerName: host, RootCAs: c.RootCAs},
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	certs := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, errors.New("no peer certificate presented")
	}
	return certs[0], nil
}
