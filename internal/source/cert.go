package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// MetricCertExpiry is the sample name emitted by the tls source: whole days
// until the endpoint's leaf certificate expires, negative once expired.
const MetricCertExpiry = "cert_expiry_days"

// certSource dials an HTTPS endpoint and reports the leaf certificate's
// remaining lifetime. Pair it with an inverted threshold (for example
// warning 30, critical 7) to alert before an agent's certificate lapses.
type certSource struct {
	baseSource
	host     string
	insecure bool
	now      func() time.Time
}

func newCert(base baseSource, endpoint string, insecure bool) (*certSource, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("source %q: parse endpoint: %w", base.id, err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("source %q: tls source needs an https endpoint, got %q", base.id, endpoint)
	}
	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL, append the HTTPS default.
		host = net.JoinHostPort(host, "443")
	}
	return &certSource{baseSource: base, host: host, insecure: insecure, now: time.Now}, nil
}

func (s *certSource) Collect(ctx context.Context) ([]types.Metric, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: s.insecure, //nolint:gosec
		},
	}
	netConn, err := dialer.DialContext(dialCtx, "tcp", s.host)
	if err != nil {
		return nil, fmt.Errorf("source %q: dial %s: %w", s.id, s.host, err)
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peers := conn.ConnectionState().PeerCertificates
	if len(peers) == 0 {
		return nil, fmt.Errorf("source %q: %s presented no certificate", s.id, s.host)
	}

	now := s.now()
	days := peers[0].NotAfter.Sub(now).Hours() / 24
	return []types.Metric{{
		Source:    s.id,
		Name:      MetricCertExpiry,
		Value:     float64(int64(days)),
		Timestamp: now,
	}}, nil
}
