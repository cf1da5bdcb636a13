package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/obsidianstack/agentwatch/internal/config"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

const defaultCollectTimeout = 10 * time.Second

// Source is a pluggable producer of metric samples polled on a fixed interval.
//
// Collect returns the samples for one polling tick. Implementations must
// honour ctx and bound their own work so a call never blocks indefinitely.
type Source interface {
	ID() string
	Interval() time.Duration
	Collect(ctx context.Context) ([]types.Metric, error)
}

// New returns the Source for the given configuration. Sources with no
// interval poll at defaultInterval.
func New(src config.Source, defaultInterval time.Duration) (Source, error) {
	base := baseSource{
		id:       src.ID,
		interval: src.Interval,
		timeout:  src.Timeout,
	}
	if base.interval <= 0 {
		base.interval = defaultInterval
	}
	if base.timeout <= 0 {
		base.timeout = defaultCollectTimeout
	}

	switch src.Type {
	case "system":
		return NewSystem(base.id, base.interval), nil
	case "exposition":
		return &expositionSource{
			baseSource: base,
			endpoint:   src.Endpoint,
			families:   src.Metrics,
			client:     buildHTTPClient(src, base.timeout),
		}, nil
	case "promql":
		return newPromQL(base, src)
	case "tls":
		return newCert(base, src.Endpoint, src.TLS.InsecureSkipVerify)
	default:
		return nil, fmt.Errorf("source %q: unsupported type %q", src.ID, src.Type)
	}
}

// baseSource carries the fields every configured source shares.
type baseSource struct {
	id       string
	interval time.Duration
	timeout  time.Duration
}

func (b baseSource) ID() string              { return b.id }
func (b baseSource) Interval() time.Duration { return b.interval }

// Func adapts an in-process function to the Source interface.
type Func struct {
	Name      string
	Every     time.Duration
	Collector func(ctx context.Context) ([]types.Metric, error)
}

func (f *Func) ID() string              { return f.Name }
func (f *Func) Interval() time.Duration { return f.Every }

// Collect calls f.Collector.
func (f *Func) Collect(ctx context.Context) ([]types.Metric, error) {
	return f.Collector(ctx)
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient returns a client applying the source's auth and TLS settings.
func buildHTTPClient(src config.Source, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: src.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		},
	}
	return &http.Client{
		Transport: &authRoundTripper{base: transport, auth: src.Auth},
		Timeout:   timeout,
	}
}
