package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/obsidianstack/agentwatch/internal/config"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// promqlSource runs one instant query per configured metric against a
// Prometheus server.
type promqlSource struct {
	baseSource
	api v1.API
	// queries maps output metric name → PromQL expression.
	queries map[string]string
}

func newPromQL(base baseSource, src config.Source) (*promqlSource, error) {
	client, err := api.NewClient(api.Config{
		Address:      src.Endpoint,
		RoundTripper: buildHTTPClient(src, base.timeout).Transport,
	})
	if err != nil {
		return nil, fmt.Errorf("source %q: create prometheus client: %w", src.ID, err)
	}
	return &promqlSource{baseSource: base, api: v1.NewAPI(client), queries: src.Metrics}, nil
}

// Collect evaluates every query at the current time. A failed query is logged
// and skipped; Collect fails only when every query failed.
func (s *promqlSource) Collect(ctx context.Context) ([]types.Metric, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	names := make([]string, 0, len(s.queries))
	for name := range s.queries {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now().UTC()
	out := make([]types.Metric, 0, len(names))
	var errs []error
	for _, name := range names {
		v, ok, err := s.query(ctx, s.queries[name], now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			slog.Debug("source: promql query returned no samples", "source", s.id, "metric", name)
			continue
		}
		out = append(out, types.Metric{Source: s.id, Name: name, Value: v, Timestamp: now})
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("promql %q: %w", s.id, errors.Join(errs...))
	}
	for _, err := range errs {
		slog.Warn("source: promql query failed", "source", s.id, "err", err)
	}
	return out, nil
}

// query returns the first sample of an instant vector or the scalar value.
func (s *promqlSource) query(ctx context.Context, q string, ts time.Time) (float64, bool, error) {
	result, warnings, err := s.api.Query(ctx, q, ts)
	if err != nil {
		return 0, false, fmt.Errorf("query %q: %w", q, err)
	}
	if len(warnings) > 0 {
		slog.Debug("source: promql warnings", "source", s.id, "query", q, "warnings", warnings)
	}
	switch v := result.(type) {
	case model.Vector:
		if len(v) == 0 {
			return 0, false, nil
		}
		return float64(v[0].Value), true, nil
	case *model.Scalar:
		return float64(v.Value), true, nil
	default:
		return 0, false, fmt.Errorf("query %q: unsupported result type %s", q, result.Type())
	}
}
