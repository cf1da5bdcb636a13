package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// expositionSource scrapes a Prometheus text exposition endpoint and turns
// selected metric families into samples.
type expositionSource struct {
	baseSource
	endpoint string
	// families maps output metric name → metric family name.
	families map[string]string
	client   *http.Client
}

// Collect fetches the endpoint once and emits one sample per configured
// family. Families absent from the scrape are skipped rather than reported
// as zero, so a missing exporter never reads as a healthy value.
func (s *expositionSource) Collect(ctx context.Context) ([]types.Metric, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	mfs, err := fetchFamilies(ctx, s.client, s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("exposition %q: %w", s.id, err)
	}

	names := make([]string, 0, len(s.families))
	for name := range s.families {
		names = append(names, name)
	}
	sort.Strings(names)

	now := time.Now().UTC()
	out := make([]types.Metric, 0, len(names))
	for _, name := range names {
		mf, ok := mfs[s.families[name]]
		if !ok {
			continue
		}
		out = append(out, types.Metric{
			Source:    s.id,
			Name:      name,
			Value:     sumFamily(mf),
			Timestamp: now,
		})
	}
	return out, nil
}

// fetchFamilies performs an HTTP GET to url and returns parsed metric families.
func fetchFamilies(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies decodes a Prometheus text exposition from r.
// A partial result with a non-fatal parse warning is still returned.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a family.
// Summaries and histograms contribute their sample mean.
func sumFamily(mf *dto.MetricFamily) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		case m.Summary != nil && m.Summary.GetSampleCount() > 0:
			total += m.Summary.GetSampleSum() / float64(m.Summary.GetSampleCount())
		case m.Histogram != nil && m.Histogram.GetSampleCount() > 0:
			total += m.Histogram.GetSampleSum() / float64(m.Histogram.GetSampleCount())
		}
	}
	return total
}
