// Package collector wires metric sources to the aggregator through the
// polling scheduler.
//
// New(sources, opts...) builds a Collector. Start launches one scheduled task
// per source; Shutdown cancels and joins them. Both are idempotent and safe
// to call concurrently. Summary returns the aggregator's per-name means.
// An optional Sink receives every collected batch as it arrives.
package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/obsidianstack/agentwatch/internal/aggregator"
	"github.com/obsidianstack/agentwatch/internal/scheduler"
	"github.com/obsidianstack/agentwatch/internal/source"
	"github.com/obsidianstack/agentwatch/internal/telemetry"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Sink receives each batch of samples collected from a source.
type Sink interface {
	RecordMetrics(metrics []types.Metric)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func([]types.Metric)

// RecordMetrics calls f.
func (f SinkFunc) RecordMetrics(m []types.Metric) { f(m) }

// Option configures a Collector.
type Option func(*Collector)

// WithSink forwards every collected batch to s.
func WithSink(s Sink) Option {
	return func(c *Collector) { c.sink = s }
}

// WithAggregator replaces the default aggregator.
func WithAggregator(a *aggregator.Aggregator) Option {
	return func(c *Collector) { c.agg = a }
}

// WithMetrics counts every poll in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// Collector is the facade over sources, scheduler and aggregator.
type Collector struct {
	sources []source.Source
	agg     *aggregator.Aggregator
	sink    Sink
	metrics *telemetry.Metrics

	mu    sync.Mutex
	sched *scheduler.Scheduler
}

// New returns a Collector polling sources.
func New(sources []source.Source, opts ...Option) *Collector {
	c := &Collector{sources: sources, agg: aggregator.New()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start schedules every source. A second Start before Shutdown is a no-op.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched != nil {
		slog.Debug("collector: already started")
		return nil
	}

	sched := scheduler.New(ctx)
	for _, src := range c.sources {
		src := src
		if err := sched.Schedule(src.ID(), src.Interval(), func(ctx context.Context) error {
			return c.poll(ctx, src)
		}); err != nil {
			sched.Shutdown()
			return fmt.Errorf("collector: schedule %q: %w", src.ID(), err)
		}
	}
	c.sched = sched
	slog.Info("collector: started", "sources", len(c.sources))
	return nil
}

// poll runs one Collect and fans the samples out.
func (c *Collector) poll(ctx context.Context, src source.Source) error {
	samples, err := src.Collect(ctx)
	c.metrics.SourcePoll(src.ID(), err)
	if err != nil {
		return err
	}
	c.agg.Add(samples...)
	if c.sink != nil && len(samples) > 0 {
		c.sink.RecordMetrics(samples)
	}
	slog.Debug("collector: polled", "source", src.ID(), "samples", len(samples))
	return nil
}

// Shutdown stops polling and waits for in-flight collections. Calling it on
// a stopped Collector is a no-op.
func (c *Collector) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sched == nil {
		return
	}
	c.sched.Shutdown()
	c.sched = nil
	slog.Info("collector: stopped")
}

// Running reports whether Start has been called without a matching Shutdown.
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sched != nil
}

// Summary returns the mean of every sample collected so far, per metric name.
func (c *Collector) Summary() map[string]float64 {
	return c.agg.Summary()
}
