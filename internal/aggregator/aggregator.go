// Package aggregator accumulates metric samples by name and reports their
// running means. It keeps every sample's contribution forever; callers that
// need a window call Reset.
package aggregator

import (
	"sync"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Aggregator is safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	series map[string]*series
}

// series holds the running total for one metric name.
type series struct {
	sum   float64
	count int
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{series: make(map[string]*series)}
}

// Add records samples.
func (a *Aggregator) Add(metrics ...types.Metric) {
	if len(metrics) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range metrics {
		s, ok := a.series[m.Name]
		if !ok {
			s = &series{}
			a.series[m.Name] = s
		}
		s.sum += m.Value
		s.count++
	}
}

// Summary returns the arithmetic mean of every sample seen per metric name.
func (a *Aggregator) Summary() map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]float64, len(a.series))
	for name, s := range a.series {
		out[name] = s.sum / float64(s.count)
	}
	return out
}

// Count returns how many samples have been recorded for name.
func (a *Aggregator) Count(name string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.series[name]; ok {
		return s.count
	}
	return 0
}

// Reset discards all accumulated samples.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.series = make(map[string]*series)
	a.mu.Unlock()
}
