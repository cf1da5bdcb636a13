package alerts

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/obsidianstack/agentwatch/internal/analyzer"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// DefaultRetention is the age after which an alert is pruned regardless of
// its state.
const DefaultRetention = 7 * 24 * time.Hour

// ErrNotFound is returned for operations on an unknown alert ID.
var ErrNotFound = errors.New("alert not found")

// DedupPolicy decides what happens when a metric breaches again while an
// earlier alert for it is still open.
type DedupPolicy string

const (
	// DedupReuse refreshes the open alert for the same agent, metric and
	// severity with the latest value.
	DedupReuse DedupPolicy = "reuse"
	// DedupAppend stores every breach as its own alert.
	DedupAppend DedupPolicy = "append"
)

// ParseDedupPolicy accepts "reuse" or "append"; empty means reuse.
func ParseDedupPolicy(s string) (DedupPolicy, error) {
	switch DedupPolicy(s) {
	case "", DedupReuse:
		return DedupReuse, nil
	case DedupAppend:
		return DedupAppend, nil
	default:
		return "", fmt.Errorf("alerts: unknown dedup policy %q", s)
	}
}

// Filter selects alerts for List. Zero values match everything except
// resolved alerts.
type Filter struct {
	Severity        types.Severity
	AgentID         string
	IncludeResolved bool
}

func (f Filter) match(a *types.HealthAlert) bool {
	if a.Resolved && !f.IncludeResolved {
		return false
	}
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.AgentID != "" && a.AgentID != f.AgentID {
		return false
	}
	return true
}

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides DefaultRetention. Non-positive values are ignored.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithDedup sets the breach deduplication policy.
func WithDedup(p DedupPolicy) Option {
	return func(s *Store) { s.dedup = p }
}

// WithPolicies replaces DefaultPolicies.
func WithPolicies(p map[types.EscalationLevel]types.EscalationPolicy) Option {
	return func(s *Store) {
		if len(p) > 0 {
			s.policies = p
		}
	}
}

// Store holds every alert by ID.
type Store struct {
	alerts    map[string]*types.HealthAlert
	retention time.Duration
	dedup     DedupPolicy
	policies  map[types.EscalationLevel]types.EscalationPolicy
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		alerts:    make(map[string]*types.HealthAlert),
		retention: DefaultRetention,
		dedup:     DedupReuse,
		policies:  DefaultPolicies(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Configure applies opts to an existing store. Stored alerts are kept.
func (s *Store) Configure(opts ...Option) {
	for _, o := range opts {
		o(s)
	}
}

// Dedup returns the active deduplication policy.
func (s *Store) Dedup() DedupPolicy { return s.dedup }

// Policies returns the escalation policies by level.
func (s *Store) Policies() map[types.EscalationLevel]types.EscalationPolicy { return s.policies }

// Len returns the number of stored alerts, resolved ones included.
func (s *Store) Len() int { return len(s.alerts) }

// Add stores a unconditionally. An alert with the same ID is replaced.
func (s *Store) Add(a *types.HealthAlert) {
	s.alerts[a.ID] = a
}

// Record stores a fresh breach according to the dedup policy. It returns the
// alert that now represents the breach and whether it is new. Under
// DedupReuse an open alert for the same agent, metric and severity absorbs
// the breach and a is discarded.
func (s *Store) Record(a *types.HealthAlert) (*types.HealthAlert, bool) {
	if s.dedup == DedupReuse {
		if open := s.FindUnresolved(a.AgentID, a.MetricType, a.Severity); open != nil {
			open.CurrentValue = a.CurrentValue
			open.Threshold = a.Threshold
			open.Message = a.Message
			return open, false
		}
	}
	s.Add(a)
	return a, true
}

// Get returns the alert with id.
func (s *Store) Get(id string) (*types.HealthAlert, bool) {
	a, ok := s.alerts[id]
	return a, ok
}

// List returns the alerts matching f, newest first.
func (s *Store) List(f Filter) []*types.HealthAlert {
	out := make([]*types.HealthAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if f.match(a) {
			out = append(out, a)
		}
	}
	sortNewestFirst(out)
	return out
}

// FindUnresolved returns the oldest open alert for agentID and metric with
// severity sev, or nil.
func (s *Store) FindUnresolved(agentID string, metric types.MetricType, sev types.Severity) *types.HealthAlert {
	var found *types.HealthAlert
	for _, a := range s.alerts {
		if a.Resolved || a.AgentID != agentID || a.MetricType != metric || a.Severity != sev {
			continue
		}
		if found == nil || a.Timestamp.Before(found.Timestamp) {
			found = a
		}
	}
	return found
}

// Acknowledge marks the alert as seen. Acknowledging twice keeps the first
// timestamp.
func (s *Store) Acknowledge(id string, now time.Time) (*types.HealthAlert, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alerts: acknowledge %q: %w", id, ErrNotFound)
	}
	if !a.Acknowledged {
		a.Acknowledged = true
		a.AcknowledgedAt = &now
	}
	return a, nil
}

// Resolve closes the alert. Resolving a resolved alert is a no-op.
func (s *Store) Resolve(id string, now time.Time) (*types.HealthAlert, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alerts: resolve %q: %w", id, ErrNotFound)
	}
	markResolved(a, now)
	return a, nil
}

// markResolved reports whether a changed state.
func markResolved(a *types.HealthAlert, now time.Time) bool {
	if a.Resolved {
		return false
	}
	a.Resolved = true
	a.ResolvedAt = &now
	return true
}

// IsResolved reports whether a is explicitly resolved or its metric's
// current value on snap has moved back inside the alert's stored threshold.
func IsResolved(a *types.HealthAlert, snap *types.HealthSnapshot, reg analyzer.Thresholds) bool {
	if a.Resolved {
		return true
	}
	if snap == nil {
		return false
	}
	m, ok := snap.Metrics[a.MetricType]
	if !ok {
		return false
	}
	th, _ := analyzer.ThresholdFor(m, reg)
	return th.Recovered(m.Value, a.Threshold)
}

// CheckResult lists what one Check pass changed.
type CheckResult struct {
	Resolved []*types.HealthAlert
	Pruned   []*types.HealthAlert
}

// Check auto-resolves alerts whose metric has recovered and removes alerts
// older than the retention window regardless of state. Alerts already
// resolved are never reported twice.
func (s *Store) Check(snapshots map[string]*types.HealthSnapshot, reg analyzer.Thresholds, now time.Time) CheckResult {
	var res CheckResult
	for id, a := range s.alerts {
		if now.Sub(a.Timestamp) > s.retention {
			delete(s.alerts, id)
			res.Pruned = append(res.Pruned, a)
			continue
		}
		if a.Resolved {
			continue
		}
		if IsResolved(a, snapshots[a.AgentID], reg) && markResolved(a, now) {
			res.Resolved = append(res.Resolved, a)
			slog.Info("alerts: auto-resolved",
				"alert", a.ID,
				"agent", a.AgentID,
				"metric", a.MetricType,
			)
		}
	}
	sortNewestFirst(res.Resolved)
	sortNewestFirst(res.Pruned)
	if len(res.Pruned) > 0 {
		slog.Debug("alerts: pruned", "count", len(res.Pruned), "retention", s.retention)
	}
	return res
}

// All returns every stored alert, newest first.
func (s *Store) All() []*types.HealthAlert {
	return s.List(Filter{IncludeResolved: true})
}

// Reset drops every alert.
func (s *Store) Reset() {
	s.alerts = make(map[string]*types.HealthAlert)
}

func sortNewestFirst(list []*types.HealthAlert) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Timestamp.Equal(list[j].Timestamp) {
			return list[i].Timestamp.After(list[j].Timestamp)
		}
		return list[i].ID < list[j].ID
	})
}
