package monitor

import (
	"fmt"

	"github.com/obsidianstack/agentwatch/internal/alerts"
	"github.com/obsidianstack/agentwatch/internal/export"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// AlertFilter selects alerts for GetHealthAlerts.
type AlertFilter = alerts.Filter

var activeFilter = alerts.Filter{}

// GetAgentHealth returns a copy of the agent's snapshot.
func (m *Monitor) GetAgentHealth(agentID string) (*types.HealthSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snapshots[agentID]
	if !ok {
		return nil, false
	}
	return snap.Clone(), true
}

// GetAllAgentHealth returns copies of every snapshot keyed by agent ID.
func (m *Monitor) GetAllAgentHealth() map[string]*types.HealthSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*types.HealthSnapshot, len(m.snapshots))
	for id, s := range m.snapshots {
		out[id] = s.Clone()
	}
	return out
}

// GetHealthAlerts returns copies of the alerts matching f, newest first.
func (m *Monitor) GetHealthAlerts(f AlertFilter) []*types.HealthAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.store.List(f)
	out := make([]*types.HealthAlert, len(list))
	for i, a := range list {
		out[i] = a.Clone()
	}
	return out
}

// AcknowledgeAlert marks an alert as seen, which stops its escalation.
func (m *Monitor) AcknowledgeAlert(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, err := m.store.Acknowledge(id, m.now())
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	m.log.Info("monitor: alert acknowledged", "alert", id, "agent", a.AgentID)
	return nil
}

// ResolveAlert closes an alert and detaches it from its snapshot. Resolving
// twice is a no-op.
func (m *Monitor) ResolveAlert(id string) error {
	m.mu.Lock()
	a, ok := m.store.Get(id)
	wasResolved := ok && a.Resolved
	a, err := m.store.Resolve(id, m.now())
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("monitor: %w", err)
	}
	if !wasResolved {
		m.detach(a)
		if snap, ok := m.snapshots[a.AgentID]; ok {
			m.recompute(snap)
		}
	}
	m.mu.Unlock()

	if !wasResolved {
		m.metrics.AlertsResolved(1)
		m.log.Info("monitor: alert resolved", "alert", id, "agent", a.AgentID)
	}
	return nil
}

// UpdateThreshold validates th and installs it in the registry. An invalid
// threshold leaves the registry untouched.
func (m *Monitor) UpdateThreshold(th types.HealthThreshold) error {
	if err := th.Validate(); err != nil {
		return fmt.Errorf("monitor: update threshold: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds[th.MetricType] = th
	m.recomputeFor(th)
	m.log.Info("monitor: threshold updated",
		"metric", th.MetricType,
		"warning", th.WarningThreshold,
		"critical", th.CriticalThreshold,
	)
	return nil
}

// Thresholds returns a copy of the registry.
func (m *Monitor) Thresholds() map[types.MetricType]types.HealthThreshold {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.MetricType]types.HealthThreshold, len(m.thresholds))
	for k, v := range m.thresholds {
		out[k] = v
	}
	return out
}

// GetHealthSummary returns the fleet rollup. LastUpdate is the newest
// snapshot timestamp, zero when no agent is known.
func (m *Monitor) GetHealthSummary() types.HealthSummary {
	running := m.Running()

	m.mu.Lock()
	defer m.mu.Unlock()

	sum := types.HealthSummary{
		TotalAgents:        len(m.snapshots),
		ActiveAlerts:       len(m.store.List(activeFilter)),
		StatusDistribution: make(map[types.HealthStatus]int),
		MonitoringActive:   running,
	}
	var total float64
	for _, id := range m.agentIDs() {
		s := m.snapshots[id]
		sum.StatusDistribution[s.OverallStatus]++
		total += s.HealthScore
		if s.Timestamp.After(sum.LastUpdate) {
			sum.LastUpdate = s.Timestamp
		}
	}
	if len(m.snapshots) > 0 {
		sum.AverageHealthScore = total / float64(len(m.snapshots))
	}
	return sum
}

// Export returns the current state as an export document. The alert list
// includes resolved alerts still within retention.
func (m *Monitor) Export() export.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return export.FromState(m.snapshots, m.store.All())
}

// Import replaces all snapshots and alerts with those in doc.
func (m *Monitor) Import(doc export.Document) error {
	snaps, list, err := export.ToState(doc)
	if err != nil {
		return fmt.Errorf("monitor: import: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = snaps
	m.store.Reset()
	for _, a := range list {
		m.store.Add(a)
	}
	m.log.Info("monitor: state imported", "agents", len(snaps), "alerts", len(list))
	return nil
}
