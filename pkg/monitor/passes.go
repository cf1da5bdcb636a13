package monitor

import (
	"sort"
	"time"

	"github.com/obsidianstack/agentwatch/internal/alerts"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// PerformHealthChecks re-evaluates every metric of every agent, recomputes
// each snapshot and then notifies subscribers. A failure on one agent is
// logged and does not stop the pass.
func (m *Monitor) PerformHealthChecks() {
	start := time.Now()
	now := m.now()

	m.mu.Lock()
	var pending []notification
	for _, id := range m.agentIDs() {
		pending = append(pending, m.checkAgent(m.snapshots[id], now)...)
	}
	snaps, active := m.stateLocked()
	timeout := m.cfg.SubscriberTimeout
	m.mu.Unlock()

	m.dispatch(pending)
	m.metrics.ObservePass("health", start)
	m.publish(snaps, active, timeout)
}

// checkAgent evaluates one snapshot, recovering from any panic so the pass
// continues with the next agent. Caller holds m.mu.
func (m *Monitor) checkAgent(snap *types.HealthSnapshot, now time.Time) (pending []notification) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("monitor: health check failed for agent",
				"agent", snap.AgentID,
				"panic", r,
			)
		}
	}()

	for _, mt := range metricTypes(snap) {
		pending = append(pending, m.evaluate(snap, snap.Metrics[mt], now)...)
	}
	m.recompute(snap)
	snap.Timestamp = now
	return pending
}

// CheckAlerts auto-resolves recovered alerts, prunes expired ones, runs one
// escalation step and then notifies subscribers. Escalated alerts are
// re-dispatched to their new level's channels.
func (m *Monitor) CheckAlerts() {
	start := time.Now()
	now := m.now()

	m.mu.Lock()
	res := m.store.Check(m.snapshots, m.thresholds, now)

	touched := make(map[string]bool)
	for _, a := range res.Resolved {
		m.detach(a)
		touched[a.AgentID] = true
	}
	for _, a := range res.Pruned {
		m.detach(a)
		touched[a.AgentID] = true
	}

	var pending []notification
	for _, e := range m.store.Escalations(now) {
		if !alerts.Escalate(e.Alert, e.Policy, now) {
			continue
		}
		m.metrics.Escalated(e.Policy.Level.String())
		pending = append(pending, notification{alert: e.Alert.Clone(), policy: e.Policy})
	}

	for id := range touched {
		if snap, ok := m.snapshots[id]; ok {
			m.recompute(snap)
		}
	}
	snaps, active := m.stateLocked()
	timeout := m.cfg.SubscriberTimeout
	m.mu.Unlock()

	m.metrics.AlertsResolved(len(res.Resolved))
	m.metrics.AlertsPruned(len(res.Pruned))
	m.dispatch(pending)
	m.metrics.ObservePass("alerts", start)
	m.publish(snaps, active, timeout)
}

// detach removes a from its agent's snapshot. Caller holds m.mu.
func (m *Monitor) detach(a *types.HealthAlert) {
	if snap, ok := m.snapshots[a.AgentID]; ok {
		snap.DetachAlert(a.ID)
	}
}

// stateLocked returns deep copies of every snapshot and of the active
// alerts, and refreshes the fleet gauges. Caller holds m.mu.
func (m *Monitor) stateLocked() (map[string]*types.HealthSnapshot, []*types.HealthAlert) {
	snaps := make(map[string]*types.HealthSnapshot, len(m.snapshots))
	var total float64
	for id, s := range m.snapshots {
		snaps[id] = s.Clone()
		total += s.HealthScore
	}
	open := m.store.List(activeFilter)
	active := make([]*types.HealthAlert, len(open))
	for i, a := range open {
		active[i] = a.Clone()
	}

	avg := 0.0
	if len(snaps) > 0 {
		avg = total / float64(len(snaps))
	}
	m.metrics.SetState(len(snaps), len(active), avg)
	return snaps, active
}

// agentIDs returns the snapshot keys in order. Caller holds m.mu.
func (m *Monitor) agentIDs() []string {
	ids := make([]string, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func metricTypes(snap *types.HealthSnapshot) []types.MetricType {
	out := make([]types.MetricType, 0, len(snap.Metrics))
	for mt := range snap.Metrics {
		out = append(out, mt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
