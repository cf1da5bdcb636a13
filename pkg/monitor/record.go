package monitor

import (
	"fmt"
	"math"
	"time"

	"github.com/obsidianstack/agentwatch/internal/analyzer"
	"github.com/obsidianstack/agentwatch/pkg/types"
)

// evaluateMetric is replaced in tests.
var evaluateMetric = analyzer.EvaluateMetric

// RecordHealthMetric stores the latest value of metric for agentID,
// evaluates it immediately and recomputes the agent's score, status and
// recommendations. The snapshot is created on first use.
//
// The optional threshold is a full HealthThreshold, not a single bound: a
// non-nil value (warning and critical bounds, unit) overrides the registry
// for this agent's metric and is stored on it. An empty MetricType in it
// defaults to metric. Metric types with no threshold are stored but never
// raise alerts.
//
// New alerts are queued for notification; the call never waits on a
// channel.
func (m *Monitor) RecordHealthMetric(agentID string, metric types.MetricType, value float64, unit string, threshold *types.HealthThreshold) error {
	if agentID == "" {
		return fmt.Errorf("monitor: record: %w: agent id is required", ErrInvalidMetric)
	}
	if metric == "" {
		return fmt.Errorf("monitor: record: %w: metric type is required", ErrInvalidMetric)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("monitor: record %s/%s: %w: value must be finite", agentID, metric, ErrInvalidMetric)
	}
	if threshold != nil {
		th := *threshold
		if th.MetricType == "" {
			th.MetricType = metric
		}
		if err := th.Validate(); err != nil {
			return fmt.Errorf("monitor: record %s/%s: %w", agentID, metric, err)
		}
		threshold = &th
	}

	now := m.now()

	m.mu.Lock()
	snap, ok := m.snapshots[agentID]
	if !ok {
		snap = types.NewSnapshot(agentID, now)
		m.snapshots[agentID] = snap
		m.log.Debug("monitor: new agent", "agent", agentID)
	}

	hm := &types.HealthMetric{
		AgentID:    agentID,
		MetricType: metric,
		Value:      value,
		Unit:       unit,
		Timestamp:  now,
		Threshold:  threshold,
		Status:     types.StatusUnknown,
	}
	snap.Metrics[metric] = hm
	snap.Timestamp = now

	pending := m.evaluate(snap, hm, now)
	m.recompute(snap)
	m.mu.Unlock()

	m.metrics.MetricRecorded()
	m.dispatch(pending)
	return nil
}

// RecordMetrics records a batch of collected samples. The sample source is
// the agent ID and the sample name the metric type; failures are logged.
func (m *Monitor) RecordMetrics(batch []types.Metric) {
	for _, s := range batch {
		unit := ""
		m.mu.Lock()
		if th, ok := m.thresholds[types.MetricType(s.Name)]; ok {
			unit = th.Unit
		}
		m.mu.Unlock()

		if err := m.RecordHealthMetric(s.Source, types.MetricType(s.Name), s.Value, unit, nil); err != nil {
			m.log.Warn("monitor: dropped collected sample",
				"source", s.Source,
				"metric", s.Name,
				"err", err,
			)
		}
	}
}

// evaluate checks hm against its threshold and files any breach. It returns
// the notifications owed for newly created alerts. Caller holds m.mu.
func (m *Monitor) evaluate(snap *types.HealthSnapshot, hm *types.HealthMetric, now time.Time) []notification {
	th, ok := analyzer.ThresholdFor(hm, m.thresholds)
	if !ok {
		m.log.Debug("monitor: no threshold for metric, skipping evaluation",
			"agent", hm.AgentID,
			"metric", hm.MetricType,
		)
		return nil
	}
	hm.Status = analyzer.MetricStatus(hm.Value, th)

	candidate := evaluateMetric(hm, th, now)
	if candidate == nil {
		return nil
	}
	stored, created := m.store.Record(candidate)
	if !created {
		return nil
	}
	snap.Alerts = append(snap.Alerts, stored)
	m.metrics.AlertCreated(string(stored.Severity))
	m.log.Warn("monitor: alert raised",
		"alert", stored.ID,
		"agent", stored.AgentID,
		"metric", stored.MetricType,
		"severity", stored.Severity,
		"value", stored.CurrentValue,
	)

	policy, ok := m.store.Policies()[stored.EscalationLevel]
	if !ok {
		return nil
	}
	return []notification{{alert: stored.Clone(), policy: policy}}
}

// recomputeFor refreshes every snapshot holding a metric of one of the
// given thresholds' types. Caller holds m.mu.
func (m *Monitor) recomputeFor(ths ...types.HealthThreshold) {
	if len(ths) == 0 {
		return
	}
	for _, snap := range m.snapshots {
		for _, th := range ths {
			if _, ok := snap.Metrics[th.MetricType]; ok {
				m.recompute(snap)
				break
			}
		}
	}
}

// recompute refreshes the derived fields of snap. Caller holds m.mu.
func (m *Monitor) recompute(snap *types.HealthSnapshot) {
	snap.HealthScore = analyzer.CalculateHealthScore(snap, m.thresholds)
	snap.OverallStatus = analyzer.DeriveStatus(snap)
	snap.Recommendations = analyzer.GenerateRecommendations(snap, m.thresholds)
}
