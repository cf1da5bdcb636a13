package types

import (
	"fmt"
	"strings"
	"time"
)

// HealthStatus is the derived condition of an agent or a single metric.
type HealthStatus string

const (
	StatusExcellent HealthStatus = "EXCELLENT"
	StatusGood      HealthStatus = "GOOD"
	StatusWarning   HealthStatus = "WARNING"
	StatusCritical  HealthStatus = "CRITICAL"
	StatusUnknown   HealthStatus = "UNKNOWN"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity accepts "warning" or "critical" in any case.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToUpper(s)) {
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// HealthSnapshot is the live aggregated health view of one agent.
type HealthSnapshot struct {
	AgentID         string
	Timestamp       time.Time
	OverallStatus   HealthStatus
	HealthScore     float64
	Metrics         map[MetricType]*HealthMetric
	Alerts          []*HealthAlert
	Recommendations []string
}

// NewSnapshot returns an empty snapshot for agentID.
func NewSnapshot(agentID string, now time.Time) *HealthSnapshot {
	return &HealthSnapshot{
		AgentID:       agentID,
		Timestamp:     now,
		OverallStatus: StatusUnknown,
		HealthScore:   100,
		Metrics:       make(map[MetricType]*HealthMetric),
	}
}

// ActiveAlerts returns the alerts on s that have not been resolved.
func (s *HealthSnapshot) ActiveAlerts() []*HealthAlert {
	out := make([]*HealthAlert, 0, len(s.Alerts))
	for _, a := range s.Alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}

// DetachAlert removes the alert with the given ID from s.Alerts.
func (s *HealthSnapshot) DetachAlert(id string) {
	kept := s.Alerts[:0]
	for _, a := range s.Alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(s.Alerts); i++ {
		s.Alerts[i] = nil
	}
	s.Alerts = kept
}

// Clone returns a deep copy of s. Alerts are copied, not shared.
func (s *HealthSnapshot) Clone() *HealthSnapshot {
	cp := *s
	cp.Metrics = make(map[MetricType]*HealthMetric, len(s.Metrics))
	for k, m := range s.Metrics {
		cp.Metrics[k] = m.Clone()
	}
	cp.Alerts = make([]*HealthAlert, len(s.Alerts))
	for i, a := range s.Alerts {
		cp.Alerts[i] = a.Clone()
	}
	cp.Recommendations = append([]string(nil), s.Recommendations...)
	return &cp
}

// HealthSummary is the fleet-wide rollup returned by the orchestrator.
type HealthSummary struct {
	TotalAgents        int                  `json:"total_agents"`
	ActiveAlerts       int                  `json:"active_alerts"`
	StatusDistribution map[HealthStatus]int `json:"status_distribution"`
	AverageHealthScore float64              `json:"average_health_score"`
	MonitoringActive   bool                 `json:"monitoring_active"`
	LastUpdate         time.Time            `json:"last_update"`
}
