package api

import (
	"sort"
	"time"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// AgentResponse is one agent in GET /api/v1/agents or /api/v1/agents/{id}.
type AgentResponse struct {
	AgentID         string             `json:"agent_id"`
	OverallStatus   types.HealthStatus `json:"overall_status"`
	HealthScore     float64            `json:"health_score"`
	Metrics         []MetricResponse   `json:"metrics"`
	Alerts          []AlertResponse    `json:"alerts"`
	Recommendations []string           `json:"recommendations"`
	LastSeen        string             `json:"last_seen"` // RFC3339
}

// MetricResponse is the latest value of one metric type.
type MetricResponse struct {
	MetricType types.MetricType   `json:"metric_type"`
	Value      float64            `json:"value"`
	Unit       string             `json:"unit"`
	Status     types.HealthStatus `json:"status"`
	Timestamp  string             `json:"timestamp"` // RFC3339
}

// AlertResponse is one alert.
type AlertResponse struct {
	ID              string           `json:"id"`
	AgentID         string           `json:"agent_id"`
	Severity        types.Severity   `json:"severity"`
	Message         string           `json:"message"`
	MetricType      types.MetricType `json:"metric_type"`
	CurrentValue    float64          `json:"current_value"`
	Threshold       float64          `json:"threshold"`
	Acknowledged    bool             `json:"acknowledged"`
	Resolved        bool             `json:"resolved"`
	EscalationLevel string           `json:"escalation_level"`
	FiredAt         string           `json:"fired_at"` // RFC3339
}

// RecordRequest is the body of POST /api/v1/metrics.
type RecordRequest struct {
	AgentID    string                 `json:"agent_id"`
	MetricType types.MetricType       `json:"metric_type"`
	Value      float64                `json:"value"`
	Unit       string                 `json:"unit"`
	Threshold  *types.HealthThreshold `json:"threshold,omitempty"`
}

// statusResponse acknowledges a write.
type statusResponse struct {
	OK bool `json:"ok"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func toAgentResponse(s *types.HealthSnapshot) AgentResponse {
	out := AgentResponse{
		AgentID:         s.AgentID,
		OverallStatus:   s.OverallStatus,
		HealthScore:     s.HealthScore,
		Metrics:         make([]MetricResponse, 0, len(s.Metrics)),
		Alerts:          make([]AlertResponse, 0, len(s.Alerts)),
		Recommendations: append([]string{}, s.Recommendations...),
		LastSeen:        s.Timestamp.UTC().Format(time.RFC3339),
	}
	for _, m := range s.Metrics {
		out.Metrics = append(out.Metrics, MetricResponse{
			MetricType: m.MetricType,
			Value:      m.Value,
			Unit:       m.Unit,
			Status:     m.Status,
			Timestamp:  m.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	sortMetrics(out.Metrics)
	for _, a := range s.Alerts {
		out.Alerts = append(out.Alerts, toAlertResponse(a))
	}
	return out
}

func toAlertResponse(a *types.HealthAlert) AlertResponse {
	return AlertResponse{
		ID:              a.ID,
		AgentID:         a.AgentID,
		Severity:        a.Severity,
		Message:         a.Message,
		MetricType:      a.MetricType,
		CurrentValue:    a.CurrentValue,
		Threshold:       a.Threshold,
		Acknowledged:    a.Acknowledged,
		Resolved:        a.Resolved,
		EscalationLevel: a.EscalationLevel.String(),
		FiredAt:         a.Timestamp.UTC().Format(time.RFC3339),
	}
}

// BuildAgents converts snapshots to responses sorted by agent ID. It is shared
// by GET /api/v1/agents and the WebSocket hub.
func BuildAgents(all map[string]*types.HealthSnapshot) []AgentResponse {
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]AgentResponse, 0, len(all))
	for _, id := range ids {
		out = append(out, toAgentResponse(all[id]))
	}
	return out
}

// BuildAlerts converts alerts to responses, keeping their order.
func BuildAlerts(list []*types.HealthAlert) []AlertResponse {
	out := make([]AlertResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAlertResponse(a))
	}
	return out
}
