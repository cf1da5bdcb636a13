package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// Document is the export root.
type Document struct {
	Agents map[string]SnapshotDTO `json:"agents"`
	Alerts []AlertDTO             `json:"alerts"`
}

// SnapshotDTO is the wire form of types.HealthSnapshot.
type SnapshotDTO struct {
	AgentID         string               `json:"agent_id"`
	Timestamp       time.Time            `json:"timestamp"`
	OverallStatus   types.HealthStatus   `json:"overall_status"`
	HealthScore     float64              `json:"health_score"`
	Metrics         map[string]MetricDTO `json:"metrics"`
	AlertIDs        []string             `json:"alert_ids"`
	Recommendations []string             `json:"recommendations"`
}

// MetricDTO is the wire form of types.HealthMetric.
type MetricDTO struct {
	MetricType types.MetricType       `json:"metric_type"`
	Value      float64                `json:"value"`
	Unit       string                 `json:"unit"`
	Timestamp  time.Time              `json:"timestamp"`
	Threshold  *types.HealthThreshold `json:"threshold,omitempty"`
	Status     types.HealthStatus     `json:"status"`
}

// AlertDTO is the wire form of types.HealthAlert.
type AlertDTO struct {
	ID              string           `json:"id"`
	AgentID         string           `json:"agent_id"`
	Severity        types.Severity   `json:"severity"`
	Message         string           `json:"message"`
	MetricType      types.MetricType `json:"metric_type"`
	CurrentValue    float64          `json:"current_value"`
	Threshold       float64          `json:"threshold"`
	Timestamp       time.Time        `json:"timestamp"`
	Acknowledged    bool             `json:"acknowledged"`
	Resolved        bool             `json:"resolved"`
	EscalationLevel int              `json:"escalation_level"`
	EscalatedAt     *time.Time       `json:"escalated_at,omitempty"`
	AcknowledgedAt  *time.Time       `json:"acknowledged_at,omitempty"`
	ResolvedAt      *time.Time       `json:"resolved_at,omitempty"`
}

// FromState builds a Document. Alerts are sorted newest first.
func FromState(snapshots map[string]*types.HealthSnapshot, alerts []*types.HealthAlert) Document {
	doc := Document{
		Agents: make(map[string]SnapshotDTO, len(snapshots)),
		Alerts: make([]AlertDTO, 0, len(alerts)),
	}
	for id, s := range snapshots {
		dto := SnapshotDTO{
			AgentID:         s.AgentID,
			Timestamp:       s.Timestamp,
			OverallStatus:   s.OverallStatus,
			HealthScore:     s.HealthScore,
			Metrics:         make(map[string]MetricDTO, len(s.Metrics)),
			AlertIDs:        make([]string, 0, len(s.Alerts)),
			Recommendations: append([]string{}, s.Recommendations...),
		}
		for mt, m := range s.Metrics {
			md := MetricDTO{
				MetricType: m.MetricType,
				Value:      m.Value,
				Unit:       m.Unit,
				Timestamp:  m.Timestamp,
				Status:     m.Status,
			}
			if m.Threshold != nil {
				th := *m.Threshold
				md.Threshold = &th
			}
			dto.Metrics[string(mt)] = md
		}
		for _, a := range s.Alerts {
			dto.AlertIDs = append(dto.AlertIDs, a.ID)
		}
		doc.Agents[id] = dto
	}

	sorted := append([]*types.HealthAlert(nil), alerts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	for _, a := range sorted {
		doc.Alerts = append(doc.Alerts, alertDTO(a))
	}
	return doc
}

func alertDTO(a *types.HealthAlert) AlertDTO {
	return AlertDTO{
		ID:              a.ID,
		AgentID:         a.AgentID,
		Severity:        a.Severity,
		Message:         a.Message,
		MetricType:      a.MetricType,
		CurrentValue:    a.CurrentValue,
		Threshold:       a.Threshold,
		Timestamp:       a.Timestamp,
		Acknowledged:    a.Acknowledged,
		Resolved:        a.Resolved,
		EscalationLevel: int(a.EscalationLevel),
		EscalatedAt:     a.EscalatedAt,
		AcknowledgedAt:  a.AcknowledgedAt,
		ResolvedAt:      a.ResolvedAt,
	}
}

// ToState rebuilds snapshots and alerts field for field. Snapshot alert IDs
// missing from the alert list are an error.
func ToState(doc Document) (map[string]*types.HealthSnapshot, []*types.HealthAlert, error) {
	alerts := make([]*types.HealthAlert, 0, len(doc.Alerts))
	byID := make(map[string]*types.HealthAlert, len(doc.Alerts))
	for _, d := range doc.Alerts {
		if d.ID == "" {
			return nil, nil, fmt.Errorf("export: alert without id")
		}
		lvl := types.EscalationLevel(d.EscalationLevel)
		if lvl < types.Level1 || lvl > types.MaxEscalationLevel {
			return nil, nil, fmt.Errorf("export: alert %q: escalation level %d out of range", d.ID, d.EscalationLevel)
		}
		a := &types.HealthAlert{
			ID:              d.ID,
			AgentID:         d.AgentID,
			Severity:        d.Severity,
			Message:         d.Message,
			MetricType:      d.MetricType,
			CurrentValue:    d.CurrentValue,
			Threshold:       d.Threshold,
			Timestamp:       d.Timestamp,
			Acknowledged:    d.Acknowledged,
			Resolved:        d.Resolved,
			EscalationLevel: lvl,
			EscalatedAt:     d.EscalatedAt,
			AcknowledgedAt:  d.AcknowledgedAt,
			ResolvedAt:      d.ResolvedAt,
		}
		alerts = append(alerts, a)
		byID[a.ID] = a
	}

	snapshots := make(map[string]*types.HealthSnapshot, len(doc.Agents))
	for id, d := range doc.Agents {
		agentID := d.AgentID
		if agentID == "" {
			agentID = id
		}
		s := &types.HealthSnapshot{
			AgentID:         agentID,
			Timestamp:       d.Timestamp,
			OverallStatus:   d.OverallStatus,
			HealthScore:     d.HealthScore,
			Metrics:         make(map[types.MetricType]*types.HealthMetric, len(d.Metrics)),
			Recommendations: append([]string(nil), d.Recommendations...),
		}
		for key, md := range d.Metrics {
			mt := md.MetricType
			if mt == "" {
				mt = types.MetricType(key)
			}
			m := &types.HealthMetric{
				AgentID:    agentID,
				MetricType: mt,
				Value:      md.Value,
				Unit:       md.Unit,
				Timestamp:  md.Timestamp,
				Status:     md.Status,
			}
			if md.Threshold != nil {
				th := *md.Threshold
				m.Threshold = &th
			}
			s.Metrics[mt] = m
		}
		for _, aid := range d.AlertIDs {
			a, ok := byID[aid]
			if !ok {
				return nil, nil, fmt.Errorf("export: agent %q references unknown alert %q", id, aid)
			}
			s.Alerts = append(s.Alerts, a)
		}
		snapshots[id] = s
	}
	return snapshots, alerts, nil
}

// Write encodes doc as indented JSON.
func Write(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	return nil
}

// Read decodes a Document.
func Read(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("export: decode: %w", err)
	}
	return doc, nil
}
