package analyzer

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/obsidianstack/agentwatch/pkg/types"
)

// EvaluateMetric compares m against th and returns a new alert for the
// highest bound breached, or nil when m is inside its warning bound.
//
// The alert starts at Level1, unacknowledged and unresolved. Its Threshold
// field holds the bound that was crossed so auto-resolution can later test
// the live value against it.
func EvaluateMetric(m *types.HealthMetric, th types.HealthThreshold, now time.Time) *types.HealthAlert {
	sev := th.Breached(m.Value)
	if sev == "" {
		return nil
	}
	bound := th.WarningThreshold
	if sev == types.SeverityCritical {
		bound = th.CriticalThreshold
	}

	unit := m.Unit
	if unit == "" {
		unit = th.Unit
	}
	return &types.HealthAlert{
		ID:              uuid.NewString(),
		AgentID:         m.AgentID,
		Severity:        sev,
		Message:         alertMessage(m.MetricType, m.Value, bound, unit, sev),
		MetricType:      m.MetricType,
		CurrentValue:    m.Value,
		Threshold:       bound,
		Timestamp:       now,
		EscalationLevel: types.Level1,
	}
}

func alertMessage(mt types.MetricType, value, bound float64, unit string, sev types.Severity) string {
	level := "warning"
	if sev == types.SeverityCritical {
		level = "critical"
	}
	return fmt.Sprintf("%s is %s%s (%s threshold %s%s)",
		mt, formatValue(value), unit, level, formatValue(bound), unit)
}

// formatValue prints integers without a fractional part and other values
// with at most two decimals.
func formatValue(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
